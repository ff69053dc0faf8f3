//go:build !wasm
// +build !wasm

package gorm

import (
	"time"
)

// ValueModel is the GORM model for one stored value
type ValueModel struct {
	Key       string    `gorm:"column:store_key;primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (ValueModel) TableName() string {
	return "questauth_values"
}
