//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AutoMigrate creates or updates the questauth table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ValueModel{})
}

// Store implements questauth.KeyValueStore using GORM
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var model ValueModel
	err := s.db.WithContext(ctx).First(&model, "store_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return model.Value, nil
}

// Set inserts or replaces the row for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	model := &ValueModel{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&ValueModel{}, "store_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
