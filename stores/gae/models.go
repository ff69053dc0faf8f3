//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
)

// KindValue is the Datastore kind for stored values
const KindValue = "QuestauthValue"

// ValueEntity is the Datastore entity for one stored value
type ValueEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Value     []byte         `datastore:"value,noindex"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}
