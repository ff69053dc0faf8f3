//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based questauth.KeyValueStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and suits deployments where several workers share one credential.
//
// # Database Schema
//
// The package auto-migrates one table:
//   - questauth_values: key, value bytes, last update time
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("questauth.db"), &gorm.Config{})
//	_ = gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
//	session, _ := questauth.NewSession(questauth.Config{Store: store, ...})
package gorm
