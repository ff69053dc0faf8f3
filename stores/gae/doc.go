//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore questauth.KeyValueStore.
// It is designed for deployment on Google Cloud Platform and supports
// multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses one kind:
//   - QuestauthValue: a stored value, keyed by name
//
// # Namespacing
//
// Pass a namespace to isolate values between tenants:
//
//	store := gae.NewStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "") // default namespace
package gae
