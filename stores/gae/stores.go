//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"
)

// Store implements questauth.KeyValueStore using Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
}

// NewStore creates a new Datastore-backed Store
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindValue, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var entity ValueEntity
	if err := s.client.Get(ctx, s.namespacedKey(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, fmt.Errorf("datastore get %s: %w", key, err)
	}
	return entity.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	dsKey := s.namespacedKey(key)
	entity := &ValueEntity{Key: dsKey, Value: value, UpdatedAt: time.Now()}
	if _, err := s.client.Put(ctx, dsKey, entity); err != nil {
		return fmt.Errorf("datastore put %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Datastore treats deleting a missing entity as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, s.namespacedKey(key)); err != nil {
		return fmt.Errorf("datastore delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in the namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	query := datastore.NewQuery(KindValue).KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var keys []string
	it := s.client.Run(ctx, query)
	for {
		k, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, k.Name)
	}
	return keys, nil
}

// Purge deletes every value in the namespace and returns how many were
// removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	names, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	keys := make([]*datastore.Key, len(names))
	for i, name := range names {
		keys[i] = s.namespacedKey(name)
	}
	if len(keys) > 0 {
		if err := s.client.DeleteMulti(ctx, keys); err != nil {
			return 0, fmt.Errorf("datastore purge: %w", err)
		}
	}
	return len(keys), nil
}
