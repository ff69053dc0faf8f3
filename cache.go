package questauth

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// CredentialCache holds the current credential in memory and writes it
// through to a KeyValueStore. Store failures never surface to callers: a
// credential that cannot be loaded reads as nil, and a failed write is logged.
type CredentialCache struct {
	mu     sync.Mutex
	cred   *Credential
	store  KeyValueStore
	key    string
	logger *zap.Logger
}

// NewCredentialCache creates a cache backed by store under key. An empty key
// selects DefaultStoreKey; a nil store keeps the credential in memory only.
func NewCredentialCache(store KeyValueStore, key string, logger *zap.Logger) *CredentialCache {
	if store == nil {
		store = NewMemoryStore()
	}
	if key == "" {
		key = DefaultStoreKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialCache{store: store, key: key, logger: logger}
}

// Key returns the store key the credential is persisted under.
func (c *CredentialCache) Key() string { return c.key }

// Get returns a copy of the current credential, loading it from the store
// when no in-memory copy exists. Returns nil when nothing usable is stored.
func (c *CredentialCache) Get(ctx context.Context) *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cred == nil {
		c.cred = c.load(ctx)
	}
	return c.cred.Clone()
}

func (c *CredentialCache) load(ctx context.Context) *Credential {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn("credential load failed",
			zap.Error(&StoreError{Op: "get", Key: c.key, Err: err}))
		return nil
	}
	if data == nil {
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		c.logger.Warn("stored credential is unreadable",
			zap.Error(&StoreError{Op: "decode", Key: c.key, Err: err}))
		return nil
	}
	return &cred
}

// Set replaces the credential in memory and then in the store. A nil
// credential deletes the stored entry.
func (c *CredentialCache) Set(ctx context.Context, cred *Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = cred.Clone()

	if cred == nil {
		if err := c.store.Delete(ctx, c.key); err != nil {
			c.logger.Warn("credential delete failed",
				zap.Error(&StoreError{Op: "delete", Key: c.key, Err: err}))
		}
		return
	}

	data, err := json.Marshal(cred)
	if err != nil {
		c.logger.Error("credential encode failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		c.logger.Warn("credential save failed",
			zap.Error(&StoreError{Op: "set", Key: c.key, Err: err}))
	}
}

// Evict drops the in-memory copy so the next Get reloads from the store.
func (c *CredentialCache) Evict() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}
