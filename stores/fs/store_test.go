package fs

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/questauth"
)

func TestFileStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	// Initially empty
	data, err := store.Get(ctx, "cred")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Set(ctx, "cred", []byte(`{"a":1}`)))
	data, err = store.Get(ctx, "cred")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, store.Set(ctx, "cred", []byte(`{"a":2}`)))
	data, _ = store.Get(ctx, "cred")
	assert.Equal(t, `{"a":2}`, string(data))

	require.NoError(t, store.Delete(ctx, "cred"))
	require.NoError(t, store.Delete(ctx, "cred"), "deleting twice is fine")
	data, err = store.Get(ctx, "cred")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileStore_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := filepath.Join(t.TempDir(), "nested", "questauth")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), questauth.DefaultStoreKey, []byte("{}")))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	info, err = os.Stat(store.Path(questauth.DefaultStoreKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_KeysAreSafeFileNames(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	p := store.Path("../escape/key")
	assert.Equal(t, store.Dir(), filepath.Dir(p))
}

func TestFileStore_BacksCredentialCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	cred := &questauth.Credential{
		AccessToken:  "at",
		RefreshToken: "rt",
		APIServer:    "https://api.example.com/",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	questauth.NewCredentialCache(store, "", nil).Set(ctx, cred)

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got := questauth.NewCredentialCache(reopened, "", nil).Get(ctx)
	assert.True(t, cred.Equal(got))
}

func TestFileStore_WatchCache(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	cache := questauth.NewCredentialCache(store, "", nil)
	require.NoError(t, store.WatchCache(ctx, cache, nil))

	first := &questauth.Credential{
		AccessToken: "first", RefreshToken: "r", APIServer: "https://api.example.com/",
		TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	}
	cache.Set(ctx, first)
	assert.Equal(t, "first", cache.Get(ctx).AccessToken)

	// Another process logs in with a different credential.
	other, err := NewFileStore(dir)
	require.NoError(t, err)
	second := first.Clone()
	second.AccessToken = "second"
	questauth.NewCredentialCache(other, "", nil).Set(ctx, second)

	assert.Eventually(t, func() bool {
		got := cache.Get(ctx)
		return got != nil && got.AccessToken == "second"
	}, 5*time.Second, 20*time.Millisecond)
}
