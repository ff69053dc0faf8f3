package config

import (
	"context"
	"fmt"

	"cloud.google.com/go/datastore"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/panyam/questauth"
	"github.com/panyam/questauth/stores/fs"
	"github.com/panyam/questauth/stores/gae"
	gormstore "github.com/panyam/questauth/stores/gorm"
	"github.com/panyam/questauth/stores/keyring"
	redisstore "github.com/panyam/questauth/stores/redis"
	"github.com/panyam/questauth/stores/sealed"
)

// OpenStore opens the configured store. The returned close function
// releases any client connections and is never nil.
func OpenStore(ctx context.Context, sc StoreConfig, logger *zap.Logger) (questauth.KeyValueStore, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store   questauth.KeyValueStore
		closeFn = noop
	)

	switch sc.Kind {
	case StoreFile, "":
		fstore, err := fs.NewFileStore(sc.Dir)
		if err != nil {
			return nil, noop, err
		}
		store = fstore

	case StoreMemory:
		store = questauth.NewMemoryStore()

	case StoreKeyring:
		store = keyring.NewStore(sc.KeyringService)

	case StoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: sc.RedisAddr})
		store = redisstore.NewStore(client, sc.RedisPrefix, sc.RedisTTL)
		closeFn = client.Close

	case StoreSQLite:
		db, err := gorm.Open(sqlite.Open(sc.SQLitePath), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite %s: %w", sc.SQLitePath, err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, noop, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, noop, err
		}
		store = gormstore.NewStore(db)
		closeFn = sqlDB.Close

	case StoreDatastore:
		client, err := datastore.NewClient(ctx, sc.DatastoreProject)
		if err != nil {
			return nil, noop, fmt.Errorf("datastore client: %w", err)
		}
		store = gae.NewStore(client, sc.DatastoreNamespace)
		closeFn = client.Close

	default:
		return nil, noop, fmt.Errorf("unknown store kind %q", sc.Kind)
	}

	if sc.SealKey != "" {
		s, err := sealed.NewFromBase64(store, sc.SealKey)
		if err != nil {
			closeFn()
			return nil, noop, err
		}
		store = s
	}

	logger.Debug("store opened", zap.String("kind", sc.Kind), zap.Bool("sealed", sc.SealKey != ""))
	return store, closeFn, nil
}
