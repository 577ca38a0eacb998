package kvstore

import (
	"context"
	"fmt"

	"github.com/tonio1998/snsulms-sub001/internal/config"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// NewStoreFromConfig creates the key-value store selected by cfg.Type.
// The "sqlite" type reuses the relational store passed in as sqliteStore, so
// cached entities and the write queue live in one file.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, sqliteStore lms.Store) (lms.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		if sqliteStore == nil {
			return nil, fmt.Errorf("sqlite store requires an open database")
		}
		return sqliteStore, nil
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem store requires dir to be set")
		}
		return NewFileSystemStore(cfg.Dir)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
