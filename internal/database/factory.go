package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tonio1998/snsulms-sub001/internal/config"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// NewDatabaseFromConfig opens the relational store selected by cfg.Type.
// The returned database also serves as the "sqlite" key-value store.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, deviceID string, clock lms.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, dbFileName(deviceID)), clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", clock)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

func dbFileName(deviceID string) string {
	if deviceID == "" {
		return "lmssync.db"
	}
	return deviceID + ".db"
}
