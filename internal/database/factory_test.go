package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tonio1998/snsulms-sub001/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"}, "device-1", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != ":memory:" {
			t.Errorf("Path() = %q, want %q", got.Path(), ":memory:")
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "db")
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}

		got, err := NewDatabaseFromConfig(cfg, "device-1", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		want := filepath.Join(dir, "device-1.db")
		if got.Path() != want {
			t.Errorf("Path() = %q, want %q", got.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without device id", func(t *testing.T) {
		dir := t.TempDir()
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir}, "", nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != filepath.Join(dir, "lmssync.db") {
			t.Errorf("Path() = %q, want lmssync.db in data dir", got.Path())
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite"}, "device-1", nil)
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "postgres"}, "device-1", nil)
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type")
		}
	})
}
