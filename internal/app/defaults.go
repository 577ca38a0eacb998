package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for where lmssync keeps its files.
const (
	EnvConfigPath = "LMSSYNC_CONFIG_PATH"
	EnvHome       = "LMSSYNC_HOME"
)

// Paths locates the config file and the data directory on this device.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// LogDir is where operation logs are written.
func (p Paths) LogDir() string {
	return filepath.Join(p.BaseDir, "log")
}

// DefaultPaths resolves Paths. LMSSYNC_CONFIG_PATH and LMSSYNC_HOME win;
// otherwise the XDG config and data homes are used, falling back to
// ~/.config/lmssync.toml and ~/.local/share/lmssync.
func DefaultPaths() (Paths, error) {
	var p Paths
	var err error

	if p.ConfigPath, err = resolve(EnvConfigPath, "XDG_CONFIG_HOME", ".config", "lmssync.toml"); err != nil {
		return Paths{}, err
	}
	if p.BaseDir, err = resolve(EnvHome, "XDG_DATA_HOME", filepath.Join(".local", "share"), "lmssync"); err != nil {
		return Paths{}, err
	}
	return p, nil
}

func resolve(override, xdg, homeRel, name string) (string, error) {
	if v := os.Getenv(override); v != "" {
		return v, nil
	}
	if v := os.Getenv(xdg); v != "" {
		return filepath.Join(v, name), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", name, err)
	}
	return filepath.Join(home, homeRel, name), nil
}
