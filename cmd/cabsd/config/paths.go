package config

import (
	"os"
	"path/filepath"
)

// Dir returns the cabsd config directory: XDG_CONFIG_HOME/cabsd, defaulting
// to ~/.config/cabsd.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "cabsd"), nil
}

// DataDir returns the cabsd data directory: XDG_DATA_HOME/cabsd, defaulting
// to ~/.local/share/cabsd. cabsd does not derive any path from it: with
// Config.Backend.Path unset the row store is in-memory and the local
// backend reports an error.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "cabsd"), nil
}
