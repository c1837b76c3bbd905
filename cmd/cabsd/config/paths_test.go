package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		dir, err := Dir()
		require.NoError(t, err)
		assert.Equal(t, "/custom/config/cabsd", dir)
	})

	t.Run("defaults to ~/.config when XDG_CONFIG_HOME not set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")

		home, err := os.UserHomeDir()
		require.NoError(t, err)

		dir, err := Dir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".config", "cabsd"), dir)
	})
}

func TestDataDir(t *testing.T) {
	t.Run("uses XDG_DATA_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/custom/data")

		dir, err := DataDir()
		require.NoError(t, err)
		assert.Equal(t, "/custom/data/cabsd", dir)
	})

	t.Run("defaults to ~/.local/share when XDG_DATA_HOME not set", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")

		home, err := os.UserHomeDir()
		require.NoError(t, err)

		dir, err := DataDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".local", "share", "cabsd"), dir)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "memory", cfg.Backend.Kind)
}
