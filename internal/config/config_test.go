package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultCommitBatchSize, cfg.CommitBatchSize)
	require.Equal(t, DefaultTopK, cfg.TopK)
	require.Equal(t, "postgres", cfg.StoreDriver)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("READERSTUDY_COMMIT_BATCH_SIZE", "50")
	t.Setenv("READERSTUDY_STORE_DRIVER", "SQLite")
	t.Setenv("READERSTUDY_TOP_K", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 50, cfg.CommitBatchSize)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, DefaultTopK, cfg.TopK)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("READERSTUDY_STORE_DRIVER", "mongo")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readerstudy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_driver: memory\ntop_k: 5\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.StoreDriver)
	require.Equal(t, 5, cfg.TopK)
}

func TestLoadRoles(t *testing.T) {
	roles, err := LoadRoles("")
	require.NoError(t, err)
	require.Equal(t, DefaultRoles, roles)

	path := filepath.Join(t.TempDir(), "roles.toml")
	require.NoError(t, os.WriteFile(path, []byte(`roles = ["GP", " Resident ", ""]`), 0o644))
	roles, err = LoadRoles(path)
	require.NoError(t, err)
	require.Equal(t, []string{"GP", "Resident"}, roles)

	_, err = LoadRoles(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
