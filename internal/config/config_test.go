package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/membank/internal/store"
)

func TestParseBackend(t *testing.T) {
	cases := map[string]BackendKind{
		"sqlite":   BackendSQLite,
		"SQLite":   BackendSQLite,
		" db ":     BackendSQLite,
		"jsonl":    BackendJSONL,
		"":         BackendJSONL,
		"postgres": BackendJSONL,
	}
	for in, want := range cases {
		require.Equal(t, want, ParseBackend(in), "input %q", in)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // keep any real config.yaml out of the run

	t.Setenv("MEMBANK_BACKEND", "sqlite")
	t.Setenv("MEMBANK_REPO_DB", "/tmp/custom.db")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, "/tmp/custom.db", cfg.RepoDB)

	t.Setenv("MEMBANK_BACKEND", "something-else")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, BackendJSONL, cfg.Backend, "unknown backends fall back to the flat file")
}

func TestLoadFromConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	os.Unsetenv("MEMBANK_BACKEND")

	dir := filepath.Join(home, ".membank")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("backend: sqlite\nhome_jsonl: /tmp/alt.jsonl\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendSQLite, cfg.Backend)
	require.Equal(t, "/tmp/alt.jsonl", cfg.HomeJSONL)
}

func TestStorePathConventions(t *testing.T) {
	jl := &Config{Backend: BackendJSONL}
	require.Equal(t, filepath.Join("/repo", ".membank", "memory.jsonl"), jl.RepoStorePath("/repo"))
	require.Equal(t, filepath.Join("/home/u", ".membank", "memory.jsonl"), jl.HomeStorePath("/home/u"))

	db := &Config{Backend: BackendSQLite}
	require.Equal(t, filepath.Join("/repo", ".membank", "memory.db"), db.RepoStorePath("/repo"))
	require.Equal(t, filepath.Join("/home/u", ".membank", "memory.db"), db.HomeStorePath("/home/u"))
}

func TestStorePathOverrides(t *testing.T) {
	c := &Config{Backend: BackendSQLite, RepoDB: "/elsewhere/mem.db", HomeDB: "/elsewhere/home.db"}
	require.Equal(t, "/elsewhere/mem.db", c.RepoStorePath("/repo"))
	require.Equal(t, "/elsewhere/home.db", c.HomeStorePath("/home/u"))

	// Overrides for the other backend are ignored.
	c = &Config{Backend: BackendJSONL, RepoDB: "/elsewhere/mem.db"}
	require.Equal(t, filepath.Join("/repo", ".membank", "memory.jsonl"), c.RepoStorePath("/repo"))
}

func TestOpenRepoStoreKind(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()

	c := &Config{Backend: BackendJSONL}
	s, err := c.OpenRepoStore(root, logger)
	require.NoError(t, err)
	defer s.Close()
	require.IsType(t, &store.JSONLStore{}, s)
	require.DirExists(t, filepath.Join(root, ".membank"))

	c = &Config{Backend: BackendSQLite}
	s2, err := c.OpenRepoStore(root, logger)
	require.NoError(t, err)
	defer s2.Close()
	require.IsType(t, &store.SQLiteStore{}, s2)
}
