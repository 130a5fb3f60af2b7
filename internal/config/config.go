// Package config resolves which storage backend to use and where its
// files live.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/tobyv/membank/internal/store"
)

// BackendKind selects a storage engine.
type BackendKind string

const (
	BackendJSONL  BackendKind = "jsonl"
	BackendSQLite BackendKind = "sqlite"
)

// Store locations follow a fixed convention: a hidden .membank directory
// under the repo root for repo-scoped stores and under the user's home
// for home-scoped ones, with backend-specific filenames.
const (
	storeDirName = ".membank"
	jsonlName    = "memory.jsonl"
	sqliteName   = "memory.db"
)

// Config is threaded explicitly through construction so repo-scoped and
// home-scoped handles can coexist with independent settings.
type Config struct {
	Backend BackendKind

	// Explicit path overrides; empty means the conventional location.
	RepoJSONL string
	RepoDB    string
	HomeJSONL string
	HomeDB    string
}

// Load reads configuration from the environment (MEMBANK_* variables)
// and an optional $HOME/.membank/config.yaml. An unset or unrecognized
// backend falls back to the flat file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("membank")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, storeDirName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return &Config{
		Backend:   ParseBackend(v.GetString("backend")),
		RepoJSONL: v.GetString("repo_jsonl"),
		RepoDB:    v.GetString("repo_db"),
		HomeJSONL: v.GetString("home_jsonl"),
		HomeDB:    v.GetString("home_db"),
	}, nil
}

// ParseBackend maps a selection string to a backend kind, defaulting to
// the flat file for anything unrecognized.
func ParseBackend(s string) BackendKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "db":
		return BackendSQLite
	default:
		return BackendJSONL
	}
}

// RepoStorePath returns the store file path for a repo-scoped store.
func (c *Config) RepoStorePath(repoRoot string) string {
	switch c.Backend {
	case BackendSQLite:
		if c.RepoDB != "" {
			return c.RepoDB
		}
		return filepath.Join(repoRoot, storeDirName, sqliteName)
	default:
		if c.RepoJSONL != "" {
			return c.RepoJSONL
		}
		return filepath.Join(repoRoot, storeDirName, jsonlName)
	}
}

// HomeStorePath returns the store file path for a home-scoped store.
func (c *Config) HomeStorePath(home string) string {
	switch c.Backend {
	case BackendSQLite:
		if c.HomeDB != "" {
			return c.HomeDB
		}
		return filepath.Join(home, storeDirName, sqliteName)
	default:
		if c.HomeJSONL != "" {
			return c.HomeJSONL
		}
		return filepath.Join(home, storeDirName, jsonlName)
	}
}

// OpenRepoStore opens the repo-scoped store for repoRoot.
func (c *Config) OpenRepoStore(repoRoot string, logger *slog.Logger) (store.Backend, error) {
	return c.open(c.RepoStorePath(repoRoot), logger)
}

// OpenHomeStore opens the home-scoped store.
func (c *Config) OpenHomeStore(logger *slog.Logger) (store.Backend, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return c.open(c.HomeStorePath(home), logger)
}

// OpenPath opens a store of the configured kind at an explicit path.
func (c *Config) OpenPath(path string, logger *slog.Logger) (store.Backend, error) {
	return c.open(path, logger)
}

func (c *Config) open(path string, logger *slog.Logger) (store.Backend, error) {
	switch c.Backend {
	case BackendSQLite:
		return store.NewSQLiteStore(path, logger)
	default:
		return store.NewJSONLStore(path, logger)
	}
}
