package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/membank/internal/model"
)

func newJSONLTestStore(t *testing.T) *JSONLStore {
	t.Helper()
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "memory.jsonl"), testLogger())
	require.NoError(t, err)
	return s
}

func TestJSONLCorruptLineSkipped(t *testing.T) {
	ctx := context.Background()
	s := newJSONLTestStore(t)

	first := mustCreate(t, s, CreateParams{Record: simpleRecord("good one", model.ScopeRepo)})

	// Simulate a torn write from an interrupted process.
	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"01BROKEN","scope":` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	second := mustCreate(t, s, CreateParams{Record: simpleRecord("after the damage", model.ScopeRepo)})

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{first.ID, second.ID}, recordIDs(all),
		"a malformed line must be skipped, not abort the read")

	_, err = s.Get(ctx, "01BROKEN")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJSONLRewriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	s := newJSONLTestStore(t)

	rec := mustCreate(t, s, CreateParams{Record: simpleRecord("v1", model.ScopeRepo)})
	content := "v2"
	_, err := s.Update(ctx, rec.ID, Mutation{Content: &content})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, rec.ID))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.HasSuffix(e.Name(), ".tmp"),
			"rewrites must rename or remove their temp file, found %s", e.Name())
	}
}

func TestJSONLCompactDedupesById(t *testing.T) {
	ctx := context.Background()
	s := newJSONLTestStore(t)

	rec := mustCreate(t, s, CreateParams{Record: simpleRecord("kept once", model.ScopeRepo)})

	// Duplicate the line, as a crashed writer or a manual concat might.
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), append(data, data...), 0o644))

	res, err := s.Compact(ctx, CompactPolicy{})
	require.NoError(t, err)
	require.Equal(t, 2, res.Examined)
	require.Equal(t, 1, res.Dropped)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{rec.ID}, recordIDs(all))
}

func TestJSONLCreateOnMissingDirFails(t *testing.T) {
	// Parent creation happens up front; a path under a regular file is
	// reported as the backend being unavailable.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewJSONLStore(filepath.Join(blocker, "memory.jsonl"), testLogger())
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
