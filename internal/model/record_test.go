package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		ID:            NewID(),
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
		SchemaVersion: CurrentSchemaVersion,
		Scope:         ScopeRepo,
		Status:        StatusActive,
		Kind:          KindNote,
		Content:       "prefers short commit messages",
	}
}

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		r := validRecord()
		require.NoError(t, r.Validate())
	})

	t.Run("empty content", func(t *testing.T) {
		r := validRecord()
		r.Content = ""
		require.Error(t, r.Validate())
	})

	t.Run("content at the rune limit", func(t *testing.T) {
		r := validRecord()
		r.Content = strings.Repeat("ü", MaxContentLen)
		require.NoError(t, r.Validate())
	})

	t.Run("content over the rune limit", func(t *testing.T) {
		r := validRecord()
		r.Content = strings.Repeat("a", MaxContentLen+1)
		require.Error(t, r.Validate())
	})

	t.Run("bad enums", func(t *testing.T) {
		r := validRecord()
		r.Scope = "workspace"
		require.Error(t, r.Validate())

		r = validRecord()
		r.Status = "deleted"
		require.Error(t, r.Validate())

		r = validRecord()
		r.Kind = "reminder"
		require.Error(t, r.Validate())
	})
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	r := validRecord()
	require.False(t, r.Expired(now), "no expiry means never expired")

	past := now.Add(-time.Second)
	r.ExpiresAt = &past
	require.True(t, r.Expired(now))

	r.ExpiresAt = &now
	require.True(t, r.Expired(now), "expiry boundary is inclusive")

	future := now.Add(time.Second)
	r.ExpiresAt = &future
	require.False(t, r.Expired(now))
}

func TestHasTag(t *testing.T) {
	r := validRecord()
	r.Tags = []string{"style", "git"}
	require.True(t, r.HasTag("git"))
	require.False(t, r.HasTag("Git"), "tag match is case sensitive")
	require.False(t, r.HasTag("testing"))
}

func TestCloneIsDeep(t *testing.T) {
	last := time.Now().UTC()
	r := validRecord()
	r.Tags = []string{"style"}
	r.Hints = Hints{Files: []string{"main.go"}, Languages: []string{"Go"}}
	r.Counters = Counters{SeenCount: 2, UsedCount: 1, LastUsedAt: &last}

	c := r.Clone()
	c.Tags[0] = "changed"
	c.Hints.Files[0] = "changed"
	*c.Counters.LastUsedAt = last.Add(time.Hour)

	require.Equal(t, "style", r.Tags[0])
	require.Equal(t, "main.go", r.Hints.Files[0])
	require.True(t, r.Counters.LastUsedAt.Equal(last))
}

func TestNewIDIsSortable(t *testing.T) {
	a := NewID()
	b := NewID()
	require.Len(t, a, 26)
	require.NotEqual(t, a, b)
	require.LessOrEqual(t, a, b, "ids made in sequence must sort in creation order")
}
