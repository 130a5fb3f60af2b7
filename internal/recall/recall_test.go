package recall

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

var now = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedStore builds a flat-file store with fully pinned records so that
// scoring has no hidden time dependence.
func seedStore(t *testing.T, recs []model.Record) store.Backend {
	t.Helper()
	s, err := store.NewJSONLStore(filepath.Join(t.TempDir(), "memory.jsonl"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, rec := range recs {
		_, err := s.Create(context.Background(), store.CreateParams{Record: rec, Import: true})
		require.NoError(t, err)
	}
	return s
}

func pinned(id, content string, scope model.Scope, status model.Status, created time.Time) model.Record {
	return model.Record{
		ID:            id,
		CreatedAt:     created,
		UpdatedAt:     created,
		SchemaVersion: 1,
		Scope:         scope,
		Status:        status,
		Kind:          model.KindNote,
		Content:       content,
	}
}

func scenarioRecords() []model.Record {
	return []model.Record{
		pinned("01TABS", "Uses tabs not spaces", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		pinned("01LANG", "Prefers Go over Python", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
		pinned("01TEST", "Run tests before commit", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)),
		pinned("01OLD", "Old convention", model.ScopeRepo, model.StatusArchived, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)),
	}
}

func contents(recs []model.Record) []string {
	out := make([]string, len(recs))
	for i := range recs {
		out[i] = recs[i].Content
	}
	return out
}

func TestRecallRanksByOverlapAndExcludesArchived(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, scenarioRecords())
	e := New(s, testLogger())

	got, err := e.Recall(ctx, "please run the tests", Context{
		Now:         now,
		TopN:        2,
		TokenBudget: 8, // covers exactly two of the four-word contents
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Run tests before commit", got[0].Content)
	require.NotContains(t, contents(got), "Old convention")
}

func TestRecallCounterSideEffects(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t, scenarioRecords())
	e := New(s, testLogger())

	got, err := e.Recall(ctx, "please run the tests", Context{Now: now, TopN: 2, TokenBudget: 8})
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, rec := range got {
		require.Equal(t, uint64(1), rec.Counters.UsedCount)
		require.Zero(t, rec.Counters.SeenCount)
		require.NotNil(t, rec.Counters.LastUsedAt)
		require.True(t, rec.Counters.LastUsedAt.Equal(now))
	}

	// The scored-but-not-selected candidate was only marked seen.
	selected := map[string]bool{got[0].ID: true, got[1].ID: true}
	for _, id := range []string{"01TABS", "01LANG", "01TEST"} {
		if selected[id] {
			continue
		}
		rec, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint64(1), rec.Counters.SeenCount)
		require.Zero(t, rec.Counters.UsedCount)
	}

	// The archived record was never a candidate at all.
	old, err := s.Get(ctx, "01OLD")
	require.NoError(t, err)
	require.Zero(t, old.Counters.SeenCount)
	require.Zero(t, old.Counters.UsedCount)
}

func TestRecallDeterministic(t *testing.T) {
	ctx := context.Background()
	rc := Context{Now: now, TopN: 3, TokenBudget: 100}

	var runs [][]string
	var deltas []map[string]model.Counters
	for i := 0; i < 2; i++ {
		s := seedStore(t, scenarioRecords())
		got, err := New(s, testLogger()).Recall(ctx, "please run the tests", rc)
		require.NoError(t, err)

		var ids []string
		for _, rec := range got {
			ids = append(ids, rec.ID)
		}
		runs = append(runs, ids)

		after := make(map[string]model.Counters)
		all, err := s.List(ctx, store.Filter{})
		require.NoError(t, err)
		for _, rec := range all {
			after[rec.ID] = rec.Counters
		}
		deltas = append(deltas, after)
	}

	require.Equal(t, runs[0], runs[1], "identical state must yield identical order")
	require.Equal(t, deltas[0], deltas[1], "identical state must yield identical counter deltas")
}

func TestRecallTokenBudgetBoundaries(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing fits", func(t *testing.T) {
		s := seedStore(t, []model.Record{
			pinned("01X", "one two three four five", model.ScopeRepo, model.StatusActive, now.Add(-time.Hour)),
			pinned("01Y", "alpha beta gamma delta epsilon", model.ScopeRepo, model.StatusActive, now.Add(-2*time.Hour)),
			pinned("01Z", "red green blue cyan magenta", model.ScopeRepo, model.StatusActive, now.Add(-3*time.Hour)),
		})
		got, err := New(s, testLogger()).Recall(ctx, "three gamma blue", Context{Now: now, TopN: 5, TokenBudget: 4})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("exactly one fits", func(t *testing.T) {
		s := seedStore(t, []model.Record{
			pinned("01BIG", "three gamma blue and much more text", model.ScopeRepo, model.StatusActive, now.Add(-time.Hour)),
			pinned("01FIT", "short note here", model.ScopeRepo, model.StatusActive, now.Add(-2*time.Hour)),
			pinned("01PAD", "calls for quite many more words", model.ScopeRepo, model.StatusActive, now.Add(-3*time.Hour)),
		})
		// The higher-scoring oversized record is skipped, not truncated.
		got, err := New(s, testLogger()).Recall(ctx, "three gamma blue", Context{Now: now, TopN: 5, TokenBudget: 3})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "01FIT", got[0].ID)
	})
}

func TestRecallExtendsWithGlobalBelowThreshold(t *testing.T) {
	ctx := context.Background()
	global := pinned("01GLB", "Always write table driven tests", model.ScopeGlobal, model.StatusActive, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	t.Run("sparse repo pulls in global", func(t *testing.T) {
		s := seedStore(t, []model.Record{
			pinned("01RPO", "Run tests before commit", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
			global,
		})
		got, err := New(s, testLogger()).Recall(ctx, "tests", Context{Now: now, TopN: 5})
		require.NoError(t, err)
		require.Contains(t, recallIDs(got), "01GLB")
	})

	t.Run("sufficient repo candidates keep global out", func(t *testing.T) {
		s := seedStore(t, append(scenarioRecords(), global))
		got, err := New(s, testLogger()).Recall(ctx, "tests", Context{Now: now, TopN: 5})
		require.NoError(t, err)
		require.NotContains(t, recallIDs(got), "01GLB")
	})
}

func TestRecallHintBoosts(t *testing.T) {
	ctx := context.Background()
	hinted := pinned("01HNT", "Keep handlers thin", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	hinted.Hints = model.Hints{
		Files:     []string{"server/handler.go"},
		Languages: []string{"Go"},
	}
	plain := pinned("01PLN", "Keep handlers thin", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))

	s := seedStore(t, []model.Record{plain, hinted})
	got, err := New(s, testLogger()).Recall(ctx, "refactor request handling", Context{
		Now:        now,
		TopN:       2,
		ActiveFile: "/work/app/server/handler.go",
		Language:   "go",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"01HNT", "01PLN"}, recallIDs(got),
		"hint overlap must outrank the newer record without hints")
}

func TestRecallExpiredNeverSurfaces(t *testing.T) {
	ctx := context.Background()
	past := now.Add(-time.Minute)
	expired := pinned("01EXP", "run the tests twice", model.ScopeRepo, model.StatusActive, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	expired.ExpiresAt = &past

	s := seedStore(t, []model.Record{expired})
	got, err := New(s, testLogger()).Recall(ctx, "run the tests", Context{Now: now, TopN: 5})
	require.NoError(t, err)
	require.Empty(t, got)
}

func recallIDs(recs []model.Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ID)
	}
	return out
}
