// Package recall scores and selects memory records relevant to a prompt.
//
// The algorithm is deterministic: no randomness, stable tie-breaks.
// Given the same store state, prompt and context it always returns the
// same ordered records and produces the same counter deltas.
package recall

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/store"
)

// Scoring weights. Hint boosts reward a candidate whose relevance hints
// intersect the caller's working context.
const (
	boostFile     = 0.4
	boostModule   = 0.3
	boostLanguage = 0.2
	boostCommand  = 0.1

	weightRecency   = 0.3
	weightFrequency = 0.2

	// recencyHalfLife halves the recency term for every week since the
	// record was last used (or created, if never used).
	recencyHalfLife = 7 * 24 * time.Hour
)

// DefaultMinRepoCandidates is K: when fewer repo-scoped candidates than
// this exist, global-scoped records join the candidate set.
const DefaultMinRepoCandidates = 3

// Context carries the caller's working state into scoring.
type Context struct {
	ActiveFile string
	Module     string
	Language   string
	Command    string

	// Now anchors expiry checks and decay. Zero means time.Now().
	Now time.Time

	// TopN caps how many records are selected.
	TopN int

	// TokenBudget caps the summed content token estimate of the
	// selection. Zero means no budget.
	TokenBudget int

	// MinRepoCandidates overrides K when positive.
	MinRepoCandidates int
}

// Engine ranks recall candidates from a backend.
type Engine struct {
	store store.Backend
	log   *slog.Logger
}

// New returns an engine reading and writing through b.
func New(b store.Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: b, log: logger}
}

type scored struct {
	rec    model.Record
	score  float64
	tokens int
}

// Recall returns the selected records in rank order. As a side effect it
// increments used_count and sets last_used_at on every selected record,
// and increments seen_count on every scored-but-not-selected candidate,
// persisting both through the backend.
func (e *Engine) Recall(ctx context.Context, prompt string, rc Context) ([]model.Record, error) {
	now := rc.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	topN := rc.TopN
	if topN <= 0 {
		topN = 5
	}
	minRepo := rc.MinRepoCandidates
	if minRepo <= 0 {
		minRepo = DefaultMinRepoCandidates
	}

	cands, err := e.store.Candidates(ctx, []model.Scope{model.ScopeRepo, model.ScopeDir}, now)
	if err != nil {
		return nil, err
	}
	if len(cands) < minRepo {
		global, err := e.store.Candidates(ctx, []model.Scope{model.ScopeGlobal}, now)
		if err != nil {
			return nil, err
		}
		cands = append(cands, global...)
	}

	promptTokens := tokenize(prompt)
	ranked := make([]scored, 0, len(cands))
	for i := range cands {
		ranked = append(ranked, scored{
			rec:    cands[i],
			score:  e.score(&cands[i], promptTokens, rc, now),
			tokens: estimateTokens(cands[i].Content),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if !ranked[i].rec.CreatedAt.Equal(ranked[j].rec.CreatedAt) {
			return ranked[i].rec.CreatedAt.After(ranked[j].rec.CreatedAt)
		}
		return ranked[i].rec.ID < ranked[j].rec.ID
	})

	var selected []model.Record
	usedTokens := 0
	selectedIDs := make(map[string]bool)
	for _, sc := range ranked {
		if len(selected) >= topN {
			break
		}
		if rc.TokenBudget > 0 && usedTokens+sc.tokens > rc.TokenBudget {
			// Skip records that do not fit and keep trying smaller ones.
			continue
		}
		usedTokens += sc.tokens
		selectedIDs[sc.rec.ID] = true
		selected = append(selected, sc.rec)
	}

	// Persist counter updates. Each update is its own backend call;
	// last-write-wins under contention.
	for i := range selected {
		c := selected[i].Counters
		c.UsedCount++
		t := now
		c.LastUsedAt = &t
		updated, err := e.store.Update(ctx, selected[i].ID, store.Mutation{Counters: &c})
		if err != nil {
			return nil, err
		}
		selected[i] = *updated
	}
	for _, sc := range ranked {
		if selectedIDs[sc.rec.ID] {
			continue
		}
		c := sc.rec.Counters
		c.SeenCount++
		if _, err := e.store.Update(ctx, sc.rec.ID, store.Mutation{Counters: &c}); err != nil {
			return nil, err
		}
	}

	e.log.Debug("recall complete",
		"candidates", len(ranked), "selected", len(selected), "tokens", usedTokens)
	return selected, nil
}

func (e *Engine) score(rec *model.Record, promptTokens map[string]bool, rc Context, now time.Time) float64 {
	recTokens := tokenize(rec.Content)
	for _, tag := range rec.Tags {
		for t := range tokenize(tag) {
			recTokens[t] = true
		}
	}
	s := overlap(promptTokens, recTokens)

	if rc.ActiveFile != "" && anySuffix(rc.ActiveFile, rec.Hints.Files) {
		s += boostFile
	}
	if rc.Module != "" && contains(rec.Hints.Modules, rc.Module) {
		s += boostModule
	}
	if rc.Language != "" && containsFold(rec.Hints.Languages, rc.Language) {
		s += boostLanguage
	}
	if rc.Command != "" && contains(rec.Hints.Commands, rc.Command) {
		s += boostCommand
	}

	ref := rec.CreatedAt
	if rec.Counters.LastUsedAt != nil {
		ref = *rec.Counters.LastUsedAt
	}
	age := now.Sub(ref)
	if age < 0 {
		age = 0
	}
	s += weightRecency * math.Pow(0.5, age.Hours()/recencyHalfLife.Hours())

	// Logarithmic so heavy use cannot dominate forever.
	s += weightFrequency * math.Log1p(float64(rec.Counters.UsedCount))

	return s
}

// tokenize splits on non-alphanumeric runes and lowercases, like the
// prompt side of the overlap score.
func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	}) {
		out[strings.ToLower(w)] = true
	}
	return out
}

// overlap is |prompt ∩ record| / |prompt|.
func overlap(prompt, rec map[string]bool) float64 {
	if len(prompt) == 0 || len(rec) == 0 {
		return 0
	}
	n := 0
	for t := range prompt {
		if rec[t] {
			n++
		}
	}
	return float64(n) / float64(len(prompt))
}

// estimateTokens approximates the token cost of content when rendered
// into a preamble.
func estimateTokens(content string) int {
	return len(strings.Fields(content))
}

func anySuffix(file string, hints []string) bool {
	for _, h := range hints {
		if h != "" && strings.HasSuffix(file, h) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
