// Package store provides the memory storage interface and its flat-file
// and SQLite implementations.
package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tobyv/membank/internal/model"
	"github.com/tobyv/membank/internal/redact"
)

// CreateParams holds parameters for persisting a new record.
type CreateParams struct {
	Record model.Record

	// AllowSecrets bypasses the secret-likelihood check.
	AllowSecrets bool

	// Import preserves the record's id, timestamps and counters exactly
	// instead of assigning fresh ones, and fails with ErrConflictingID
	// when the id already exists. Used by import and migration.
	Import bool
}

// Mutation is a partial update. Nil fields are left untouched.
// Scope is immutable after creation; changing it is delete+recreate.
type Mutation struct {
	Content     *string
	Kind        *model.Kind
	Status      *model.Status
	Tags        *[]string
	Hints       *model.Hints
	Counters    *model.Counters
	ExpiresAt   *time.Time
	ClearExpiry bool
}

// Filter selects records for List. Zero values match everything.
type Filter struct {
	Scope  model.Scope
	Status model.Status
	Kind   model.Kind
	Tags   []string // all listed tags must be present
}

// Stats holds cheap aggregate counts for diagnostics.
type Stats struct {
	Total    int                  `json:"total"`
	ByScope  map[model.Scope]int  `json:"by_scope"`
	ByStatus map[model.Status]int `json:"by_status"`
}

// CompactPolicy configures what compaction may drop. Compaction never
// deletes active records.
type CompactPolicy struct {
	// DropExpiredArchived removes records that are both archived and
	// past their expiry at Now.
	DropExpiredArchived bool
	Now                 time.Time
}

// CompactResult reports what compaction did.
type CompactResult struct {
	Examined int `json:"examined"`
	Dropped  int `json:"dropped"`
}

// Backend is the capability set both storage engines implement. Each
// call is atomic with respect to other calls on the same handle; a crash
// between calls leaves the store at the pre- or post-state of the last
// completed call, never a torn intermediate.
type Backend interface {
	// Create persists a record durably before returning. It validates
	// content length and enum values, runs the redaction check, and
	// assigns id/timestamps when absent.
	Create(ctx context.Context, p CreateParams) (*model.Record, error)

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Record, error)

	// Update applies a partial mutation and recomputes updated_at.
	// Unspecified fields are never clobbered.
	Update(ctx context.Context, id string, mut Mutation) (*model.Record, error)

	// Delete removes the record or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns records matching the filter, ordered by created_at
	// ascending (ties broken by id).
	List(ctx context.Context, f Filter) ([]model.Record, error)

	// Candidates returns active, non-expired records whose scope is in
	// the requested set. This is the only read path recall uses.
	Candidates(ctx context.Context, scopes []model.Scope, now time.Time) ([]model.Record, error)

	// Stats returns counts by scope and status.
	Stats(ctx context.Context) (*Stats, error)

	// ExportLines writes every record as one JSON line.
	ExportLines(ctx context.Context, w io.Writer) error

	// ImportLines reads JSON lines and persists them preserving ids,
	// timestamps and counters. Returns the number imported.
	ImportLines(ctx context.Context, r io.Reader) (int, error)

	// Compact reclaims physical space without changing the logical
	// record set, except for records the policy explicitly drops.
	Compact(ctx context.Context, policy CompactPolicy) (CompactResult, error)

	Close() error
}

// prepareCreate normalizes and validates a record before either backend
// persists it.
func prepareCreate(p CreateParams, now time.Time) (model.Record, error) {
	rec := p.Record.Clone()

	if p.Import {
		if rec.ID == "" {
			return rec, fmt.Errorf("%w: import requires an id", ErrValidation)
		}
	} else {
		if rec.ID == "" {
			rec.ID = model.NewID()
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now
		rec.Counters = model.Counters{}
	}
	if rec.Status == "" {
		rec.Status = model.StatusActive
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = model.CurrentSchemaVersion
	}

	if err := rec.Validate(); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !p.Import && !p.AllowSecrets {
		if rep := redact.Scan(rec.Content); rep.Blocked {
			return rec, fmt.Errorf("%w: %v", ErrRedactionRejected, rep.Issues)
		}
	}

	return rec, nil
}

// apply produces the mutated record and recomputes updated_at.
func (m Mutation) apply(rec model.Record, now time.Time) (model.Record, error) {
	out := rec.Clone()
	if m.Content != nil {
		out.Content = *m.Content
	}
	if m.Kind != nil {
		out.Kind = *m.Kind
	}
	if m.Status != nil {
		out.Status = *m.Status
	}
	if m.Tags != nil {
		out.Tags = append([]string(nil), (*m.Tags)...)
	}
	if m.Hints != nil {
		out.Hints = *m.Hints
	}
	if m.Counters != nil {
		out.Counters = *m.Counters
	}
	if m.ClearExpiry {
		out.ExpiresAt = nil
	} else if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		out.ExpiresAt = &t
	}
	out.UpdatedAt = now

	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, nil
}

// matches reports whether rec passes the filter.
func (f Filter) matches(rec *model.Record) bool {
	if f.Scope != "" && rec.Scope != f.Scope {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	for _, tag := range f.Tags {
		if !rec.HasTag(tag) {
			return false
		}
	}
	return true
}

// sortByCreated orders records by created_at ascending, then id, so both
// backends list in the same order.
func sortByCreated(recs []model.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

func scopeInSet(s model.Scope, set []model.Scope) bool {
	for _, sc := range set {
		if sc == s {
			return true
		}
	}
	return false
}
