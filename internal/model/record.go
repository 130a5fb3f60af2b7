// Package model defines the core memory record types.
package model

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// MaxContentLen is the maximum content length in runes.
const MaxContentLen = 240

// CurrentSchemaVersion is written into new records.
const CurrentSchemaVersion = 1

// Scope is the visibility breadth of a record.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeRepo   Scope = "repo"
	ScopeDir    Scope = "dir"
)

// Valid reports whether the scope is one of the recognized values.
func (s Scope) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeRepo, ScopeDir:
		return true
	}
	return false
}

// Status is the lifecycle state of a record.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusArchived
}

// Kind classifies a record for display and filtering.
type Kind string

const (
	KindPref        Kind = "pref"
	KindFact        Kind = "fact"
	KindInstruction Kind = "instruction"
	KindProfile     Kind = "profile"
	KindNote        Kind = "note"
)

func (k Kind) Valid() bool {
	switch k {
	case KindPref, KindFact, KindInstruction, KindProfile, KindNote:
		return true
	}
	return false
}

// Hints associates a record with files, modules, languages or commands.
// They only boost recall scores, they never restrict the candidate set.
type Hints struct {
	Files     []string `json:"files,omitempty"`
	Modules   []string `json:"modules,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Commands  []string `json:"commands,omitempty"`
}

// Empty reports whether no hints are set.
func (h Hints) Empty() bool {
	return len(h.Files) == 0 && len(h.Modules) == 0 &&
		len(h.Languages) == 0 && len(h.Commands) == 0
}

// Counters track recall usage. Both counts are monotonically
// non-decreasing and are updated by the recall engine, not by CRUD.
type Counters struct {
	SeenCount  uint64     `json:"seen_count"`
	UsedCount  uint64     `json:"used_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Record is a single memory entry. The JSON encoding doubles as the
// flat-file line format and the export format.
type Record struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SchemaVersion int        `json:"schema_version"`
	Source        string     `json:"source,omitempty"`
	Scope         Scope      `json:"scope"`
	Status        Status     `json:"status"`
	Kind          Kind       `json:"kind"`
	Content       string     `json:"content"`
	Tags          []string   `json:"tags,omitempty"`
	Hints         Hints      `json:"relevance_hints"`
	Counters      Counters   `json:"counters"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// NewID returns a fresh ULID string.
func NewID() string {
	return ulid.Make().String()
}

// Validate checks enum values and the content length bound.
func (r *Record) Validate() error {
	if r.Content == "" {
		return fmt.Errorf("content is required")
	}
	if n := utf8.RuneCountInString(r.Content); n > MaxContentLen {
		return fmt.Errorf("content is %d chars, max %d", n, MaxContentLen)
	}
	if !r.Scope.Valid() {
		return fmt.Errorf("invalid scope %q", r.Scope)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", r.Kind)
	}
	return nil
}

// Expired reports whether the record's expiry has passed at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// HasTag reports whether tag is present in the record's tag set.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.Hints.Files = append([]string(nil), r.Hints.Files...)
	c.Hints.Modules = append([]string(nil), r.Hints.Modules...)
	c.Hints.Languages = append([]string(nil), r.Hints.Languages...)
	c.Hints.Commands = append([]string(nil), r.Hints.Commands...)
	if r.Counters.LastUsedAt != nil {
		t := *r.Counters.LastUsedAt
		c.Counters.LastUsedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}
