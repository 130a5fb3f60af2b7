package store

import (
	"errors"
	"fmt"
)

// Typed failures surfaced by both backends. Callers match with errors.Is.
var (
	// ErrNotFound means the operation targeted a nonexistent id.
	ErrNotFound = errors.New("record not found")

	// ErrValidation means the record failed validation before persistence.
	ErrValidation = errors.New("validation failed")

	// ErrConflictingID means an import or migration hit an id the
	// destination already holds.
	ErrConflictingID = errors.New("conflicting record id")

	// ErrBackendUnavailable means the underlying file or database could
	// not be opened.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRedactionRejected means the secret-likelihood check refused the
	// content. Callers may retry with AllowSecrets set.
	ErrRedactionRejected = errors.New("content looks like it contains a secret")
)

// CorruptRecordError describes a single unreadable line or row. Bulk
// scans skip these with a warning; it is fatal only when the corrupt
// record is the direct target of an operation.
type CorruptRecordError struct {
	Source string // file path or table name
	Line   int    // 1-based line number, 0 when not line-oriented
	Err    error
}

func (e *CorruptRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("corrupt record at %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("corrupt record in %s: %v", e.Source, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }
