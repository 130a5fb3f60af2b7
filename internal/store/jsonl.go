package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tobyv/membank/internal/model"
)

// JSONLStore persists records as one JSON object per line. Creates
// append; every other mutation rewrites the file to a temporary path and
// atomically renames it over the original, which is the backend's sole
// concurrency-safety mechanism.
type JSONLStore struct {
	path string
	log  *slog.Logger

	mu sync.Mutex // serializes writers on this handle
}

// NewJSONLStore prepares a flat-file store at path. The file itself is
// created lazily on first write.
func NewJSONLStore(path string, logger *slog.Logger) (*JSONLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", ErrBackendUnavailable, err)
	}
	return &JSONLStore{path: path, log: logger}, nil
}

// Path returns the store's file path.
func (s *JSONLStore) Path() string { return s.path }

// readAll streams the file once, deserializing each line independently.
// Malformed lines are skipped with a warning rather than aborting the
// whole read.
func (s *JSONLStore) readAll() ([]model.Record, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer f.Close()

	var recs []model.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			cerr := &CorruptRecordError{Source: s.path, Line: lineNo, Err: err}
			s.log.Warn("skipping corrupt record", "err", cerr)
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return recs, nil
}

// writeAll rewrites the whole store through a temp file and atomic
// rename. The temp file is removed on every failure path.
func (s *JSONLStore) writeAll(recs []model.Record) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memory-*.jsonl.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	enc := json.NewEncoder(tmp)
	for i := range recs {
		if err = enc.Encode(&recs[i]); err != nil {
			return fmt.Errorf("encode record %s: %w", recs[i].ID, err)
		}
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func (s *JSONLStore) appendLine(rec *model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return f.Sync()
}

func (s *JSONLStore) Create(ctx context.Context, p CreateParams) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := prepareCreate(p, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if p.Import {
		recs, err := s.readAll()
		if err != nil {
			return nil, err
		}
		for i := range recs {
			if recs[i].ID == rec.ID {
				return nil, fmt.Errorf("%w: %s", ErrConflictingID, rec.ID)
			}
		}
	}

	if err := s.appendLine(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *JSONLStore) Get(ctx context.Context, id string) (*model.Record, error) {
	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ID == id {
			rec := recs[i].Clone()
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *JSONLStore) Update(ctx context.Context, id string, mut Mutation) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range recs {
		if recs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated, err := mut.apply(recs[idx], time.Now().UTC())
	if err != nil {
		return nil, err
	}
	recs[idx] = updated

	if err := s.writeAll(recs); err != nil {
		return nil, err
	}
	out := updated.Clone()
	return &out, nil
}

func (s *JSONLStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return err
	}
	kept := recs[:0]
	found := false
	for i := range recs {
		if recs[i].ID == id {
			found = true
			continue
		}
		kept = append(kept, recs[i])
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.writeAll(kept)
}

func (s *JSONLStore) List(ctx context.Context, f Filter) ([]model.Record, error) {
	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for i := range recs {
		if f.matches(&recs[i]) {
			out = append(out, recs[i])
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *JSONLStore) Candidates(ctx context.Context, scopes []model.Scope, now time.Time) ([]model.Record, error) {
	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for i := range recs {
		r := &recs[i]
		if r.Status != model.StatusActive || r.Expired(now) || !scopeInSet(r.Scope, scopes) {
			continue
		}
		out = append(out, *r)
	}
	sortByCreated(out)
	return out, nil
}

func (s *JSONLStore) Stats(ctx context.Context) (*Stats, error) {
	recs, err := s.readAll()
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ByScope:  make(map[model.Scope]int),
		ByStatus: make(map[model.Status]int),
	}
	for i := range recs {
		st.Total++
		st.ByScope[recs[i].Scope]++
		st.ByStatus[recs[i].Status]++
	}
	return st, nil
}

func (s *JSONLStore) ExportLines(ctx context.Context, w io.Writer) error {
	recs, err := s.List(ctx, Filter{})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			return fmt.Errorf("export record %s: %w", recs[i].ID, err)
		}
	}
	return nil
}

func (s *JSONLStore) ImportLines(ctx context.Context, r io.Reader) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAll()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for i := range existing {
		seen[existing[i].ID] = true
	}

	var incoming []model.Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return 0, &CorruptRecordError{Source: "import", Line: lineNo, Err: err}
		}
		prepared, err := prepareCreate(CreateParams{Record: rec, Import: true}, time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("import line %d: %w", lineNo, err)
		}
		if seen[prepared.ID] {
			return 0, fmt.Errorf("%w: %s", ErrConflictingID, prepared.ID)
		}
		seen[prepared.ID] = true
		incoming = append(incoming, prepared)
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}
	if len(incoming) == 0 {
		return 0, nil
	}
	if err := s.writeAll(append(existing, incoming...)); err != nil {
		return 0, err
	}
	return len(incoming), nil
}

// Compact drops records matching the deletion policy, dedupes by id
// keeping the first occurrence, strips corrupt lines, and rewrites the
// file compactly.
func (s *JSONLStore) Compact(ctx context.Context, policy CompactPolicy) (CompactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := policy.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	recs, err := s.readAll()
	if err != nil {
		return CompactResult{}, err
	}

	res := CompactResult{Examined: len(recs)}
	seen := make(map[string]bool, len(recs))
	kept := recs[:0]
	for i := range recs {
		r := &recs[i]
		if seen[r.ID] {
			res.Dropped++
			continue
		}
		seen[r.ID] = true
		if policy.DropExpiredArchived && r.Status == model.StatusArchived && r.Expired(now) {
			res.Dropped++
			continue
		}
		kept = append(kept, *r)
	}

	if err := s.writeAll(kept); err != nil {
		return CompactResult{}, err
	}
	return res, nil
}

func (s *JSONLStore) Close() error { return nil }

var _ Backend = (*JSONLStore)(nil)
