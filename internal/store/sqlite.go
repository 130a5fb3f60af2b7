package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tobyv/membank/internal/model"
)

// SQLiteStore persists records in an embedded SQLite database.
// Structured columns for id/scope/status/kind/content/timestamps, opaque
// JSON columns for tags, hints and counters. Every mutating operation is
// a single transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create db dir: %v", ErrBackendUnavailable, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", ErrBackendUnavailable, err)
	}
	// One shared connection keeps writes serialized within the process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate schema: %v", ErrBackendUnavailable, err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id             TEXT PRIMARY KEY,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		schema_version INTEGER NOT NULL DEFAULT 1,
		source         TEXT NOT NULL DEFAULT '',
		scope          TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'active',
		kind           TEXT NOT NULL,
		content        TEXT NOT NULL,
		tags           TEXT,
		hints          TEXT,
		counters       TEXT,
		expires_at     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_scope_status ON memories(scope, status);
	CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// timeFmt is a fixed-width RFC3339 variant so stored timestamps compare
// correctly as strings.
const timeFmt = "2006-01-02T15:04:05.000000000Z07:00"

const recordCols = `id, created_at, updated_at, schema_version, source,
	scope, status, kind, content, tags, hints, counters, expires_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex execer, rec *model.Record) error {
	var tagsJSON, hintsJSON *string
	if len(rec.Tags) > 0 {
		b, _ := json.Marshal(rec.Tags)
		str := string(b)
		tagsJSON = &str
	}
	if !rec.Hints.Empty() {
		b, _ := json.Marshal(rec.Hints)
		str := string(b)
		hintsJSON = &str
	}
	countersJSON, err := json.Marshal(rec.Counters)
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	var expiresAt *string
	if rec.ExpiresAt != nil {
		str := rec.ExpiresAt.UTC().Format(timeFmt)
		expiresAt = &str
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO memories (`+recordCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UTC().Format(timeFmt),
		rec.UpdatedAt.UTC().Format(timeFmt),
		rec.SchemaVersion,
		rec.Source,
		string(rec.Scope),
		string(rec.Status),
		string(rec.Kind),
		rec.Content,
		tagsJSON,
		hintsJSON,
		string(countersJSON),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var rec model.Record
	var createdAt, updatedAt, scope, status, kind string
	var tags, hints, counters, expiresAt sql.NullString

	err := row.Scan(
		&rec.ID, &createdAt, &updatedAt, &rec.SchemaVersion, &rec.Source,
		&scope, &status, &kind, &rec.Content, &tags, &hints, &counters, &expiresAt,
	)
	if err != nil {
		return rec, err
	}

	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return rec, fmt.Errorf("created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return rec, fmt.Errorf("updated_at: %w", err)
	}
	rec.Scope, rec.Status, rec.Kind = model.Scope(scope), model.Status(status), model.Kind(kind)
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return rec, fmt.Errorf("tags: %w", err)
		}
	}
	if hints.Valid {
		if err := json.Unmarshal([]byte(hints.String), &rec.Hints); err != nil {
			return rec, fmt.Errorf("hints: %w", err)
		}
	}
	if counters.Valid {
		if err := json.Unmarshal([]byte(counters.String), &rec.Counters); err != nil {
			return rec, fmt.Errorf("counters: %w", err)
		}
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil {
			return rec, fmt.Errorf("expires_at: %w", err)
		}
		rec.ExpiresAt = &t
	}
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *SQLiteStore) Create(ctx context.Context, p CreateParams) (*model.Record, error) {
	rec, err := prepareCreate(p, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	if p.Import {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, rec.ID).Scan(&one)
		if err == nil {
			return nil, fmt.Errorf("%w: %s", ErrConflictingID, rec.ID)
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	if err := insertRecord(ctx, tx, &rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &CorruptRecordError{Source: s.path, Err: err}
	}
	return &rec, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, mut Mutation) (*model.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, &CorruptRecordError{Source: s.path, Err: err}
	}

	updated, err := mut.apply(rec, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := insertRecord(ctx, tx, &updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// queryRecords runs a SELECT and scans all rows, skipping corrupt rows
// with a warning.
func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.log.Warn("skipping corrupt record",
				"err", &CorruptRecordError{Source: s.path, Err: err})
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.Record, error) {
	where := []string{"1=1"}
	var args []interface{}
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	for _, tag := range f.Tags {
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+tag+`"%`)
	}

	query := `SELECT ` + recordCols + ` FROM memories WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at ASC, id ASC`
	recs, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// LIKE over the JSON tags column can overmatch on substrings,
	// re-check in memory.
	if len(f.Tags) > 0 {
		kept := recs[:0]
		for i := range recs {
			if f.matches(&recs[i]) {
				kept = append(kept, recs[i])
			}
		}
		recs = kept
	}
	return recs, nil
}

func (s *SQLiteStore) Candidates(ctx context.Context, scopes []model.Scope, now time.Time) ([]model.Record, error) {
	if len(scopes) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(scopes)), ",")
	args := make([]interface{}, 0, len(scopes)+1)
	for _, sc := range scopes {
		args = append(args, string(sc))
	}
	args = append(args, now.UTC().Format(timeFmt))

	query := `SELECT ` + recordCols + ` FROM memories
		WHERE status = 'active' AND scope IN (` + placeholders + `)
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at ASC, id ASC`
	return s.queryRecords(ctx, query, args...)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByScope:  make(map[model.Scope]int),
		ByStatus: make(map[model.Status]int),
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories`).Scan(&st.Total); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, status, COUNT(*) FROM memories GROUP BY scope, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var scope, status string
		var n int
		if err := rows.Scan(&scope, &status, &n); err != nil {
			return nil, err
		}
		st.ByScope[model.Scope(scope)] += n
		st.ByStatus[model.Status(status)] += n
	}
	return st, rows.Err()
}

func (s *SQLiteStore) ExportLines(ctx context.Context, w io.Writer) error {
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

func (s *SQLiteStore) ImportLines(ctx context.Context, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read import: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer tx.Rollback()

	count := 0
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return 0, &CorruptRecordError{Source: "import", Line: lineNo + 1, Err: err}
		}
		prepared, err := prepareCreate(CreateParams{Record: rec, Import: true}, time.Now().UTC())
		if err != nil {
			return 0, fmt.Errorf("import line %d: %w", lineNo+1, err)
		}
		var one int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, prepared.ID).Scan(&one)
		if err == nil {
			return 0, fmt.Errorf("%w: %s", ErrConflictingID, prepared.ID)
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
		if err := insertRecord(ctx, tx, &prepared); err != nil {
			return 0, err
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Compact optionally drops expired archived records, then reclaims free
// pages with VACUUM. VACUUM cannot run inside a transaction.
func (s *SQLiteStore) Compact(ctx context.Context, policy CompactPolicy) (CompactResult, error) {
	var res CompactResult
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories`).Scan(&res.Examined); err != nil {
		return res, err
	}

	if policy.DropExpiredArchived {
		now := policy.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		r, err := s.db.ExecContext(ctx,
			`DELETE FROM memories
			 WHERE status = 'archived' AND expires_at IS NOT NULL AND expires_at <= ?`,
			now.UTC().Format(timeFmt))
		if err != nil {
			return res, err
		}
		if n, err := r.RowsAffected(); err == nil {
			res.Dropped = int(n)
		}
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return res, fmt.Errorf("vacuum: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Backend = (*SQLiteStore)(nil)
