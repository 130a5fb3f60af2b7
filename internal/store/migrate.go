package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MigrateResult reports the outcome of a migration run.
type MigrateResult struct {
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
}

// Migrate copies every record from src into dst, preserving ids,
// timestamps and counters exactly. The source is never mutated. The run
// fails as a whole when dst already holds one of the ids; records that
// fail validation are skipped with a warning and counted.
func Migrate(ctx context.Context, src, dst Backend, logger *slog.Logger) (MigrateResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res MigrateResult

	recs, err := src.List(ctx, Filter{})
	if err != nil {
		return res, fmt.Errorf("read source: %w", err)
	}

	for i := range recs {
		_, err := dst.Create(ctx, CreateParams{Record: recs[i], Import: true})
		switch {
		case err == nil:
			res.Migrated++
		case errors.Is(err, ErrConflictingID):
			return res, err
		case errors.Is(err, ErrValidation):
			logger.Warn("skipping invalid record", "id", recs[i].ID, "err", err)
			res.Skipped++
		default:
			return res, fmt.Errorf("write record %s: %w", recs[i].ID, err)
		}
	}
	return res, nil
}
