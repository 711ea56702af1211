package report

import (
	"context"
	"database/sql"
)

// PostgresFlagWriter inserts flag records into the flagged_purchases table.
// Schema lives in migrations/ and is applied with cmd/migrate.
type PostgresFlagWriter struct {
	db *sql.DB
}

var _ FlagWriter = (*PostgresFlagWriter)(nil)

// NewPostgresFlagWriter creates a writer over an open connection pool.
func NewPostgresFlagWriter(db *sql.DB) *PostgresFlagWriter {
	return &PostgresFlagWriter{db: db}
}

func (w *PostgresFlagWriter) WriteFlag(ctx context.Context, rec *FlagRecord) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO flagged_purchases (event_type, purchased_at, customer_id, amount, pool_mean, pool_sd)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.EventType, rec.Timestamp, rec.ID, rec.Amount, rec.Mean, rec.SD)
	return err
}
