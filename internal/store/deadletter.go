package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// PostgresDeadLetter records permanently failed records in a table so they
// can be inspected and replayed.
type PostgresDeadLetter struct {
	db     DB
	table  string
	target string
}

// NewPostgresDeadLetter writes to table. target is the store table the
// records were meant for.
func NewPostgresDeadLetter(db DB, table, target string) *PostgresDeadLetter {
	return &PostgresDeadLetter{db: db, table: table, target: target}
}

// EnsureSchema creates the dead-letter table if missing.
func (d *PostgresDeadLetter) EnsureSchema(ctx context.Context) error {
	_, err := d.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id            UUID PRIMARY KEY,
	invocation_id UUID,
	target_table  TEXT NOT NULL,
	food_name     TEXT NOT NULL,
	record        JSONB NOT NULL,
	attempts      INT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{d.table}.Sanitize()))
	if err != nil {
		return fmt.Errorf("ensure dead letter table %s: %w", d.table, err)
	}
	return nil
}

// Send inserts one row for failed. The invocation id is taken from ctx.
func (d *PostgresDeadLetter) Send(ctx context.Context, failed ingest.FailedRecord) error {
	record, err := json.Marshal(failed.Record)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	_, err = d.db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, invocation_id, target_table, food_name, record, attempts, reason)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, pgx.Identifier{d.table}.Sanitize()),
		uuid.New(),
		toPgUUID(logging.InvocationID(ctx)),
		d.target,
		failed.Record.FoodName,
		record,
		failed.Attempts,
		failed.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// toPgUUID converts s to a nullable UUID; invalid or empty ids become NULL.
func toPgUUID(s string) pgtype.UUID {
	u, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: u, Valid: true}
}
