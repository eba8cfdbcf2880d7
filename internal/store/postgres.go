package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// DB is the subset of *pgxpool.Pool used for writes.
// Satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ChangeHandler receives committed items as change events.
type ChangeHandler func(ctx context.Context, events []food.ChangeEvent)

// Postgres stores records in a table keyed by food_name. A trigger publishes
// every insert or update on a NOTIFY channel, which Watch turns into change
// events.
type Postgres struct {
	db      DB
	pool    *pgxpool.Pool
	channel string
}

// NewPostgres returns a store over pool publishing changes on channel.
func NewPostgres(pool *pgxpool.Pool, channel string) *Postgres {
	return &Postgres{db: pool, pool: pool, channel: channel}
}

// EnsureSchema creates table, its notify function and trigger if missing.
func (p *Postgres) EnsureSchema(ctx context.Context, table string) error {
	for _, stmt := range schemaStatements(table, p.channel) {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema for %s: %w", table, err)
		}
	}
	return nil
}

func schemaStatements(table, channel string) []string {
	tbl := pgx.Identifier{table}.Sanitize()
	fn := pgx.Identifier{table + "_notify_change"}.Sanitize()
	trg := pgx.Identifier{table + "_change"}.Sanitize()

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	food_name       TEXT PRIMARY KEY,
	scientific_name TEXT,
	"group"         TEXT,
	sub_group       TEXT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`, tbl),
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(%s, json_build_object('op', TG_OP, 'image', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`, fn, quoteLiteral(channel)),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trg, tbl),
		fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION %s()`, trg, tbl, fn),
	}
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (food_name, scientific_name, "group", sub_group)
VALUES ($1, $2, $3, $4)
ON CONFLICT (food_name) DO UPDATE SET
	scientific_name = EXCLUDED.scientific_name,
	"group"         = EXCLUDED."group",
	sub_group       = EXCLUDED.sub_group,
	updated_at      = now()`, pgx.Identifier{table}.Sanitize())
}

// BatchWrite upserts items in one round trip. The batch runs as a single
// implicit transaction, so on error nothing was committed and there are
// never unprocessed items.
func (p *Postgres) BatchWrite(ctx context.Context, table string, items []food.FoodRecord) ([]food.FoodRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	sql := upsertSQL(table)
	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(sql, it.FoodName, it.ScientificName, it.Group, it.SubGroup)
	}

	br := p.db.SendBatch(ctx, b)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, classifyPgError(table, len(items), err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, classifyPgError(table, len(items), err)
	}
	return nil, nil
}

// classifyPgError marks data, constraint and schema errors as permanent.
// Connection failures, serialization conflicts and anything else unknown
// are retryable.
func classifyPgError(table string, size int, err error) error {
	retryable := true
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "22"), // data exception
			strings.HasPrefix(pgErr.Code, "23"), // integrity constraint violation
			strings.HasPrefix(pgErr.Code, "42"): // syntax error or access rule violation
			retryable = false
		}
	}
	return &food.BatchWriteError{Table: table, Size: size, Retryable: retryable, Err: err}
}

// Reconnect waits for Watch, doubled after each consecutive failure.
const (
	watchMinBackoff = time.Second
	watchMaxBackoff = 30 * time.Second
)

// Watch listens on the notify channel and calls handle with each change
// until ctx is cancelled. A lost connection is re-acquired with backoff, so
// Watch only returns once ctx ends.
func (p *Postgres) Watch(ctx context.Context, handle ChangeHandler) error {
	log := logging.WithFields(ctx, "channel", p.channel)
	return watchLoop(ctx, log, watchMinBackoff, watchMaxBackoff, func(ctx context.Context, ready func()) error {
		return p.listen(ctx, log, handle, ready)
	})
}

// watchLoop runs listen until ctx ends. After each failure it waits, starting
// at minWait and doubling up to maxWait; listen calls ready once it is
// receiving again, which resets the wait.
func watchLoop(ctx context.Context, log *slog.Logger, minWait, maxWait time.Duration, listen func(ctx context.Context, ready func()) error) error {
	wait := minWait
	for {
		err := listen(ctx, func() { wait = minWait })
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("change watcher disconnected, reconnecting", "retry_in", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		wait = min(wait*2, maxWait)
	}
}

// listen holds one pool connection until it fails or ctx ends.
func (p *Postgres) listen(ctx context.Context, log *slog.Logger, handle ChangeHandler, ready func()) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", p.channel, err)
	}
	ready()
	log.Info("watching for changes")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		ev, err := decodeNotification(n.Payload)
		if err != nil {
			log.Warn("skipping malformed notification", "error", err)
			continue
		}
		if ev == nil {
			continue
		}
		handle(ctx, []food.ChangeEvent{*ev})
	}
}

type notification struct {
	Op    string             `json:"op"`
	Image map[string]*string `json:"image"`
}

// decodeNotification turns a trigger payload into a change event. It
// returns nil for operations that carry no new image.
func decodeNotification(payload string) (*food.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, &food.MalformedEventError{Kind: "change", Reason: err.Error()}
	}
	if n.Op != "INSERT" && n.Op != "UPDATE" {
		return nil, nil
	}
	if n.Image == nil {
		return nil, &food.MalformedEventError{Kind: "change", Reason: "notification has no image"}
	}

	image := make(map[string]string, len(n.Image))
	for k, v := range n.Image {
		if v != nil {
			image[k] = *v
		}
	}
	ev := food.ChangeEventFromImage(uuid.NewString(), image)
	return &ev, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
