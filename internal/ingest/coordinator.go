package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/foodingest/internal/config"
	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// errUnprocessed is recorded on entries the store handed back unprocessed.
var errUnprocessed = errors.New("store returned item unprocessed")

// Options tunes batching and retries.
type Options struct {
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:    config.MaxBatchSize,
		MaxAttempts:  3,
		RetryBackoff: 200 * time.Millisecond,
		MaxBackoff:   5 * time.Second,
	}
}

// OptionsFromConfig builds Options from the ingest config section.
func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
		MaxBackoff:   cfg.MaxBackoff,
	}
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 || o.BatchSize > config.MaxBatchSize {
		o.BatchSize = config.MaxBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.MaxBackoff > 0 && o.RetryBackoff > o.MaxBackoff {
		o.RetryBackoff = o.MaxBackoff
	}
	return o
}

// backoff returns the wait before an entry's next attempt, doubling from
// RetryBackoff and capped at MaxBackoff.
func (o Options) backoff(attempts int) time.Duration {
	if attempts <= 0 || o.RetryBackoff <= 0 {
		return 0
	}
	d := o.RetryBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if o.MaxBackoff > 0 && d >= o.MaxBackoff {
			return o.MaxBackoff
		}
	}
	if o.MaxBackoff > 0 && d > o.MaxBackoff {
		return o.MaxBackoff
	}
	return d
}

// WriteResult summarizes one Coordinator.Write call. Superseded counts
// failed-retryable records dropped because a later input row with the same
// food_name replaces them.
type WriteResult struct {
	Total      int            `json:"total_records"`
	Committed  int            `json:"committed"`
	Retried    int            `json:"retried"`
	Batches    int            `json:"batches"`
	Superseded int            `json:"superseded,omitempty"`
	Abandoned  int            `json:"abandoned,omitempty"`
	Failed     []FailedRecord `json:"failed,omitempty"`
}

// Coordinator groups records into batches and drives each record through
// the retry state machine until it is committed or permanently failed.
// Batches are issued one at a time, in order.
type Coordinator struct {
	writer BatchWriter
	table  string
	opts   Options
	dlq    DeadLetter

	// sleep waits between retries; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator returns a coordinator writing to table. A nil dlq uses
// LogDeadLetter.
func NewCoordinator(writer BatchWriter, table string, opts Options, dlq DeadLetter) *Coordinator {
	if dlq == nil {
		dlq = LogDeadLetter{}
	}
	return &Coordinator{
		writer: writer,
		table:  table,
		opts:   opts.normalized(),
		dlq:    dlq,
		sleep:  sleepContext,
	}
}

// Table returns the target table identifier.
func (c *Coordinator) Table() string { return c.table }

// Write drains records through the store. Per-batch failures never stop
// later batches; they show up in the result. Write returns an error only
// when ctx ends before every record reached a final state, in which case the
// unfinished records are counted as Abandoned.
func (c *Coordinator) Write(ctx context.Context, records []food.FoodRecord) (*WriteResult, error) {
	log := logging.WithFields(ctx, "table", c.table)
	res := &WriteResult{Total: len(records)}
	q := newQueue(len(records))

	for i, rec := range records {
		e := &entry{record: rec, index: i}
		if err := rec.Validate(); err != nil {
			c.fail(ctx, log, res, q, e, err, false)
			continue
		}
		q.admit(e)
	}

	for q.len() > 0 {
		if err := ctx.Err(); err != nil {
			res.Abandoned += len(q.drain())
			log.Warn("execution budget exhausted", "abandoned", res.Abandoned, "error", err)
			return res, err
		}

		batch := q.take(c.opts.BatchSize)
		if wait := c.opts.backoff(maxAttempts(batch)); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				res.Abandoned += len(batch) + len(q.drain())
				log.Warn("execution budget exhausted during backoff", "abandoned", res.Abandoned, "error", err)
				return res, err
			}
		}

		// Batches are numbered from 0 in the logs.
		interrupted := c.writeBatch(ctx, log.With("batch", res.Batches), res, q, batch)
		res.Batches++
		if interrupted {
			res.Abandoned += len(q.drain())
			log.Warn("execution budget exhausted", "abandoned", res.Abandoned, "error", ctx.Err())
			return res, ctx.Err()
		}
	}

	log.Info("write complete",
		"total", res.Total,
		"committed", res.Committed,
		"retried", res.Retried,
		"superseded", res.Superseded,
		"failed", len(res.Failed),
		"batches", res.Batches,
	)
	return res, nil
}

// writeBatch sends one batch and settles every entry in it. It reports
// whether ctx ended during the call, leaving the batch abandoned.
func (c *Coordinator) writeBatch(ctx context.Context, log *slog.Logger, res *WriteResult, q *queue, batch []*entry) bool {
	items := make([]food.FoodRecord, len(batch))
	attempt := 0
	for i, e := range batch {
		e.state = StateInFlight
		e.attempts++
		attempt = max(attempt, e.attempts)
		items[i] = e.record
	}

	log.Info("preparing to upload batch", "size", len(items), "attempt", attempt)

	unprocessed, err := c.writer.BatchWrite(ctx, c.table, items)
	if err != nil && ctx.Err() != nil {
		// The budget ran out mid-call; the caller abandons what is left.
		res.Abandoned += len(batch)
		log.Warn("batch interrupted", "size", len(items), "error", err)
		return true
	}
	if err != nil {
		retryable := food.IsRetryable(err)
		log.Error("batch write failed", "size", len(items), "retryable", retryable, "error", err)
		for _, e := range batch {
			c.fail(ctx, log, res, q, e, err, retryable)
		}
		return false
	}

	left := matchUnprocessed(batch, unprocessed)
	if len(unprocessed) > 0 {
		log.Warn("batch partially processed", "size", len(items), "unprocessed", len(unprocessed))
	} else {
		log.Info("batch committed", "size", len(items))
	}

	for _, e := range batch {
		if left[e] {
			c.fail(ctx, log, res, q, e, errUnprocessed, true)
			continue
		}
		e.state = StateCommitted
		res.Committed++
	}
	return false
}

// fail moves e to failed-retryable and back to the tail of q when it has
// attempts left, or to failed-permanent and the dead letter otherwise. A
// retryable entry whose food_name appears again later in the input is
// dropped instead: resending it after the later row would undo that row.
func (c *Coordinator) fail(ctx context.Context, log *slog.Logger, res *WriteResult, q *queue, e *entry, err error, retryable bool) {
	if retryable && q.superseded(e) {
		e.state = StateCommitted
		res.Superseded++
		log.Debug("record superseded", "food_name", e.record.FoodName, "index", e.index, "latest", q.latest[e.record.FoodName])
		return
	}
	if retryable && e.attempts < c.opts.MaxAttempts {
		e.state = StateFailedRetryable
		log.Debug("record requeued", "food_name", e.record.FoodName, "state", e.state, "attempts", e.attempts, "error", err)
		if q.push(e) {
			res.Retried++
			return
		}
	}

	e.state = StateFailedPermanent
	log.Debug("record dead-lettered", "food_name", e.record.FoodName, "state", e.state, "attempts", e.attempts, "error", err)
	failed := FailedRecord{
		Record:   e.record,
		Attempts: e.attempts,
		Reason:   err.Error(),
	}
	if retryable {
		failed.Reason = fmt.Sprintf("gave up after %d attempts: %v", e.attempts, err)
	}
	res.Failed = append(res.Failed, failed)
	if dlqErr := c.dlq.Send(ctx, failed); dlqErr != nil {
		log.Error("dead letter send failed", "food_name", e.record.FoodName, "error", dlqErr)
	}
}

// matchUnprocessed maps the records the store handed back onto batch
// entries. Equal records are matched in batch order so duplicates within a
// batch are each accounted for once.
func matchUnprocessed(batch []*entry, unprocessed []food.FoodRecord) map[*entry]bool {
	left := make(map[*entry]bool, len(unprocessed))
	if len(unprocessed) == 0 {
		return left
	}

	byName := make(map[string][]*entry, len(batch))
	for _, e := range batch {
		byName[e.record.FoodName] = append(byName[e.record.FoodName], e)
	}

	for _, rec := range unprocessed {
		candidates := byName[rec.FoodName]
		idx := -1
		for i, e := range candidates {
			if e.record == rec {
				idx = i
				break
			}
		}
		if idx < 0 && len(candidates) > 0 {
			// The store may return a normalized copy; fall back to the key.
			idx = 0
		}
		if idx < 0 {
			continue
		}
		left[candidates[idx]] = true
		byName[rec.FoodName] = append(candidates[:idx:idx], candidates[idx+1:]...)
	}
	return left
}

func maxAttempts(batch []*entry) int {
	n := 0
	for _, e := range batch {
		n = max(n, e.attempts)
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
