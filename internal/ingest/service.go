package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// ErrInvocationNotFound is returned for unknown or expired invocation ids.
var ErrInvocationNotFound = errors.New("invocation not found")

// Invocation status values.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
)

// Result is the externally visible record of one invocation.
type Result struct {
	InvocationID string `json:"invocation_id"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	Status       string `json:"status"`
	WriteResult
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Service runs invocations under the concurrency limit and keeps their
// results queryable for a retention window.
type Service struct {
	pipeline  *Pipeline
	limiter   *Limiter
	retention time.Duration

	mu          sync.RWMutex
	invocations map[string]*Result
}

// NewService returns a Service. A non-positive retention keeps results for
// one hour.
func NewService(pipeline *Pipeline, limiter *Limiter, retention time.Duration) *Service {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Service{
		pipeline:    pipeline,
		limiter:     limiter,
		retention:   retention,
		invocations: make(map[string]*Result),
	}
}

// Ingest runs one invocation for ev and waits for it to finish.
//
// The returned error is the fatal cause when the invocation could not run
// to completion (no slot, unreadable object, malformed CSV, budget
// exhausted). Per-record failures are reported in the result only.
func (s *Service) Ingest(ctx context.Context, ev food.RawUploadEvent) (*Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	id := uuid.New().String()
	ctx = logging.WithInvocation(ctx, id)
	log := logging.WithFields(ctx, "bucket", ev.Bucket, "key", ev.Key)

	res := &Result{
		InvocationID: id,
		Bucket:       ev.Bucket,
		Key:          ev.Key,
		Status:       StatusRunning,
		StartedAt:    time.Now(),
	}
	s.store(res)
	log.Info("invocation started")

	wr, err := s.pipeline.Handle(ctx, ev)

	final := *res
	if wr != nil {
		final.WriteResult = *wr
	}
	final.Duration = time.Since(res.StartedAt)
	switch {
	case err != nil:
		final.Status = StatusFailed
		final.Error = err.Error()
	case len(final.Failed) > 0:
		final.Status = StatusPartial
	default:
		final.Status = StatusComplete
	}
	s.store(&final)
	s.expire(id)

	if err != nil {
		log.Error("invocation failed", "error", err, "duration", final.Duration)
		return &final, err
	}
	log.Info("invocation finished",
		"status", final.Status,
		"committed", final.Committed,
		"failed", len(final.Failed),
		"duration", final.Duration,
	)
	return &final, nil
}

// IngestAll runs each event as an independent invocation, in order. One
// event's failure does not affect the others.
func (s *Service) IngestAll(ctx context.Context, events []food.RawUploadEvent) ([]*Result, error) {
	results := make([]*Result, 0, len(events))
	var errs []error
	for _, ev := range events {
		res, err := s.Ingest(ctx, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", ev.Bucket, ev.Key, err))
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

// Result returns a copy of the stored result for id.
func (s *Service) Result(id string) (*Result, error) {
	s.mu.RLock()
	res, ok := s.invocations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvocationNotFound, id)
	}
	out := *res
	return &out, nil
}

// Status returns the limiter snapshot.
func (s *Service) Status() LimiterStatus {
	return s.limiter.Status()
}

// WaitForInvocations blocks until running invocations finish or ctx ends.
func (s *Service) WaitForInvocations(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) store(res *Result) {
	s.mu.Lock()
	s.invocations[res.InvocationID] = res
	s.mu.Unlock()
}

// expire removes the result after the retention window.
func (s *Service) expire(id string) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.invocations, id)
		s.mu.Unlock()
	})
}
