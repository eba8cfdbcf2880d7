package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/foodingest/internal/food"
)

func newTestService(w BatchWriter, blobs BlobReader, limiter *Limiter) *Service {
	p := NewPipeline(blobs, newTestCoordinator(w, DefaultOptions(), nil), time.Minute)
	return NewService(p, limiter, time.Minute)
}

func TestService_Ingest(t *testing.T) {
	blobs := fakeBlobs{"uploads/foods.csv": []byte(sampleCSV)}
	svc := newTestService(&fakeWriter{}, blobs, NewLimiter(1, time.Second))

	res, err := svc.Ingest(context.Background(), food.RawUploadEvent{Bucket: "uploads", Key: "foods.csv"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.InvocationID == "" {
		t.Fatal("InvocationID is empty")
	}
	if res.Status != StatusComplete || res.Committed != 2 {
		t.Errorf("result = %+v", res)
	}

	got, err := svc.Result(res.InvocationID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if got.Status != StatusComplete || got.Bucket != "uploads" || got.Key != "foods.csv" {
		t.Errorf("stored result = %+v", got)
	}
}

func TestService_PartialAndFailed(t *testing.T) {
	blobs := fakeBlobs{"uploads/foods.csv": []byte(sampleCSV)}
	w := &fakeWriter{
		respond: func(call int, items []food.FoodRecord) ([]food.FoodRecord, error) {
			return nil, &food.BatchWriteError{Table: "foods", Size: len(items), Err: errors.New("invalid")}
		},
	}
	svc := newTestService(w, blobs, NewLimiter(1, time.Second))

	res, err := svc.Ingest(context.Background(), food.RawUploadEvent{Bucket: "uploads", Key: "foods.csv"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if res.Status != StatusPartial || len(res.Failed) != 2 {
		t.Errorf("status = %s, failed = %d, want partial with 2 failed", res.Status, len(res.Failed))
	}

	res, err = svc.Ingest(context.Background(), food.RawUploadEvent{Bucket: "uploads", Key: "missing.csv"})
	if err == nil {
		t.Fatal("Ingest() error = nil, want blob read error")
	}
	if res.Status != StatusFailed || res.Error == "" {
		t.Errorf("result = %+v, want failed with error", res)
	}
}

func TestService_IngestAllIsolatesEvents(t *testing.T) {
	blobs := fakeBlobs{"uploads/foods.csv": []byte(sampleCSV)}
	w := &fakeWriter{}
	svc := newTestService(w, blobs, NewLimiter(1, time.Second))

	events := []food.RawUploadEvent{
		{Bucket: "uploads", Key: "missing.csv"},
		{Bucket: "uploads", Key: "foods.csv"},
	}
	results, err := svc.IngestAll(context.Background(), events)
	if err == nil {
		t.Error("IngestAll() error = nil, want the missing object error")
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[1].Status != StatusComplete || results[1].Committed != 2 {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestService_TooManyInvocations(t *testing.T) {
	limiter := NewLimiter(1, 10*time.Millisecond)
	svc := newTestService(&fakeWriter{}, fakeBlobs{}, limiter)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer limiter.Release()

	_, err := svc.Ingest(context.Background(), food.RawUploadEvent{Bucket: "b", Key: "k"})
	if !errors.Is(err, food.ErrTooManyInvocations) {
		t.Errorf("Ingest() error = %v, want ErrTooManyInvocations", err)
	}
}

func TestService_ResultNotFound(t *testing.T) {
	svc := newTestService(&fakeWriter{}, fakeBlobs{}, NewLimiter(1, time.Second))

	if _, err := svc.Result("nope"); !errors.Is(err, ErrInvocationNotFound) {
		t.Errorf("Result() error = %v, want ErrInvocationNotFound", err)
	}
}
