package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// fakeWriter records every call and answers with respond, or commits
// everything when respond is nil.
type fakeWriter struct {
	mu      sync.Mutex
	calls   [][]food.FoodRecord
	tables  []string
	respond func(call int, items []food.FoodRecord) ([]food.FoodRecord, error)
}

func (w *fakeWriter) BatchWrite(ctx context.Context, table string, items []food.FoodRecord) ([]food.FoodRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, append([]food.FoodRecord(nil), items...))
	w.tables = append(w.tables, table)
	if w.respond == nil {
		return nil, nil
	}
	return w.respond(len(w.calls), items)
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

type memoryDeadLetter struct {
	mu     sync.Mutex
	failed []FailedRecord
}

func (d *memoryDeadLetter) Send(_ context.Context, f FailedRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed = append(d.failed, f)
	return nil
}

type fakeBlobs map[string][]byte

func (b fakeBlobs) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := b[bucket+"/"+key]
	if !ok {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: fmt.Errorf("no such key")}
	}
	return data, nil
}

func makeRecords(n int) []food.FoodRecord {
	out := make([]food.FoodRecord, n)
	for i := range out {
		out[i] = food.FoodRecord{
			FoodName:       fmt.Sprintf("food-%03d", i),
			ScientificName: fmt.Sprintf("species %d", i),
			Group:          "group",
			SubGroup:       "sub",
		}
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }
