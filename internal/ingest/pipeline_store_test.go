package ingest_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/store"
)

type blobMap map[string]string

func (b blobMap) Get(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := b[bucket+"/"+key]
	if !ok {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: fmt.Errorf("no such key")}
	}
	return []byte(data), nil
}

// holdFirst leaves the first item of the first call unwritten and hands it
// back as unprocessed, then passes everything through.
type holdFirst struct {
	mu    sync.Mutex
	calls int
	next  ingest.BatchWriter
}

func (h *holdFirst) BatchWrite(ctx context.Context, table string, items []food.FoodRecord) ([]food.FoodRecord, error) {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()
	if first && len(items) > 0 {
		if _, err := h.next.BatchWrite(ctx, table, items[1:]); err != nil {
			return nil, err
		}
		return items[:1], nil
	}
	return h.next.BatchWrite(ctx, table, items)
}

func testOptions() ingest.Options {
	opts := ingest.DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	opts.MaxBackoff = time.Millisecond
	return opts
}

const header = "Food Name,Scientific Name,Group,Sub Group\n"

func TestPipeline_ReuploadKeepsLatestValues(t *testing.T) {
	mem := store.NewMemory(nil)
	blobs := blobMap{
		"uploads/v1.csv": header +
			"Angelica,Angelica keiskei,Herbs and Spices,Herbs\n" +
			"Savoy cabbage,Brassica oleracea var. sabauda,Vegetables,Cabbages\n",
		"uploads/v2.csv": header +
			"Angelica,Angelica archangelica,Herbs and Spices,Herbs\n" +
			"Savoy cabbage,Brassica oleracea var. sabauda,Vegetables,Cabbages\n" +
			"Kiwi,Actinidia chinensis,Fruits,Tropical fruits\n",
	}
	p := ingest.NewPipeline(blobs, ingest.NewCoordinator(mem, "foods", testOptions(), nil), 0)

	for _, key := range []string{"v1.csv", "v2.csv"} {
		if _, err := p.Handle(context.Background(), food.RawUploadEvent{Bucket: "uploads", Key: key}); err != nil {
			t.Fatalf("Handle(%s) error = %v", key, err)
		}
	}

	items := mem.Items("foods")
	if len(items) != 3 {
		t.Fatalf("items = %+v, want 3", items)
	}
	angelica, ok := mem.Get("foods", "Angelica")
	if !ok || angelica.ScientificName != "Angelica archangelica" {
		t.Errorf("Angelica = %+v, want the second upload's values", angelica)
	}
	if _, ok := mem.Get("foods", "Kiwi"); !ok {
		t.Error("Kiwi missing after second upload")
	}
}

func TestPipeline_RetriedRowDoesNotOverwriteLaterRow(t *testing.T) {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("apple,Malus domestica,OLD,Pomes\n")
	for i := 1; i < 25; i++ {
		fmt.Fprintf(&b, "filler-%02d,species %d,Fillers,Misc\n", i, i)
	}
	b.WriteString("apple,Malus domestica,NEW,Pomes\n")

	mem := store.NewMemory(nil)
	blobs := blobMap{"uploads/foods.csv": b.String()}
	coord := ingest.NewCoordinator(&holdFirst{next: mem}, "foods", testOptions(), nil)
	p := ingest.NewPipeline(blobs, coord, 0)

	res, err := p.Handle(context.Background(), food.RawUploadEvent{Bucket: "uploads", Key: "foods.csv"})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(res.Failed) != 0 {
		t.Errorf("Failed = %+v, want none", res.Failed)
	}

	apple, ok := mem.Get("foods", "apple")
	if !ok || apple.Group != "NEW" {
		t.Errorf("apple = %+v, want group NEW", apple)
	}
	if got := len(mem.Items("foods")); got != 25 {
		t.Errorf("items = %d, want 25", got)
	}
}
