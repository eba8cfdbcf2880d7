package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
	"github.com/JonMunkholm/foodingest/internal/normalize"
)

// Pipeline handles one upload event end to end: validate, read, normalize,
// write. It holds no per-invocation state and is safe for concurrent use.
type Pipeline struct {
	blobs   BlobReader
	coord   *Coordinator
	timeout time.Duration
}

// NewPipeline returns a pipeline. A zero timeout leaves the execution
// budget to the caller's context.
func NewPipeline(blobs BlobReader, coord *Coordinator, timeout time.Duration) *Pipeline {
	return &Pipeline{blobs: blobs, coord: coord, timeout: timeout}
}

// Handle processes ev. A BlobReadError or ParseError aborts before any write.
// Otherwise the write result is returned even when some records failed; the
// error is non-nil only when the execution budget ran out.
func (p *Pipeline) Handle(ctx context.Context, ev food.RawUploadEvent) (*WriteResult, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log := logging.WithFields(ctx, "bucket", ev.Bucket, "key", ev.Key)

	data, err := p.blobs.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		var bre *food.BlobReadError
		if !errors.As(err, &bre) {
			err = &food.BlobReadError{Bucket: ev.Bucket, Key: ev.Key, Err: err}
		}
		log.Error("read object failed", "error", err)
		return nil, err
	}

	rows, err := normalize.Bytes(data)
	if err != nil {
		log.Error("parse object failed", "bytes", len(data), "error", err)
		return nil, err
	}
	log.Info("object parsed", "bytes", len(data), "rows", len(rows))

	records := make([]food.FoodRecord, len(rows))
	for i, row := range rows {
		records[i] = food.RecordFromRow(row)
	}

	return p.coord.Write(ctx, records)
}
