package ingest

import (
	"context"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// BlobReader fetches the raw bytes of one uploaded object. Implementations
// return a *food.BlobReadError when the object is missing or unreadable.
type BlobReader interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// BatchWriter stores up to 25 records in a single call.
//
// On success it returns the records the store did not commit (nil when all
// were committed). A non-nil error means the call was rejected and none of
// the records were committed; return a *food.BatchWriteError to say whether
// repeating the call can help.
type BatchWriter interface {
	BatchWrite(ctx context.Context, table string, items []food.FoodRecord) (unprocessed []food.FoodRecord, err error)
}

// DeadLetter receives records that will never be committed.
type DeadLetter interface {
	Send(ctx context.Context, failed FailedRecord) error
}

// DeadLetterFunc adapts a function to the DeadLetter interface.
type DeadLetterFunc func(ctx context.Context, failed FailedRecord) error

// Send calls f.
func (f DeadLetterFunc) Send(ctx context.Context, failed FailedRecord) error {
	return f(ctx, failed)
}
