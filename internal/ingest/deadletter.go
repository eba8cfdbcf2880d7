package ingest

import (
	"context"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// FailedRecord is a record that reached the failed-permanent state.
type FailedRecord struct {
	Record   food.FoodRecord `json:"record"`
	Attempts int             `json:"attempts"`
	Reason   string          `json:"reason"`
}

// LogDeadLetter writes each permanently failed record as an error log line.
// It is the default dead-letter path.
type LogDeadLetter struct{}

// Send logs failed.
func (LogDeadLetter) Send(ctx context.Context, failed FailedRecord) error {
	logging.FromContext(ctx).Error("record permanently failed",
		"food_name", failed.Record.FoodName,
		"attempts", failed.Attempts,
		"reason", failed.Reason,
	)
	return nil
}
