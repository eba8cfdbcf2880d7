// Package observer reports items committed to the store.
package observer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// Summary counts the outcome of one delivered batch.
type Summary struct {
	Logged    int `json:"logged"`
	Malformed int `json:"malformed"`
}

// Observer logs one line per committed item. It never fails the batch;
// a bad item is logged and the rest still get reported.
type Observer struct {
	logger *slog.Logger
}

// New returns an Observer. A nil logger uses the context logger.
func New(logger *slog.Logger) *Observer {
	return &Observer{logger: logger}
}

// HandleBatch reports every event in order.
func (o *Observer) HandleBatch(ctx context.Context, events []food.ChangeEvent) Summary {
	var sum Summary
	for _, ev := range events {
		if err := o.handle(ctx, ev); err != nil {
			sum.Malformed++
			o.log(ctx).Warn("malformed change event", "event_id", ev.EventID, "error", err)
		}
		sum.Logged++
	}
	return sum
}

// Handle is HandleBatch's signature minus the summary, for store watchers.
func (o *Observer) Handle(ctx context.Context, events []food.ChangeEvent) {
	o.HandleBatch(ctx, events)
}

func (o *Observer) handle(ctx context.Context, ev food.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic reporting change: %v", r)
		}
	}()

	verr := ev.Validate()
	o.log(ctx).Info("new item successfully created",
		"event_id", ev.EventID,
		food.FieldFoodName, foodName(ev.FoodName),
		food.FieldScientificName, orNotPresent(ev.ScientificName),
		food.FieldGroup, orNotPresent(ev.Group),
		food.FieldSubGroup, orNotPresent(ev.SubGroup),
	)
	return verr
}

func (o *Observer) log(ctx context.Context) *slog.Logger {
	if o.logger != nil {
		return logging.Enrich(ctx, o.logger)
	}
	return logging.FromContext(ctx)
}

// orNotPresent substitutes only absent attributes; an empty value is logged
// as stored.
func orNotPresent(v *string) string {
	if v == nil {
		return food.NotPresent
	}
	return *v
}

// foodName is the image key, which an image without one leaves empty.
func foodName(name string) string {
	if name == "" {
		return food.NotPresent
	}
	return name
}
