package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/ingest"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

// argDB records Exec arguments.
type argDB struct {
	fakeDB
	args [][]any
}

func (a *argDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	a.args = append(a.args, args)
	return a.fakeDB.Exec(ctx, sql, args...)
}

func TestPostgresDeadLetter_Send(t *testing.T) {
	db := &argDB{}
	d := NewPostgresDeadLetter(db, "foods_dead_letters", "foods")

	id := uuid.New()
	ctx := logging.WithInvocation(context.Background(), id.String())
	failed := ingest.FailedRecord{
		Record:   food.FoodRecord{FoodName: "kiwi", Group: "fruit"},
		Attempts: 3,
		Reason:   "gave up",
	}
	if err := d.Send(ctx, failed); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(db.execs) != 1 || !strings.Contains(db.execs[0], `INSERT INTO "foods_dead_letters"`) {
		t.Fatalf("execs = %v", db.execs)
	}
	args := db.args[0]
	if got := args[1].(pgtype.UUID); !got.Valid || uuid.UUID(got.Bytes) != id {
		t.Errorf("invocation_id = %v, want %s", got, id)
	}
	if args[2] != "foods" || args[3] != "kiwi" || args[5] != 3 {
		t.Errorf("args = %v", args)
	}
	var rec food.FoodRecord
	if err := json.Unmarshal(args[4].([]byte), &rec); err != nil || rec != failed.Record {
		t.Errorf("record = %+v, %v", rec, err)
	}
}

func TestToPgUUID(t *testing.T) {
	if got := toPgUUID(""); got.Valid {
		t.Error("empty id should be NULL")
	}
	if got := toPgUUID("not-a-uuid"); got.Valid {
		t.Error("invalid id should be NULL")
	}
	if got := toPgUUID(uuid.NewString()); !got.Valid {
		t.Error("valid id should be set")
	}
}
