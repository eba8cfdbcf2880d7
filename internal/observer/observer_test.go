package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JonMunkholm/foodingest/internal/food"
	"github.com/JonMunkholm/foodingest/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestObserver_NotPresentDefaults(t *testing.T) {
	var buf bytes.Buffer
	o := New(logging.New(&buf, "info", "json"))

	ev := food.ChangeEventFromImage("evt-1", map[string]string{"food_name": "apple", "group": "fruit"})
	sum := o.HandleBatch(context.Background(), []food.ChangeEvent{ev})
	if sum.Logged != 1 || sum.Malformed != 0 {
		t.Errorf("summary = %+v", sum)
	}

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1", len(lines))
	}
	want := map[string]string{
		"msg":             "new item successfully created",
		"food_name":       "apple",
		"scientific_name": food.NotPresent,
		"group":           "fruit",
		"sub_group":       food.NotPresent,
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %q", k, lines[0][k], v)
		}
	}
}

func TestObserver_EmptyValueIsNotAbsent(t *testing.T) {
	var buf bytes.Buffer
	o := New(logging.New(&buf, "info", "json"))

	ev := food.ChangeEventFromImage("evt-1", map[string]string{"food_name": "apple", "group": ""})
	o.HandleBatch(context.Background(), []food.ChangeEvent{ev})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1", len(lines))
	}
	if got := lines[0]["group"]; got != "" {
		t.Errorf("group = %v, want empty string", got)
	}
	if got := lines[0]["sub_group"]; got != food.NotPresent {
		t.Errorf("sub_group = %v, want %q", got, food.NotPresent)
	}
}

func TestObserver_MalformedDoesNotStopBatch(t *testing.T) {
	var buf bytes.Buffer
	o := New(logging.New(&buf, "info", "json"))

	events := []food.ChangeEvent{
		food.ChangeEventFromImage("evt-1", map[string]string{"group": "fruit"}),
		food.ChangeEventFromImage("evt-2", map[string]string{"food_name": "kiwi"}),
	}
	sum := o.HandleBatch(context.Background(), events)
	if sum.Logged != 2 || sum.Malformed != 1 {
		t.Errorf("summary = %+v, want 2 logged, 1 malformed", sum)
	}

	var created int
	for _, line := range decodeLines(t, &buf) {
		if line["msg"] == "new item successfully created" {
			created++
		}
	}
	if created != 2 {
		t.Errorf("created lines = %d, want 2", created)
	}
}
