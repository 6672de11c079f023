package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type recorder struct {
	got []Event
	err error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return r.err
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	a, b := &recorder{}, &recorder{err: boom}
	err := Multi{a, Nop{}, b}.Publish(context.Background(), New(ResultSubmitted, "r1", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("want joined broker error, got %v", err)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("every sink should receive the event: %d %d", len(a.got), len(b.got))
	}
}

func TestEventLogAppendAndSince(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, "file:eventlog_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	log := NewEventLog(conn, "")
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := log.Publish(ctx, New(ResultSubmitted, id, map[string]string{"result_id": id})); err != nil {
			t.Fatal(err)
		}
	}
	// Other sites are not visible.
	if err := NewEventLog(conn, "remote").Publish(ctx, New(ResultGraded, "x", nil)); err != nil {
		t.Fatal(err)
	}

	all, err := log.Since(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Key != "r1" || all[2].Key != "r3" {
		t.Fatalf("got %+v", all)
	}
	var payload map[string]string
	if err := json.Unmarshal(all[1].Data, &payload); err != nil || payload["result_id"] != "r2" {
		t.Fatalf("payload = %s (%v)", all[1].Data, err)
	}

	rest, err := log.Since(ctx, all[0].Seq, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].Key != "r2" {
		t.Fatalf("got %+v", rest)
	}
}
