package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EventLog appends events to the event_log table so they can be replayed by
// sequence number.
type EventLog struct {
	db     *sql.DB
	siteID string
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID}
}

func (l *EventLog) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.siteID, e.Type, e.Key, string(data), e.CreatedAt)
	return err
}

// LoggedEvent is a stored event with its sequence number and raw payload.
type LoggedEvent struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

// Since returns up to limit events with a sequence number greater than seq.
func (l *EventLog) Since(ctx context.Context, seq int64, limit int) ([]LoggedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, typ, key, data, created_at FROM event_log
		 WHERE site_id = $1 AND seq > $2 ORDER BY seq LIMIT $3`,
		l.siteID, seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LoggedEvent, 0)
	for rows.Next() {
		var (
			e    LoggedEvent
			data string
		)
		if err := rows.Scan(&e.Seq, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}
