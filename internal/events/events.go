package events

import (
	"context"
	"errors"
	"time"
)

const (
	ResultSubmitted = "quiz.result.submitted"
	ResultGraded    = "quiz.result.graded"
	ResultFinalized = "quiz.result.finalized"
	ConfigSaved     = "quiz.config.saved"
	QuestionsImport = "quiz.questions.imported"
)

// Event is a domain event. Key identifies the aggregate (result id, config id).
type Event struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	Payload   any    `json:"payload,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func New(typ, key string, payload any) Event {
	return Event{Type: typ, Key: key, Payload: payload, CreatedAt: time.Now().Unix()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
