// Package audit records entitlement decisions for later inspection.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one entitlement decision.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Path      string    `json:"path"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	At        time.Time `json:"@timestamp"`
}

// NewEvent stamps a decision with a fresh ID and the current time.
func NewEvent(userID, path, status, reason string) Event {
	return Event{
		ID:     uuid.NewString(),
		UserID: userID,
		Path:   path,
		Status: status,
		Reason: reason,
		At:     time.Now().UTC(),
	}
}

// Recorder receives decisions. Implementations must not block the caller for long and must
// never fail the decision they record.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

type multi []Recorder

// Multi fans each event out to every recorder.
func Multi(recorders ...Recorder) Recorder {
	return multi(recorders)
}

func (m multi) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		r.Record(ctx, ev)
	}
}

type nop struct{}

// Nop discards events.
func Nop() Recorder { return nop{} }

func (nop) Record(context.Context, Event) {}
