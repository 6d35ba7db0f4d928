// Package events carries the notifications the data client emits after
// every successful write.
package events

import (
	"context"
	"sync"
	"time"
)

// Mutation actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// MutationEvent describes the rows one write touched. UserIDs holds the
// owning user of each row, so consumers can refresh whole profiles.
type MutationEvent struct {
	Model   string    `json:"model"`
	Action  string    `json:"action"`
	IDs     []string  `json:"ids"`
	UserIDs []string  `json:"userIds"`
	At      time.Time `json:"at"`
}

// Publisher delivers mutation events.
type Publisher interface {
	Publish(ctx context.Context, ev MutationEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, MutationEvent) error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on writes.
type Recorder struct {
	mu     sync.Mutex
	events []MutationEvent
}

func (r *Recorder) Publish(_ context.Context, ev MutationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []MutationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]MutationEvent(nil), r.events...)
}
