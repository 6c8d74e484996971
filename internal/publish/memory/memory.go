// Package memory collects published events in memory, for tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"linkcast/internal/cast"
)

// Event is one captured publication.
type Event struct {
	Topic   string
	Payload []byte
}

// Publisher records every event it is asked to publish.
type Publisher struct {
	mu     sync.Mutex
	events []Event
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish captures the JSON-encoded payload and returns a synthetic
// message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: b})
	return fmt.Sprintf("mem-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

var _ cast.Publisher = (*Publisher)(nil)
