// Package memory implements a Publisher that records job lifecycle events
// in process, standing in for Pub/Sub in development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one recorded publish call.
type Event struct {
	Topic   string
	Payload any
}

// Publisher collects events instead of delivering them.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty in-process Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("local-%d", len(p.events)), nil
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
