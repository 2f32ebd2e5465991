package events

import (
	"context"
	"sync"
)

// MemoryPublisher collects events for tests and for deployments without a
// broker configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []StatusEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StatusEvent(nil), p.events...)
}
