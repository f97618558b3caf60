package events

import (
	"context"
	"sync"
)

// MemoryPublisher is a plain in-process fan-out broadcaster: the default
// events backend, used so the optional dashboard has something to
// subscribe to even with Redis disabled. There is no library in the
// retrieved example pack offering an in-process pub/sub primitive beyond
// channels, so this is plain buffered channels rather than a third-party
// dependency.
type MemoryPublisher struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewMemoryPublisher returns an empty in-process publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener. The returned channel is closed by
// Unsubscribe or Close; the caller must range over it rather than assume
// delivery.
func (p *MemoryPublisher) Subscribe() chan Event {
	ch := make(chan Event, 64)
	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (p *MemoryPublisher) Unsubscribe(ch chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subscribers[ch]; ok {
		delete(p.subscribers, ch)
		close(ch)
	}
}

// Publish fans e out to every current subscriber. A subscriber whose
// buffer is full is skipped rather than blocking the publisher.
func (p *MemoryPublisher) Publish(_ context.Context, e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for ch := range p.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close unsubscribes and closes every listener.
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		close(ch)
	}
	p.subscribers = make(map[chan Event]struct{})
	return nil
}
