// Package telemetry records request latency for council calls and fans the
// samples out to in-process subscribers.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/council-relay/internal/observability"
)

// Sample describes one HTTP attempt against the council or its collaborators.
// Timestamp marks when the response was received; Duration spans call start
// to response receipt.
type Sample struct {
	URL       string        `json:"url"`
	Method    string        `json:"method"`
	Status    int           `json:"status"`
	Attempt   int           `json:"attempt"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Listener receives every published sample.
type Listener func(Sample)

// Recorder is the write side of the bus, consumed by the network client.
type Recorder interface {
	Publish(ctx context.Context, sample Sample)
}

// Bus keeps the most recent sample and notifies subscribers synchronously.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	last      *Sample
}

// NewBus creates an empty latency bus.
func NewBus() *Bus {
	return &Bus{
		mu:        sync.RWMutex{},
		listeners: make(map[uint64]Listener),
		nextID:    0,
		last:      nil,
	}
}

// Publish stores the sample as the latest one and notifies all listeners.
// A panicking listener is logged and skipped.
func (b *Bus) Publish(ctx context.Context, sample Sample) {
	b.mu.Lock()
	stored := sample
	b.last = &stored
	listeners := make([]Listener, 0, len(b.listeners))
	for _, listener := range b.listeners {
		listeners = append(listeners, listener)
	}
	b.mu.Unlock()

	for _, listener := range listeners {
		notify(ctx, listener, sample)
	}
}

func notify(ctx context.Context, listener Listener, sample Sample) {
	defer func() {
		if r := recover(); r != nil {
			observability.FromContext(ctx).Warn("latency listener panicked",
				observability.String("url", sample.URL))
		}
	}()
	listener(sample)
}

// Subscribe registers a listener and returns a function that removes it.
func (b *Bus) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Last returns the most recent sample, if any was published.
func (b *Bus) Last() (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.last == nil {
		return Sample{}, false
	}
	return *b.last, true
}
