package bus

import (
	"sync"

	"MicroPulse/internal/domain/models"
	domrepo "MicroPulse/internal/domain/repository"
	"MicroPulse/pkg/logger"
)

const defaultBuffer = 1024

type subscriber struct {
	name string
	ch   chan models.Event
}

// Bus is a bounded fan-out for events. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted, so a slow consumer cannot stall the decode path.
type Bus struct {
	mu     sync.RWMutex
	subs   []*subscriber
	closed bool

	metrics domrepo.Metrics
	log     *logger.Logger
}

func New(metrics domrepo.Metrics, log *logger.Logger) *Bus {
	return &Bus{metrics: metrics, log: log}
}

// Subscribe registers a named consumer. size <= 0 uses the default buffer.
func (b *Bus) Subscribe(name string, size int) <-chan models.Event {
	if size <= 0 {
		size = defaultBuffer
	}
	sub := &subscriber{name: name, ch: make(chan models.Event, size)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.ch == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish fans the event out to every subscriber, dropping per-subscriber
// when full.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.metrics.RecordDropped(sub.name)
			b.log.Debug("event dropped", logger.String("subscriber", sub.name), logger.String("type", string(ev.Type)))
		}
	}
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
