package bus

import (
	"sync"
	"testing"

	"MicroPulse/internal/domain/models"
	"MicroPulse/pkg/logger"
)

type countingMetrics struct {
	mu      sync.Mutex
	dropped map[string]int
}

func (m *countingMetrics) RecordDecoded(string)            {}
func (m *countingMetrics) RecordSignal(string, string)     {}
func (m *countingMetrics) RecordReconnect()                {}
func (m *countingMetrics) RecordHeartbeatTimeout()         {}
func (m *countingMetrics) RecordError(string)              {}
func (m *countingMetrics) RecordLastPrice(string, float64) {}
func (m *countingMetrics) RecordLatency(string, float64)   {}

func (m *countingMetrics) RecordDropped(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = make(map[string]int)
	}
	m.dropped[stage]++
}

func (m *countingMetrics) droppedFor(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[stage]
}

func testBus(t *testing.T) (*Bus, *countingMetrics) {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := &countingMetrics{}
	return New(m, l), m
}

func TestFanOut(t *testing.T) {
	b, _ := testBus(t)
	a := b.Subscribe("a", 4)
	c := b.Subscribe("c", 4)

	b.Publish(models.Event{Type: models.EventTrade})

	if ev := <-a; ev.Type != models.EventTrade {
		t.Fatalf("a got %v", ev.Type)
	}
	if ev := <-c; ev.Type != models.EventTrade {
		t.Fatalf("c got %v", ev.Type)
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	b, m := testBus(t)
	slow := b.Subscribe("slow", 1)
	fast := b.Subscribe("fast", 8)

	// Nothing reads slow; its buffer holds one event, the rest drop.
	for i := 0; i < 3; i++ {
		b.Publish(models.Event{Type: models.EventQuote})
	}

	if got := m.droppedFor("slow"); got != 2 {
		t.Fatalf("slow dropped %d, want 2", got)
	}
	if got := m.droppedFor("fast"); got != 0 {
		t.Fatalf("fast dropped %d", got)
	}
	if len(slow) != 1 || len(fast) != 3 {
		t.Fatalf("buffers slow=%d fast=%d", len(slow), len(fast))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b, _ := testBus(t)
	ch := b.Subscribe("a", 4)
	b.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic or deliver.
	b.Publish(models.Event{Type: models.EventTrade})
}

func TestCloseEndsAllSubscribers(t *testing.T) {
	b, _ := testBus(t)
	a := b.Subscribe("a", 4)
	b.Publish(models.Event{Type: models.EventTrade})
	b.Close()

	// Buffered event is still readable, then the channel reports closed.
	if ev, ok := <-a; !ok || ev.Type != models.EventTrade {
		t.Fatalf("buffered event lost: %v %v", ev, ok)
	}
	if _, ok := <-a; ok {
		t.Fatalf("channel open after close")
	}

	// Subscribing after close yields an already-closed channel.
	late := b.Subscribe("late", 4)
	if _, ok := <-late; ok {
		t.Fatalf("late subscription open on closed bus")
	}

	b.Publish(models.Event{Type: models.EventTrade}) // no-op
	b.Close()                                        // idempotent
}
