package logger

import (
	"sync"
	"time"
)

// Entry is one collected log line.
type Entry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Collector keeps a bounded ring of recent entries so the status endpoint
// can show what went wrong without grepping process logs.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

func NewCollector(n int) *Collector {
	if n <= 0 {
		n = 100
	}
	return &Collector{entries: make([]Entry, n)}
}

func (c *Collector) Add(level, msg string, fields map[string]interface{}) {
	c.mu.Lock()
	c.entries[c.next] = Entry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now(),
	}
	c.next++
	if c.next == len(c.entries) {
		c.next = 0
		c.full = true
	}
	c.mu.Unlock()
}

// Snapshot returns entries in insertion order, oldest first.
func (c *Collector) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.full {
		out := make([]Entry, c.next)
		copy(out, c.entries[:c.next])
		return out
	}
	out := make([]Entry, 0, len(c.entries))
	out = append(out, c.entries[c.next:]...)
	out = append(out, c.entries[:c.next]...)
	return out
}
