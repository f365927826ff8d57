package repository

import (
	"context"
	"time"

	"MicroPulse/internal/domain/models"
)

// MarketStream is the live gateway session. Subscriptions are registered
// before Connect; after a successful handshake every decoded record is
// delivered on the event channel.
type MarketStream interface {
	// Subscribe registers a subscription to be sent during the next
	// handshake. It only works before Connect.
	Subscribe(schema, symbolType string, symbols []string, replayFromStart bool) error
	// Connect dials the gateway, authenticates and starts the session.
	// An authentication failure is terminal; a disconnect after streaming
	// began is retried internally with backoff.
	Connect(ctx context.Context) error
	// Events returns the decoded event channel. Closed on Disconnect.
	Events() <-chan models.Event
	// Disconnect cancels all timers and suppresses auto-reconnect.
	Disconnect() error
	IsConnected() bool
	Status() models.ConnectionStatus
}

// Publisher delivers emitted signal events to an external backend.
type Publisher interface {
	Publish(ctx context.Context, s *models.Signal) error
	PublishBatch(ctx context.Context, sigs []*models.Signal) error
	Close() error
}

// SignalStore persists emitted signal events for later querying.
// Derived state only; the raw event stream is never stored.
type SignalStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, s *models.Signal) error
	StoreBatch(ctx context.Context, sigs []*models.Signal) error
	Query(ctx context.Context, ticker, engine string, from, to time.Time, limit int) ([]*models.Signal, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records operational counters.
type Metrics interface {
	RecordDecoded(rtype string)
	RecordSignal(engine, ticker string)
	RecordReconnect()
	RecordHeartbeatTimeout()
	RecordDropped(stage string)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordLatency(op string, seconds float64)
}
