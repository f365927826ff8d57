package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MicroPulse/internal/directory"
	"MicroPulse/internal/domain/models"
	drepo "MicroPulse/internal/domain/repository"
	"MicroPulse/internal/engine"
	"MicroPulse/pkg/cache"
)

// ErrNoHistory is returned when signal history is queried but the backend
// does not persist locally (kafka).
var ErrNoHistory = errors.New("signal history not available on this backend")

// SignalQuery is the read-only aggregation surface over the engines, the
// instrument directory and the gateway session. Composite lookups are cached.
type SignalQuery struct {
	hub      *engine.Hub
	stream   drepo.MarketStream
	store    drepo.SignalStore // nil on the kafka backend
	cache    cache.Service
	cacheTTL time.Duration
}

// NewSignalQuery creates the query aggregator. store may be nil; cache may
// be nil to disable caching.
func NewSignalQuery(hub *engine.Hub, stream drepo.MarketStream, store drepo.SignalStore, c cache.Service, ttl time.Duration) *SignalQuery {
	if ttl <= 0 {
		ttl = time.Second
	}
	return &SignalQuery{hub: hub, stream: stream, store: store, cache: c, cacheTTL: ttl}
}

// Composite returns every engine's current view of one ticker, served from
// cache within the TTL.
func (q *SignalQuery) Composite(ctx context.Context, ticker string) (models.CompositeSignals, error) {
	if ticker == "" {
		return models.CompositeSignals{}, fmt.Errorf("ticker is required")
	}

	key := "composite:" + ticker
	if q.cache != nil {
		var cached models.CompositeSignals
		if err := q.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	out := q.hub.Composite(ticker)
	if q.cache != nil {
		_ = q.cache.Set(ctx, key, out, q.cacheTTL)
	}
	return out, nil
}

// Per-engine getters, uncached; the engines' own locks are cheap.

func (q *SignalQuery) Skew(ticker string) (models.SkewState, bool) {
	return q.hub.SkewState(ticker)
}

func (q *SignalQuery) Imbalance(ticker string) (models.ImbalanceState, bool) {
	return q.hub.ImbalanceState(ticker)
}

func (q *SignalQuery) Vwap(ticker string) (models.VwapState, bool) {
	return q.hub.VwapState(ticker)
}

func (q *SignalQuery) Pair(tickerY, tickerX string) (models.PairState, bool) {
	return q.hub.PairState(tickerY, tickerX)
}

func (q *SignalQuery) Prediction(ticker string) (models.Prediction, bool) {
	return q.hub.Prediction(ticker)
}

func (q *SignalQuery) Sweeps(ticker string) []models.Sweep {
	return q.hub.Sweeps(ticker)
}

// AddPair registers a pairs-trading pair at runtime.
func (q *SignalQuery) AddPair(tickerY, tickerX string) error {
	if tickerY == "" || tickerX == "" {
		return fmt.Errorf("both tickers are required")
	}
	if tickerY == tickerX {
		return fmt.Errorf("pair legs must differ")
	}
	q.hub.AddPair(tickerY, tickerX)
	return nil
}

// Expirations lists the distinct expiration dates known for one underlying.
func (q *SignalQuery) Expirations(underlying string) []time.Time {
	return q.hub.Directory().GetExpirations(underlying)
}

// Chain returns the options chain for one underlying and expiration.
func (q *SignalQuery) Chain(underlying string, expiration time.Time) []directory.OptionQuote {
	return q.hub.Directory().GetOptionsChain(underlying, expiration)
}

// Ready reports whether the directory has enough data on an underlying for
// its chain to be trustworthy.
func (q *SignalQuery) Ready(underlying string) bool {
	return q.hub.Directory().HasSufficientData(underlying)
}

// Status returns the gateway session view.
func (q *SignalQuery) Status() models.ConnectionStatus {
	return q.stream.Status()
}

// History queries persisted signals. Only available on the clickhouse
// backend.
func (q *SignalQuery) History(ctx context.Context, ticker, eng string, from, to time.Time, limit int) ([]*models.Signal, error) {
	if q.store == nil {
		return nil, ErrNoHistory
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return q.store.Query(ctx, ticker, eng, from, to, limit)
}
