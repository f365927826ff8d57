package engine

import (
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// SweepConfig tunes the sweep detector.
type SweepConfig struct {
	Window      time.Duration // trades older than this are discarded on flush
	MinTrades   int
	MinVenues   int
	MinNotional float64
	MaxRecent   int // flagged sweeps kept per ticker for the query surface
}

func (c *SweepConfig) withDefaults() SweepConfig {
	out := *c
	if out.Window <= 0 {
		out.Window = time.Second
	}
	if out.MinTrades <= 0 {
		out.MinTrades = 3
	}
	if out.MinVenues <= 0 {
		out.MinVenues = 2
	}
	if out.MinNotional <= 0 {
		out.MinNotional = 25_000
	}
	if out.MaxRecent <= 0 {
		out.MaxRecent = 50
	}
	return out
}

type sweepTrade struct {
	venue    uint16
	notional float64
	at       time.Time
}

type sweepBuffer struct {
	ticker string
	trades []sweepTrade
}

// Sweep buffers trades per instrument and, on each flush tick, flags bursts
// that hit at least MinTrades across MinVenues venues above MinNotional.
type Sweep struct {
	cfg     SweepConfig
	mu      sync.RWMutex
	buffers map[uint32]*sweepBuffer
	recent  map[string][]models.Sweep
	emit    func(models.Sweep)
}

func NewSweep(cfg SweepConfig, emit func(models.Sweep)) *Sweep {
	if emit == nil {
		emit = func(models.Sweep) {}
	}
	return &Sweep{
		cfg:     cfg.withDefaults(),
		buffers: make(map[uint32]*sweepBuffer),
		recent:  make(map[string][]models.Sweep),
		emit:    emit,
	}
}

// OnTrade buffers one trade. Notional is price*size*multiplier, computed by
// the caller so enrichment stays in one place.
func (e *Sweep) OnTrade(instrumentID uint32, ticker string, venue uint16, notional float64, at time.Time) {
	if notional <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	buf := e.buffers[instrumentID]
	if buf == nil {
		buf = &sweepBuffer{}
		e.buffers[instrumentID] = buf
	}
	if ticker != "" {
		buf.ticker = ticker
	}
	buf.trades = append(buf.trades, sweepTrade{venue: venue, notional: notional, at: at})
}

// Flush expires stale trades and flags qualifying bursts. A flagged
// instrument's buffer is cleared so the same burst is not re-flagged.
func (e *Sweep) Flush(now time.Time) []models.Sweep {
	flagged := e.collect(now)
	for _, sw := range flagged {
		e.emit(sw)
	}
	return flagged
}

func (e *Sweep) collect(now time.Time) []models.Sweep {
	cutoff := now.Add(-e.cfg.Window)

	e.mu.Lock()
	defer e.mu.Unlock()

	var flagged []models.Sweep
	for id, buf := range e.buffers {
		kept := buf.trades[:0]
		for _, t := range buf.trades {
			if t.at.After(cutoff) {
				kept = append(kept, t)
			}
		}
		buf.trades = kept
		if len(buf.trades) == 0 {
			delete(e.buffers, id)
			continue
		}

		venues := make(map[uint16]struct{}, 4)
		notional := 0.0
		for _, t := range buf.trades {
			venues[t.venue] = struct{}{}
			notional += t.notional
		}
		if len(buf.trades) < e.cfg.MinTrades || len(venues) < e.cfg.MinVenues || notional < e.cfg.MinNotional {
			continue
		}

		sw := models.Sweep{
			InstrumentID: id,
			Ticker:       buf.ticker,
			Trades:       len(buf.trades),
			Venues:       len(venues),
			Notional:     notional,
			Timestamp:    now,
		}
		flagged = append(flagged, sw)
		if buf.ticker != "" {
			hist := append(e.recent[buf.ticker], sw)
			if len(hist) > e.cfg.MaxRecent {
				hist = hist[len(hist)-e.cfg.MaxRecent:]
			}
			e.recent[buf.ticker] = hist
		}
		delete(e.buffers, id)
	}
	return flagged
}

// Recent returns the flagged sweeps kept for one ticker, newest last.
func (e *Sweep) Recent(ticker string) []models.Sweep {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hist := e.recent[ticker]
	if len(hist) == 0 {
		return nil
	}
	out := make([]models.Sweep, len(hist))
	copy(out, hist)
	return out
}
