package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// SkewConfig tunes the book-skew engine.
type SkewConfig struct {
	Threshold     float64       // |skew| that triggers a directional signal
	FlipThreshold float64       // smaller |skew| that still flags a sign flip
	Cooldown      time.Duration // minimum gap between directional signals
	MaxLots       int           // position cap, symmetric
	FeePerLot     float64       // charged on every simulated fill
	MaxFills      int           // fill history kept per ticker
}

func (c *SkewConfig) withDefaults() SkewConfig {
	out := *c
	if out.Threshold <= 0 {
		out.Threshold = 1.7
	}
	if out.FlipThreshold <= 0 {
		out.FlipThreshold = 1.0
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 30 * time.Second
	}
	if out.MaxLots <= 0 {
		out.MaxLots = 10
	}
	if out.FeePerLot <= 0 {
		out.FeePerLot = 1.0
	}
	if out.MaxFills <= 0 {
		out.MaxFills = 100
	}
	return out
}

type skewState struct {
	skew       float64
	bidSize    float64
	askSize    float64
	midPrice   float64
	lastSignal time.Time
	hasSignal  bool
	position   models.Position
}

// BookSkew computes skew = log10(bid size) - log10(ask size) per ticker and
// drives a capped simulated position off threshold crossings.
type BookSkew struct {
	cfg  SkewConfig
	mu   sync.RWMutex
	book map[string]*skewState
	emit func(models.Signal)
}

func NewBookSkew(cfg SkewConfig, emit func(models.Signal)) *BookSkew {
	if emit == nil {
		emit = func(models.Signal) {}
	}
	return &BookSkew{cfg: cfg.withDefaults(), book: make(map[string]*skewState), emit: emit}
}

// OnQuote updates skew and position marks for one ticker. Quotes without
// both sides sized are ignored.
func (e *BookSkew) OnQuote(ticker string, bidPx, askPx float64, bidSz, askSz float64, at time.Time) {
	if ticker == "" || bidSz <= 0 || askSz <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.book[ticker]
	if st == nil {
		st = &skewState{}
		e.book[ticker] = st
	}

	prev := st.skew
	hadPrev := st.bidSize > 0 || st.askSize > 0
	st.skew = math.Log10(bidSz) - math.Log10(askSz)
	st.bidSize = bidSz
	st.askSize = askSz
	st.midPrice = (bidPx + askPx) / 2
	st.markUnrealized()

	// A sign flip beyond the flip threshold is its own signal, independent
	// of the trade threshold and its cooldown.
	if hadPrev && prev != 0 && math.Signbit(prev) != math.Signbit(st.skew) &&
		math.Abs(st.skew) >= e.cfg.FlipThreshold {
		e.emit(models.Signal{
			Engine:    "book_skew",
			Ticker:    ticker,
			Action:    "FLIP",
			Value:     st.skew,
			Reason:    fmt.Sprintf("skew flipped %.2f -> %.2f", prev, st.skew),
			Timestamp: at,
		})
	}

	if math.Abs(st.skew) < e.cfg.Threshold {
		return
	}
	if st.hasSignal && at.Sub(st.lastSignal) < e.cfg.Cooldown {
		return
	}

	action := "SELL"
	delta := -1
	if st.skew > 0 {
		action = "BUY"
		delta = 1
	}

	next := st.position.Lots + delta
	if next > e.cfg.MaxLots || next < -e.cfg.MaxLots {
		e.emit(models.Signal{
			Engine:    "book_skew",
			Ticker:    ticker,
			Action:    "BLOCKED",
			Value:     st.skew,
			Reason:    fmt.Sprintf("position limit reached at %+d lots", st.position.Lots),
			Timestamp: at,
		})
		return
	}

	st.fill(action, st.midPrice, delta, e.cfg.FeePerLot, e.cfg.MaxFills, at)
	st.lastSignal = at
	st.hasSignal = true
	e.emit(models.Signal{
		Engine:    "book_skew",
		Ticker:    ticker,
		Action:    action,
		Value:     st.skew,
		Reason:    fmt.Sprintf("skew=%.2f bid=%.0f ask=%.0f", st.skew, bidSz, askSz),
		Timestamp: at,
	})
}

func (st *skewState) markUnrealized() {
	if st.position.Lots == 0 {
		st.position.UnrealizedPnl = 0
		return
	}
	st.position.UnrealizedPnl = float64(st.position.Lots) * (st.midPrice - st.position.AvgEntryPrice)
}

// fill applies a one-lot adjustment: same-direction fills average into the
// entry price, opposite-direction fills realize PnL against it.
func (st *skewState) fill(side string, price float64, delta int, fee float64, maxFills int, at time.Time) {
	lots := st.position.Lots
	switch {
	case lots == 0 || (lots > 0) == (delta > 0):
		total := math.Abs(float64(lots))
		st.position.AvgEntryPrice = (st.position.AvgEntryPrice*total + price) / (total + 1)
	case lots > 0:
		st.position.RealizedPnl += price - st.position.AvgEntryPrice
	default:
		st.position.RealizedPnl += st.position.AvgEntryPrice - price
	}
	st.position.Lots += delta
	st.position.RealizedPnl -= fee
	if st.position.Lots == 0 {
		st.position.AvgEntryPrice = 0
	}

	st.position.Fills = append(st.position.Fills, models.Fill{
		Side:      side,
		Price:     price,
		Lots:      st.position.Lots,
		Timestamp: at,
	})
	if len(st.position.Fills) > maxFills {
		st.position.Fills = st.position.Fills[len(st.position.Fills)-maxFills:]
	}
	st.markUnrealized()
}

// State returns the current view for one ticker.
func (e *BookSkew) State(ticker string) (models.SkewState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.book[ticker]
	if !ok {
		return models.SkewState{}, false
	}
	return models.SkewState{
		Ticker:     ticker,
		Skew:       st.skew,
		BidSize:    st.bidSize,
		AskSize:    st.askSize,
		MidPrice:   st.midPrice,
		LastSignal: st.lastSignal,
		Position:   st.position,
	}, true
}
