package engine

import (
	"fmt"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// ImbalanceConfig tunes the order-book imbalance engine.
type ImbalanceConfig struct {
	Levels     int           // depth levels aggregated, capped at what the feed carries
	UpperBand  float64       // ratio above this is buy pressure
	LowerBand  float64       // ratio below this is sell pressure
	Cooldown   time.Duration // minimum gap between extreme signals per ticker
	MinBookVol float64       // ignore books thinner than this on either side
}

func (c *ImbalanceConfig) withDefaults() ImbalanceConfig {
	out := *c
	if out.Levels <= 0 {
		out.Levels = 10
	}
	if out.UpperBand <= 0 {
		out.UpperBand = 0.7
	}
	if out.LowerBand <= 0 {
		out.LowerBand = 0.3
	}
	if out.Cooldown <= 0 {
		out.Cooldown = 10 * time.Second
	}
	return out
}

type imbalanceState struct {
	levels     int
	ratio      float64
	pwRatio    float64
	countRatio float64
	updated    time.Time
	lastSignal time.Time
	hasSignal  bool
}

// Imbalance aggregates bid and ask depth across book levels into three
// ratios: size-weighted, price-distance-weighted, and order-count.
type Imbalance struct {
	cfg  ImbalanceConfig
	mu   sync.RWMutex
	book map[string]*imbalanceState
	emit func(models.Signal)
}

func NewImbalance(cfg ImbalanceConfig, emit func(models.Signal)) *Imbalance {
	if emit == nil {
		emit = func(models.Signal) {}
	}
	return &Imbalance{cfg: cfg.withDefaults(), book: make(map[string]*imbalanceState), emit: emit}
}

// OnBook recomputes the imbalance from a full depth snapshot.
func (e *Imbalance) OnBook(ticker string, levels []models.DepthLevel, at time.Time) {
	if ticker == "" || len(levels) == 0 {
		return
	}

	n := len(levels)
	if n > e.cfg.Levels {
		n = e.cfg.Levels
	}

	var bidVol, askVol float64
	var bidW, askW float64
	var bidOrders, askOrders float64
	for i := 0; i < n; i++ {
		lv := levels[i]
		bidVol += float64(lv.BidSz)
		askVol += float64(lv.AskSz)
		bidOrders += float64(lv.BidCt)
		askOrders += float64(lv.AskCt)
		// Levels nearer the touch weigh more: 1/(level+1).
		w := 1 / float64(i+1)
		bidW += float64(lv.BidSz) * w
		askW += float64(lv.AskSz) * w
	}
	if bidVol < e.cfg.MinBookVol || askVol < e.cfg.MinBookVol || bidVol+askVol == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.book[ticker]
	if st == nil {
		st = &imbalanceState{}
		e.book[ticker] = st
	}
	st.levels = n
	st.ratio = bidVol / (bidVol + askVol)
	if bidW+askW > 0 {
		st.pwRatio = bidW / (bidW + askW)
	} else {
		st.pwRatio = st.ratio
	}
	if bidOrders+askOrders > 0 {
		st.countRatio = bidOrders / (bidOrders + askOrders)
	} else {
		st.countRatio = 0.5
	}
	st.updated = at

	if st.ratio > e.cfg.LowerBand && st.ratio < e.cfg.UpperBand {
		return
	}
	if st.hasSignal && at.Sub(st.lastSignal) < e.cfg.Cooldown {
		return
	}

	side := "sell pressure"
	if st.ratio >= e.cfg.UpperBand {
		side = "buy pressure"
	}
	st.lastSignal = at
	st.hasSignal = true
	e.emit(models.Signal{
		Engine:    "obi",
		Ticker:    ticker,
		Action:    "EXTREME",
		Value:     st.ratio,
		Reason:    fmt.Sprintf("%s: obi=%.3f over %d levels (weighted=%.3f count=%.3f)", side, st.ratio, n, st.pwRatio, st.countRatio),
		Timestamp: at,
	})
}

// State returns the current imbalance view for one ticker.
func (e *Imbalance) State(ticker string) (models.ImbalanceState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.book[ticker]
	if !ok {
		return models.ImbalanceState{}, false
	}
	return models.ImbalanceState{
		Ticker:             ticker,
		Levels:             st.levels,
		Ratio:              st.ratio,
		PriceWeightedRatio: st.pwRatio,
		OrderCountRatio:    st.countRatio,
		Updated:            st.updated,
	}, true
}
