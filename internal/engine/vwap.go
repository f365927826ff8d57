package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// VwapConfig tunes the VWAP/TWAP engine.
type VwapConfig struct {
	Cooldown   time.Duration // minimum gap between cross signals
	MinDelta   float64       // minimum |price-vwap|/vwap for a cross to count
	BucketSize time.Duration // TWAP bucket width
	MaxBuckets int           // TWAP window, in buckets
}

func (c *VwapConfig) withDefaults() VwapConfig {
	out := *c
	if out.Cooldown <= 0 {
		out.Cooldown = 5 * time.Second
	}
	if out.MinDelta <= 0 {
		out.MinDelta = 0.001
	}
	if out.BucketSize <= 0 {
		out.BucketSize = time.Minute
	}
	if out.MaxBuckets <= 0 {
		out.MaxBuckets = 30
	}
	return out
}

type twapBucket struct {
	start time.Time
	sum   float64
	n     int
}

type vwapState struct {
	sumPV     float64 // Σ price*size
	sumV      float64 // Σ size
	sumP2V    float64 // Σ price²*size, for the volume-weighted variance
	high      float64
	low       float64
	lastPrice float64
	lastSide  int // -1 below vwap, +1 above, 0 too close to call
	lastCross time.Time
	buckets   []twapBucket
}

// Vwap maintains session VWAP with volume-weighted σ bands and a bucketed
// TWAP over a sliding window, emitting CROSS signals on band breaks.
type Vwap struct {
	cfg  VwapConfig
	mu   sync.RWMutex
	book map[string]*vwapState
	emit func(models.Signal)
}

func NewVwap(cfg VwapConfig, emit func(models.Signal)) *Vwap {
	if emit == nil {
		emit = func(models.Signal) {}
	}
	return &Vwap{cfg: cfg.withDefaults(), book: make(map[string]*vwapState), emit: emit}
}

// OnTrade folds one trade into the running aggregates.
func (e *Vwap) OnTrade(ticker string, price float64, size uint32, at time.Time) {
	if ticker == "" || price <= 0 || size == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.book[ticker]
	if st == nil {
		st = &vwapState{low: math.MaxFloat64}
		e.book[ticker] = st
	}

	v := float64(size)
	st.sumPV += price * v
	st.sumV += v
	st.sumP2V += price * price * v
	st.lastPrice = price
	if price > st.high {
		st.high = price
	}
	if price < st.low {
		st.low = price
	}

	bucketStart := at.Truncate(e.cfg.BucketSize)
	if n := len(st.buckets); n > 0 && st.buckets[n-1].start.Equal(bucketStart) {
		st.buckets[n-1].sum += price
		st.buckets[n-1].n++
	} else {
		st.buckets = append(st.buckets, twapBucket{start: bucketStart, sum: price, n: 1})
		if len(st.buckets) > e.cfg.MaxBuckets {
			st.buckets = st.buckets[len(st.buckets)-e.cfg.MaxBuckets:]
		}
	}

	// Cross detection: the price must land on the other side of VWAP and
	// clear it by the minimum relative delta.
	vwap := st.sumPV / st.sumV
	rel := (price - vwap) / vwap
	side := 0
	if rel >= e.cfg.MinDelta {
		side = 1
	} else if rel <= -e.cfg.MinDelta {
		side = -1
	}
	crossed := side != 0 && st.lastSide != 0 && side != st.lastSide
	if side != 0 {
		st.lastSide = side
	}
	if !crossed {
		return
	}
	if !st.lastCross.IsZero() && at.Sub(st.lastCross) < e.cfg.Cooldown {
		return
	}
	st.lastCross = at

	dir := "above"
	if side < 0 {
		dir = "below"
	}
	e.emit(models.Signal{
		Engine:    "vwap",
		Ticker:    ticker,
		Action:    "CROSS",
		Value:     rel,
		Reason:    fmt.Sprintf("price %.4f crossed %s vwap %.4f (%.3f%%)", price, dir, vwap, rel*100),
		Timestamp: at,
	})
}

// State returns the current VWAP/TWAP view for one ticker.
func (e *Vwap) State(ticker string) (models.VwapState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.book[ticker]
	if !ok || st.sumV == 0 {
		return models.VwapState{}, false
	}

	vwap := st.sumPV / st.sumV
	variance := st.sumP2V/st.sumV - vwap*vwap
	if variance < 0 {
		variance = 0
	}
	sd := math.Sqrt(variance)

	var twapSum float64
	var twapN int
	for _, b := range st.buckets {
		if b.n > 0 {
			twapSum += b.sum / float64(b.n)
			twapN++
		}
	}
	twap := 0.0
	if twapN > 0 {
		twap = twapSum / float64(twapN)
	}

	return models.VwapState{
		Ticker:    ticker,
		VWAP:      vwap,
		StdDev:    sd,
		UpperBand: vwap + sd,
		LowerBand: vwap - sd,
		Upper2:    vwap + 2*sd,
		Lower2:    vwap - 2*sd,
		TWAP:      twap,
		High:      st.high,
		Low:       st.low,
		Volume:    st.sumV,
		LastPrice: st.lastPrice,
	}, true
}
