package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// PairsConfig tunes the pairs-trading engine.
type PairsConfig struct {
	Window      int     // trailing samples for the OLS fit and spread stats
	MinSamples  int     // samples required before any entry
	EntryZ      float64 // |z| beyond this opens a spread position
	ExitZ       float64 // |z| below this closes it
	EmergencyZ  float64 // |z| beyond this force-closes regardless of state
	VRThreshold float64 // variance ratio below this passes the mean-reversion gate
	VRLag       int     // k in the k-period variance ratio
}

func (c *PairsConfig) withDefaults() PairsConfig {
	out := *c
	if out.Window <= 0 {
		out.Window = 300
	}
	if out.MinSamples <= 0 {
		out.MinSamples = 60
	}
	if out.EntryZ <= 0 {
		out.EntryZ = 2.0
	}
	if out.ExitZ <= 0 {
		out.ExitZ = 0.5
	}
	if out.EmergencyZ <= 0 {
		out.EmergencyZ = 4.0
	}
	if out.VRThreshold <= 0 {
		out.VRThreshold = 1.0
	}
	if out.VRLag <= 1 {
		out.VRLag = 5
	}
	return out
}

type pairState struct {
	ys, xs []float64 // aligned samples, oldest first

	lastY, lastX float64
	haveY, haveX bool

	beta, alpha      float64
	spreadMean       float64
	spreadStd        float64
	zScore           float64
	varianceRatio    float64
	cointegrated     bool
	position         models.PairPosition
	entrySpread      float64
	entryStd         float64
	realizedPnl      float64
	closedReturns    []float64
	wins, tradeCount int
}

type pairKey struct{ y, x string }

// Pairs runs a rolling-OLS spread model per registered (Y, X) ticker pair,
// with a variance-ratio mean-reversion gate on entries.
type Pairs struct {
	cfg   PairsConfig
	mu    sync.RWMutex
	pairs map[pairKey]*pairState
	byLeg map[string][]pairKey
	emit  func(models.Signal)
}

func NewPairs(cfg PairsConfig, emit func(models.Signal)) *Pairs {
	if emit == nil {
		emit = func(models.Signal) {}
	}
	return &Pairs{
		cfg:   cfg.withDefaults(),
		pairs: make(map[pairKey]*pairState),
		byLeg: make(map[string][]pairKey),
		emit:  emit,
	}
}

// AddPair registers a (Y, X) pair. Idempotent.
func (e *Pairs) AddPair(tickerY, tickerX string) {
	if tickerY == "" || tickerX == "" || tickerY == tickerX {
		return
	}
	k := pairKey{y: tickerY, x: tickerX}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pairs[k]; ok {
		return
	}
	e.pairs[k] = &pairState{position: models.PairFlat}
	e.byLeg[tickerY] = append(e.byLeg[tickerY], k)
	e.byLeg[tickerX] = append(e.byLeg[tickerX], k)
}

// OnPrice feeds a new last price for one ticker into every pair it legs.
func (e *Pairs) OnPrice(ticker string, price float64, at time.Time) {
	if ticker == "" || price <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range e.byLeg[ticker] {
		st := e.pairs[k]
		if k.y == ticker {
			st.lastY, st.haveY = price, true
		}
		if k.x == ticker {
			st.lastX, st.haveX = price, true
		}
		if !st.haveY || !st.haveX {
			continue
		}
		e.step(k, st, at)
	}
}

func (e *Pairs) step(k pairKey, st *pairState, at time.Time) {
	st.ys = append(st.ys, st.lastY)
	st.xs = append(st.xs, st.lastX)
	if len(st.ys) > e.cfg.Window {
		st.ys = st.ys[1:]
		st.xs = st.xs[1:]
	}
	n := len(st.ys)
	if n < 3 {
		return
	}

	st.beta, st.alpha = ols(st.xs, st.ys)

	spreads := make([]float64, n)
	for i := range spreads {
		spreads[i] = st.ys[i] - st.beta*st.xs[i] - st.alpha
	}
	st.spreadMean, st.spreadStd = meanStd(spreads)
	if st.spreadStd == 0 {
		return
	}
	spread := spreads[n-1]
	st.zScore = (spread - st.spreadMean) / st.spreadStd
	st.varianceRatio = varianceRatio(spreads, e.cfg.VRLag)
	st.cointegrated = st.varianceRatio > 0 && st.varianceRatio < e.cfg.VRThreshold

	z := st.zScore
	switch st.position {
	case models.PairFlat:
		if n < e.cfg.MinSamples || !st.cointegrated {
			return
		}
		if z >= e.cfg.EntryZ {
			e.open(k, st, models.PairShortSpread, spread, at)
		} else if z <= -e.cfg.EntryZ {
			e.open(k, st, models.PairLongSpread, spread, at)
		}
	default:
		if math.Abs(z) >= e.cfg.EmergencyZ {
			e.close(k, st, spread, "emergency exit", at)
			return
		}
		if math.Abs(z) <= e.cfg.ExitZ {
			e.close(k, st, spread, "spread reverted", at)
		}
	}
}

func (e *Pairs) open(k pairKey, st *pairState, pos models.PairPosition, spread float64, at time.Time) {
	st.position = pos
	st.entrySpread = spread
	st.entryStd = st.spreadStd
	e.emit(models.Signal{
		Engine:    "pairs",
		Ticker:    k.y + "/" + k.x,
		Action:    "ENTRY",
		Value:     st.zScore,
		Reason:    fmt.Sprintf("%s z=%.2f beta=%.3f vr=%.2f", pos, st.zScore, st.beta, st.varianceRatio),
		Timestamp: at,
	})
}

func (e *Pairs) close(k pairKey, st *pairState, spread float64, why string, at time.Time) {
	pnl := spread - st.entrySpread
	if st.position == models.PairShortSpread {
		pnl = -pnl
	}
	st.realizedPnl += pnl
	st.tradeCount++
	if pnl > 0 {
		st.wins++
	}
	// Normalize the trade by the entry-time spread std so Sharpe is
	// comparable across pairs.
	if st.entryStd > 0 {
		st.closedReturns = append(st.closedReturns, pnl/st.entryStd)
	}
	pos := st.position
	st.position = models.PairFlat
	st.entrySpread = 0
	st.entryStd = 0
	e.emit(models.Signal{
		Engine:    "pairs",
		Ticker:    k.y + "/" + k.x,
		Action:    "EXIT",
		Value:     st.zScore,
		Reason:    fmt.Sprintf("%s closed %s, pnl=%.4f", pos, why, pnl),
		Timestamp: at,
	})
}

// State returns the current view for one registered pair.
func (e *Pairs) State(tickerY, tickerX string) (models.PairState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.pairs[pairKey{y: tickerY, x: tickerX}]
	if !ok {
		return models.PairState{}, false
	}
	return e.view(pairKey{y: tickerY, x: tickerX}, st), true
}

// StatesFor returns the views of every pair with the given ticker as a leg.
func (e *Pairs) StatesFor(ticker string) []models.PairState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := e.byLeg[ticker]
	if len(keys) == 0 {
		return nil
	}
	out := make([]models.PairState, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.view(k, e.pairs[k]))
	}
	return out
}

func (e *Pairs) view(k pairKey, st *pairState) models.PairState {
	winRate := 0.0
	if st.tradeCount > 0 {
		winRate = float64(st.wins) / float64(st.tradeCount)
	}
	return models.PairState{
		TickerY:       k.y,
		TickerX:       k.x,
		HedgeRatio:    st.beta,
		Intercept:     st.alpha,
		SpreadMean:    st.spreadMean,
		SpreadStd:     st.spreadStd,
		ZScore:        st.zScore,
		VarianceRatio: st.varianceRatio,
		Cointegrated:  st.cointegrated,
		Position:      st.position,
		EntrySpread:   st.entrySpread,
		RealizedPnl:   st.realizedPnl,
		TradeCount:    st.tradeCount,
		WinRate:       winRate,
		Sharpe:        annualizedSharpe(st.closedReturns),
		Samples:       len(st.ys),
	}
}

// ols fits y = beta*x + alpha by least squares.
func ols(xs, ys []float64) (beta, alpha float64) {
	n := float64(len(xs))
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	beta = (n*sxy - sx*sy) / den
	alpha = (sy - beta*sx) / n
	return beta, alpha
}

func meanStd(xs []float64) (mean, std float64) {
	n := float64(len(xs))
	for _, v := range xs {
		mean += v
	}
	mean /= n
	for _, v := range xs {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / n)
	return mean, std
}

// varianceRatio compares the variance of k-period spread changes against k
// times the variance of 1-period changes. Values below 1 indicate mean
// reversion.
func varianceRatio(spreads []float64, k int) float64 {
	if len(spreads) < k+2 {
		return 0
	}
	d1 := make([]float64, 0, len(spreads)-1)
	for i := 1; i < len(spreads); i++ {
		d1 = append(d1, spreads[i]-spreads[i-1])
	}
	dk := make([]float64, 0, len(spreads)-k)
	for i := k; i < len(spreads); i++ {
		dk = append(dk, spreads[i]-spreads[i-k])
	}
	_, s1 := meanStd(d1)
	_, sk := meanStd(dk)
	if s1 == 0 {
		return 0
	}
	return (sk * sk) / (float64(k) * s1 * s1)
}

// annualizedSharpe treats each closed trade as one daily-scale return.
func annualizedSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}
