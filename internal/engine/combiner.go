package engine

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// CombinerConfig tunes the ML signal combiner.
type CombinerConfig struct {
	MaxSamples    int     // bounded FIFO per ticker
	MinSamples    int     // samples required before the first fit
	HoldoutFrac   float64 // tail fraction reserved for out-of-sample R²
	LinearEpochs  int     // gradient-descent passes
	LearningRate  float64
	Stumps        int           // boosted one-level stumps fit to residuals
	Shrinkage     float64       // stump learning rate
	LinearWeight  float64       // blend weight for the linear model
	BoostedWeight float64       // blend weight for the stump ensemble
	MinConfidence float64       // confidence below this emits no signal
	Cooldown      time.Duration // minimum gap between emitted ML signals
}

func (c *CombinerConfig) withDefaults() CombinerConfig {
	out := *c
	if out.MaxSamples <= 0 {
		out.MaxSamples = 1000
	}
	if out.MinSamples <= 0 {
		out.MinSamples = 50
	}
	if out.HoldoutFrac <= 0 || out.HoldoutFrac >= 1 {
		out.HoldoutFrac = 0.2
	}
	if out.LinearEpochs <= 0 {
		out.LinearEpochs = 200
	}
	if out.LearningRate <= 0 {
		out.LearningRate = 0.01
	}
	if out.Stumps <= 0 {
		out.Stumps = 10
	}
	if out.Shrinkage <= 0 {
		out.Shrinkage = 0.3
	}
	if out.LinearWeight <= 0 {
		out.LinearWeight = 0.4
	}
	if out.BoostedWeight <= 0 {
		out.BoostedWeight = 0.6
	}
	if out.MinConfidence <= 0 {
		out.MinConfidence = 0.6
	}
	if out.Cooldown <= 0 {
		out.Cooldown = time.Minute
	}
	return out
}

type sample struct {
	features []float64
	label    float64 // realized next-period return
}

type stump struct {
	feature     int
	threshold   float64
	left, right float64
}

type linearModel struct {
	weights []float64
	bias    float64
	mean    []float64 // feature z-normalization, frozen at train time
	std     []float64
}

func (m *linearModel) predict(f []float64) float64 {
	out := m.bias
	for i, w := range m.weights {
		if i >= len(f) {
			break
		}
		out += w * zNorm(f[i], m.mean[i], m.std[i])
	}
	return out
}

func zNorm(v, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}

type combinerState struct {
	samples      []sample
	pending      []float64
	pendingPrice float64

	linear      *linearModel
	stumps      []stump
	stumpBase   float64
	r2          float64
	lastTrained time.Time
	lastFeats   []float64
	lastSignal  time.Time
}

// Combiner accumulates (features, next-period-return) samples per ticker and
// periodically fits a linear model plus boosted stumps, blended 40/60.
type Combiner struct {
	cfg  CombinerConfig
	mu   sync.RWMutex
	book map[string]*combinerState
	emit func(models.Signal)
}

func NewCombiner(cfg CombinerConfig, emit func(models.Signal)) *Combiner {
	if emit == nil {
		emit = func(models.Signal) {}
	}
	return &Combiner{cfg: cfg.withDefaults(), book: make(map[string]*combinerState), emit: emit}
}

// Observe records a feature snapshot at the current price. The previous
// snapshot's label becomes the return realized between the two prices, so
// labels never look ahead.
func (e *Combiner) Observe(ticker string, features []float64, price float64, at time.Time) {
	if ticker == "" || price <= 0 || len(features) == 0 {
		return
	}

	e.mu.Lock()
	st := e.book[ticker]
	if st == nil {
		st = &combinerState{}
		e.book[ticker] = st
	}

	if st.pending != nil && st.pendingPrice > 0 {
		st.samples = append(st.samples, sample{
			features: st.pending,
			label:    (price - st.pendingPrice) / st.pendingPrice,
		})
		if len(st.samples) > e.cfg.MaxSamples {
			st.samples = st.samples[len(st.samples)-e.cfg.MaxSamples:]
		}
	}
	st.pending = append([]float64(nil), features...)
	st.pendingPrice = price
	st.lastFeats = st.pending

	trained := st.linear != nil
	var pred models.Prediction
	if trained {
		pred = e.predictLocked(ticker, st)
	}
	e.mu.Unlock()

	if !trained || pred.Confidence < e.cfg.MinConfidence || pred.Direction == "flat" {
		return
	}

	e.mu.Lock()
	ok := at.Sub(st.lastSignal) >= e.cfg.Cooldown
	if ok {
		st.lastSignal = at
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	action := "SELL"
	if pred.Direction == "up" {
		action = "BUY"
	}
	e.emit(models.Signal{
		Engine:    "ml",
		Ticker:    ticker,
		Action:    action,
		Value:     pred.Value,
		Reason:    fmt.Sprintf("blend=%.5f conf=%.2f r2=%.3f", pred.Value, pred.Confidence, pred.R2),
		Timestamp: at,
	})
}

// TrainAll refits every ticker that has enough samples. Called from the hub
// on a wall-clock ticker.
func (e *Combiner) TrainAll(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range e.book {
		if len(st.samples) >= e.cfg.MinSamples {
			e.train(st, now)
		}
	}
}

func (e *Combiner) train(st *combinerState, now time.Time) {
	n := len(st.samples)
	holdout := int(float64(n) * e.cfg.HoldoutFrac)
	if holdout < 1 {
		holdout = 1
	}
	trainSet := st.samples[:n-holdout]
	testSet := st.samples[n-holdout:]
	if len(trainSet) < 2 {
		return
	}

	lin := fitLinear(trainSet, e.cfg.LinearEpochs, e.cfg.LearningRate)

	// Stumps fit the linear model's residuals.
	residuals := make([]float64, len(trainSet))
	for i, s := range trainSet {
		residuals[i] = s.label - lin.predict(s.features)
	}
	base, stumps := fitStumps(trainSet, residuals, e.cfg.Stumps, e.cfg.Shrinkage)

	st.linear = lin
	st.stumps = stumps
	st.stumpBase = base
	st.lastTrained = now

	// Out-of-sample R² on the held-out tail.
	var ssRes, ssTot, meanY float64
	for _, s := range testSet {
		meanY += s.label
	}
	meanY /= float64(len(testSet))
	for _, s := range testSet {
		pred := e.blend(st, s.features)
		ssRes += (s.label - pred) * (s.label - pred)
		ssTot += (s.label - meanY) * (s.label - meanY)
	}
	if ssTot > 0 {
		st.r2 = 1 - ssRes/ssTot
	} else {
		st.r2 = 0
	}
}

func (e *Combiner) blend(st *combinerState, f []float64) float64 {
	linPart := st.linear.predict(f)
	boostPart := st.stumpBase
	for _, s := range st.stumps {
		if s.feature < len(f) && f[s.feature] <= s.threshold {
			boostPart += s.left
		} else {
			boostPart += s.right
		}
	}
	return e.cfg.LinearWeight*linPart + e.cfg.BoostedWeight*boostPart
}

func (e *Combiner) predictLocked(ticker string, st *combinerState) models.Prediction {
	value := e.blend(st, st.lastFeats)
	dir := "flat"
	if value > 0 {
		dir = "up"
	} else if value < 0 {
		dir = "down"
	}
	// Confidence scales with both prediction magnitude (relative to the
	// label scale seen in training) and out-of-sample fit.
	scale := labelScale(st.samples)
	conf := 0.0
	if scale > 0 {
		conf = math.Min(math.Abs(value)/(2*scale), 1)
	}
	if st.r2 > 0 {
		conf = conf * (0.5 + 0.5*math.Min(st.r2*5, 1))
	} else {
		conf *= 0.5
	}
	return models.Prediction{
		Ticker:      ticker,
		Value:       value,
		Direction:   dir,
		Confidence:  conf,
		R2:          st.r2,
		Samples:     len(st.samples),
		LastTrained: st.lastTrained,
	}
}

// Predict returns the current prediction for one ticker, if trained.
func (e *Combiner) Predict(ticker string) (models.Prediction, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.book[ticker]
	if !ok || st.linear == nil || len(st.lastFeats) == 0 {
		return models.Prediction{}, false
	}
	return e.predictLocked(ticker, st), true
}

func labelScale(samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(s.label)
	}
	return sum / float64(len(samples))
}

func fitLinear(set []sample, epochs int, lr float64) *linearModel {
	dims := len(set[0].features)
	mean := make([]float64, dims)
	std := make([]float64, dims)
	for d := 0; d < dims; d++ {
		col := make([]float64, len(set))
		for i, s := range set {
			if d < len(s.features) {
				col[i] = s.features[d]
			}
		}
		mean[d], std[d] = meanStd(col)
	}

	m := &linearModel{weights: make([]float64, dims), mean: mean, std: std}
	n := float64(len(set))
	for ep := 0; ep < epochs; ep++ {
		gradW := make([]float64, dims)
		gradB := 0.0
		for _, s := range set {
			err := m.predict(s.features) - s.label
			gradB += err
			for d := 0; d < dims && d < len(s.features); d++ {
				gradW[d] += err * zNorm(s.features[d], mean[d], std[d])
			}
		}
		m.bias -= lr * gradB / n
		for d := 0; d < dims; d++ {
			m.weights[d] -= lr * gradW[d] / n
		}
	}
	return m
}

// fitStumps greedily fits one-level regression stumps to the residuals, each
// absorbing a shrunk share of what remains.
func fitStumps(set []sample, residuals []float64, count int, eta float64) (base float64, out []stump) {
	res := append([]float64(nil), residuals...)
	base, _ = meanStd(res)
	for i := range res {
		res[i] -= base
	}
	dims := len(set[0].features)

	for s := 0; s < count; s++ {
		best := stump{feature: -1}
		bestSSE := math.Inf(1)
		for d := 0; d < dims; d++ {
			vals := make([]float64, 0, len(set))
			for _, sm := range set {
				if d < len(sm.features) {
					vals = append(vals, sm.features[d])
				}
			}
			sort.Float64s(vals)
			// Candidate thresholds at the quartiles keep the search cheap.
			for _, q := range []float64{0.25, 0.5, 0.75} {
				th := vals[int(float64(len(vals)-1)*q)]
				var sumL, sumR float64
				var nL, nR int
				for i, sm := range set {
					if d < len(sm.features) && sm.features[d] <= th {
						sumL += res[i]
						nL++
					} else {
						sumR += res[i]
						nR++
					}
				}
				if nL == 0 || nR == 0 {
					continue
				}
				left := sumL / float64(nL)
				right := sumR / float64(nR)
				sse := 0.0
				for i, sm := range set {
					p := right
					if d < len(sm.features) && sm.features[d] <= th {
						p = left
					}
					sse += (res[i] - p) * (res[i] - p)
				}
				if sse < bestSSE {
					bestSSE = sse
					best = stump{feature: d, threshold: th, left: left * eta, right: right * eta}
				}
			}
		}
		if best.feature < 0 {
			break
		}
		out = append(out, best)
		for i, sm := range set {
			if best.feature < len(sm.features) && sm.features[best.feature] <= best.threshold {
				res[i] -= best.left
			} else {
				res[i] -= best.right
			}
		}
	}
	return base, out
}
