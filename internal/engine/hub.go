package engine

import (
	"context"
	"math"
	"time"

	"MicroPulse/internal/directory"
	"MicroPulse/internal/domain/models"
	domrepo "MicroPulse/internal/domain/repository"
	"MicroPulse/pkg/logger"
)

// HubConfig tunes the engine hub's background cadence.
type HubConfig struct {
	TrainInterval time.Duration // ML combiner refit period
	SweepInterval time.Duration // sweep detector flush period
}

func (c *HubConfig) withDefaults() HubConfig {
	out := *c
	if out.TrainInterval <= 0 {
		out.TrainInterval = time.Minute
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = 500 * time.Millisecond
	}
	return out
}

// Hub routes enriched events to every signal engine and feeds derived
// signal/sweep events back out. It owns the engines and the instrument
// directory feeding enrichment.
type Hub struct {
	cfg HubConfig
	log *logger.Logger

	dir      *directory.Directory
	skew     *BookSkew
	obi      *Imbalance
	vwap     *Vwap
	pairs    *Pairs
	combiner *Combiner
	sweep    *Sweep

	metrics domrepo.Metrics
	out     func(models.Event)
}

// NewHub builds the engine set. out receives derived signal and sweep events
// and must not block.
func NewHub(
	cfg HubConfig,
	dir *directory.Directory,
	skewCfg SkewConfig,
	obiCfg ImbalanceConfig,
	vwapCfg VwapConfig,
	pairsCfg PairsConfig,
	mlCfg CombinerConfig,
	sweepCfg SweepConfig,
	metrics domrepo.Metrics,
	log *logger.Logger,
	out func(models.Event),
) *Hub {
	if out == nil {
		out = func(models.Event) {}
	}
	h := &Hub{cfg: cfg.withDefaults(), log: log, dir: dir, metrics: metrics, out: out}

	emitSignal := func(s models.Signal) {
		sig := s
		h.metrics.RecordSignal(sig.Engine, sig.Ticker)
		h.log.Info("signal emitted",
			logger.String("engine", sig.Engine),
			logger.String("ticker", sig.Ticker),
			logger.String("action", sig.Action),
			logger.Float64("value", sig.Value))
		h.out(models.Event{Type: models.EventSignal, Signal: &sig, Received: sig.Timestamp})
	}
	emitSweep := func(sw models.Sweep) {
		s := sw
		h.metrics.RecordSignal("sweep", s.Ticker)
		h.log.Info("sweep flagged",
			logger.String("ticker", s.Ticker),
			logger.Int("trades", s.Trades),
			logger.Int("venues", s.Venues),
			logger.Float64("notional", s.Notional))
		h.out(models.Event{Type: models.EventSweep, Sweep: &s, Received: s.Timestamp})
	}

	h.skew = NewBookSkew(skewCfg, emitSignal)
	h.obi = NewImbalance(obiCfg, emitSignal)
	h.vwap = NewVwap(vwapCfg, emitSignal)
	h.pairs = NewPairs(pairsCfg, emitSignal)
	h.combiner = NewCombiner(mlCfg, emitSignal)
	h.sweep = NewSweep(sweepCfg, emitSweep)
	return h
}

// AddPair registers a pairs-trading pair.
func (h *Hub) AddPair(tickerY, tickerX string) { h.pairs.AddPair(tickerY, tickerX) }

// Run consumes events until the channel closes or the context ends.
func (h *Hub) Run(ctx context.Context, events <-chan models.Event) {
	trainTk := time.NewTicker(h.cfg.TrainInterval)
	defer trainTk.Stop()
	sweepTk := time.NewTicker(h.cfg.SweepInterval)
	defer sweepTk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-trainTk.C:
			h.combiner.TrainAll(now)
		case now := <-sweepTk.C:
			h.sweep.Flush(now)
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.handle(ev)
		}
	}
}

func (h *Hub) handle(ev models.Event) {
	switch ev.Type {
	case models.EventConnected:
		h.dir.MarkConnected(ev.Received)
	case models.EventDefinition:
		if ev.Definition != nil {
			h.dir.RecordDefinition(ev.Definition)
		}
	case models.EventStatistic:
		if ev.Statistic != nil {
			h.onStatistic(ev.Statistic)
		}
	case models.EventQuote:
		if ev.Quote != nil {
			h.onQuote(ev.Quote, ev.Received)
		}
	case models.EventTrade:
		if ev.Trade != nil {
			h.onTrade(ev.Trade, ev.Received)
		}
	}
}

func (h *Hub) onStatistic(st *models.Statistic) {
	h.dir.Enrich(st.InstrumentID, &st.Enrichment)
	if st.StatType == models.StatTypeOpenInterest {
		h.dir.RecordOpenInterest(st.InstrumentID, st.Quantity)
	}
}

func (h *Hub) onQuote(q *models.Quote, at time.Time) {
	h.dir.Enrich(q.InstrumentID, &q.Enrichment)
	h.dir.RecordQuote(q)
	ticker := q.Ticker()
	if ticker == "" || len(q.Levels) == 0 {
		return
	}

	bbo := q.Levels[0]
	if bbo.BidPx != nil && bbo.AskPx != nil {
		h.skew.OnQuote(ticker, *bbo.BidPx, *bbo.AskPx, float64(bbo.BidSz), float64(bbo.AskSz), at)
	}
	h.obi.OnBook(ticker, q.Levels, at)
}

func (h *Hub) onTrade(t *models.Trade, at time.Time) {
	h.dir.Enrich(t.InstrumentID, &t.Enrichment)
	ticker := t.Ticker()
	if ticker == "" || t.Price == nil || *t.Price <= 0 {
		return
	}
	price := *t.Price

	h.metrics.RecordLastPrice(ticker, price)
	h.vwap.OnTrade(ticker, price, t.Size, at)
	h.pairs.OnPrice(ticker, price, at)

	mult := t.Multiplier
	if mult <= 0 {
		mult = 1
	}
	h.sweep.OnTrade(t.InstrumentID, ticker, t.PublisherID, price*float64(t.Size)*mult, at)

	h.combiner.Observe(ticker, h.features(ticker, price), price, at)
}

// features snapshots the other engines' views as the ML feature vector.
func (h *Hub) features(ticker string, price float64) []float64 {
	f := make([]float64, 5)
	if s, ok := h.skew.State(ticker); ok {
		f[0] = s.Skew
	}
	if s, ok := h.obi.State(ticker); ok {
		f[1] = s.Ratio - 0.5
	}
	if s, ok := h.vwap.State(ticker); ok && s.VWAP > 0 {
		f[2] = (price - s.VWAP) / s.VWAP
		if s.TWAP > 0 {
			f[3] = (price - s.TWAP) / s.TWAP
		}
		f[4] = math.Log1p(s.Volume)
	}
	return f
}

// Directory exposes the instrument directory for the query surface.
func (h *Hub) Directory() *directory.Directory { return h.dir }

// Composite assembles every engine's current view of one ticker.
func (h *Hub) Composite(ticker string) models.CompositeSignals {
	out := models.CompositeSignals{Ticker: ticker, Timestamp: time.Now()}
	if s, ok := h.skew.State(ticker); ok {
		out.Skew = &s
	}
	if s, ok := h.obi.State(ticker); ok {
		out.Imbalance = &s
	}
	if s, ok := h.vwap.State(ticker); ok {
		out.Vwap = &s
	}
	if ps := h.pairs.StatesFor(ticker); len(ps) > 0 {
		out.Pairs = ps
	}
	if p, ok := h.combiner.Predict(ticker); ok {
		out.Prediction = &p
	}
	if sw := h.sweep.Recent(ticker); len(sw) > 0 {
		out.Sweeps = sw
	}
	return out
}

// SkewState, ImbalanceState, VwapState, PairState, Prediction and Sweeps are
// the per-engine getters behind the query API.
func (h *Hub) SkewState(ticker string) (models.SkewState, bool) { return h.skew.State(ticker) }

func (h *Hub) ImbalanceState(t string) (models.ImbalanceState, bool) { return h.obi.State(t) }

func (h *Hub) VwapState(ticker string) (models.VwapState, bool) { return h.vwap.State(ticker) }

func (h *Hub) PairState(y, x string) (models.PairState, bool) { return h.pairs.State(y, x) }

func (h *Hub) Prediction(t string) (models.Prediction, bool) { return h.combiner.Predict(t) }

func (h *Hub) Sweeps(ticker string) []models.Sweep { return h.sweep.Recent(ticker) }
