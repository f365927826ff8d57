package engine

import (
	"testing"
	"time"

	"MicroPulse/internal/directory"
	"MicroPulse/internal/domain/models"
	"MicroPulse/pkg/logger"
	"MicroPulse/pkg/metrics"
)

func hubLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestHub(t *testing.T, dir *directory.Directory) (*Hub, *[]models.Event) {
	t.Helper()
	if dir == nil {
		dir = directory.New(time.Minute, 10)
	}
	var out []models.Event
	h := NewHub(HubConfig{}, dir,
		SkewConfig{}, ImbalanceConfig{}, VwapConfig{}, PairsConfig{},
		CombinerConfig{}, SweepConfig{}, metrics.Nop{}, hubLogger(t),
		func(ev models.Event) { out = append(out, ev) })
	return h, &out
}

func futureDef(id uint32, raw, underlying string, mult float64) *models.Definition {
	return &models.Definition{
		RecordHeader: models.RecordHeader{InstrumentID: id},
		RawSymbol:    raw,
		Underlying:   underlying,
		Multiplier:   mult,
	}
}

func hubQuote(id uint32, bid, ask float64, bidSz, askSz uint32) *models.Quote {
	return &models.Quote{
		RecordHeader: models.RecordHeader{InstrumentID: id},
		Levels: []models.DepthLevel{{
			BidPx: &bid, AskPx: &ask,
			BidSz: bidSz, AskSz: askSz,
			BidCt: 1, AskCt: 1,
		}},
	}
}

func hubTrade(id uint32, venue uint16, px float64, size uint32) *models.Trade {
	return &models.Trade{
		RecordHeader: models.RecordHeader{InstrumentID: id, PublisherID: venue},
		Price:        &px,
		Size:         size,
	}
}

func signalsBy(events []models.Event, engine string) []models.Signal {
	var out []models.Signal
	for _, ev := range events {
		if ev.Type == models.EventSignal && ev.Signal != nil && ev.Signal.Engine == engine {
			out = append(out, *ev.Signal)
		}
	}
	return out
}

func TestHubDefinitionPopulatesDirectory(t *testing.T) {
	h, _ := newTestHub(t, nil)

	h.handle(models.Event{Type: models.EventDefinition, Definition: futureDef(42, "ESZ6", "ES", 50)})

	if got := h.Directory().Size(); got != 1 {
		t.Fatalf("directory size = %d, want 1", got)
	}
	def, ok := h.Directory().Lookup(42)
	if !ok || def.RawSymbol != "ESZ6" {
		t.Fatalf("lookup(42) = %+v, %v", def, ok)
	}
}

func TestHubQuoteDrivesSkewAndImbalance(t *testing.T) {
	h, out := newTestHub(t, nil)
	now := time.Now()

	h.handle(models.Event{Type: models.EventDefinition, Definition: futureDef(42, "ESZ6", "ES", 50)})
	h.handle(models.Event{Type: models.EventQuote, Quote: hubQuote(42, 99.9, 100.1, 1000, 10), Received: now})

	st, ok := h.SkewState("ES")
	if !ok {
		t.Fatalf("no skew state for enriched ticker")
	}
	if st.Skew < 1.99 || st.Skew > 2.01 {
		t.Fatalf("skew = %v, want ~2.0", st.Skew)
	}
	if st.MidPrice < 99.999 || st.MidPrice > 100.001 {
		t.Fatalf("mid = %v, want ~100", st.MidPrice)
	}
	if _, ok := h.ImbalanceState("ES"); !ok {
		t.Fatalf("no imbalance state for enriched ticker")
	}

	sigs := signalsBy(*out, "book_skew")
	if len(sigs) != 1 {
		t.Fatalf("book_skew signals = %d, want 1", len(sigs))
	}
	if sigs[0].Action != "BUY" || sigs[0].Ticker != "ES" {
		t.Fatalf("signal = %+v", sigs[0])
	}
}

func TestHubTradeDrivesVwapAndSweep(t *testing.T) {
	h, out := newTestHub(t, nil)
	now := time.Now()

	h.handle(models.Event{Type: models.EventDefinition, Definition: futureDef(42, "ESZ6", "ES", 50)})
	for i, venue := range []uint16{10, 10, 20} {
		at := now.Add(time.Duration(i) * 100 * time.Millisecond)
		h.handle(models.Event{Type: models.EventTrade, Trade: hubTrade(42, venue, 100, 2), Received: at})
	}

	vs, ok := h.VwapState("ES")
	if !ok {
		t.Fatalf("no vwap state")
	}
	if vs.VWAP != 100 {
		t.Fatalf("vwap = %v, want 100", vs.VWAP)
	}
	if vs.Volume != 6 {
		t.Fatalf("volume = %v, want 6", vs.Volume)
	}

	// 3 trades, 2 venues, 3*100*2*50 = $30k notional inside the window.
	h.sweep.Flush(now.Add(300 * time.Millisecond))
	var sweeps int
	for _, ev := range *out {
		if ev.Type == models.EventSweep && ev.Sweep != nil {
			sweeps++
			if ev.Sweep.Ticker != "ES" || ev.Sweep.Notional != 30000 {
				t.Fatalf("sweep = %+v", ev.Sweep)
			}
		}
	}
	if sweeps != 1 {
		t.Fatalf("sweep events = %d, want 1", sweeps)
	}
	if got := h.Sweeps("ES"); len(got) != 1 {
		t.Fatalf("recent sweeps = %d, want 1", len(got))
	}
}

func TestHubStatisticRecordsOpenInterest(t *testing.T) {
	h, _ := newTestHub(t, nil)

	strike := 190.0
	exp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)
	h.handle(models.Event{Type: models.EventDefinition, Definition: &models.Definition{
		RecordHeader: models.RecordHeader{InstrumentID: 7},
		RawSymbol:    "AAPL  260918C00190000",
		Underlying:   "AAPL",
		Strike:       &strike,
		OptionType:   "C",
		Expiration:   &exp,
		Multiplier:   100,
	}})
	h.handle(models.Event{Type: models.EventStatistic, Statistic: &models.Statistic{
		RecordHeader: models.RecordHeader{InstrumentID: 7},
		StatType:     models.StatTypeOpenInterest,
		Quantity:     5000,
	}})

	chain := h.Directory().GetOptionsChain("AAPL", exp)
	if len(chain) != 1 {
		t.Fatalf("chain rows = %d, want 1", len(chain))
	}
	if chain[0].OpenInterest != 5000 {
		t.Fatalf("open interest = %d, want 5000", chain[0].OpenInterest)
	}
}

func TestHubSkipsUnenrichedRecords(t *testing.T) {
	h, out := newTestHub(t, nil)
	now := time.Now()

	h.handle(models.Event{Type: models.EventQuote, Quote: hubQuote(99, 99.9, 100.1, 1000, 10), Received: now})
	h.handle(models.Event{Type: models.EventTrade, Trade: hubTrade(99, 1, 100, 5), Received: now})

	if _, ok := h.SkewState(""); ok {
		t.Fatalf("skew state recorded for empty ticker")
	}
	if _, ok := h.VwapState(""); ok {
		t.Fatalf("vwap state recorded for empty ticker")
	}
	if len(*out) != 0 {
		t.Fatalf("emitted %d events for unenriched records", len(*out))
	}
}

func TestHubConnectedResetsReadinessClock(t *testing.T) {
	dir := directory.New(time.Hour, 1)
	h, _ := newTestHub(t, dir)

	h.handle(models.Event{Type: models.EventDefinition, Definition: futureDef(42, "ESZ6", "ES", 50)})
	if !dir.HasSufficientData("ES") {
		t.Fatalf("expected readiness before any session start")
	}

	h.handle(models.Event{Type: models.EventConnected, Received: time.Now()})
	if dir.HasSufficientData("ES") {
		t.Fatalf("expected readiness gate closed right after connect")
	}
}

func TestHubComposite(t *testing.T) {
	h, _ := newTestHub(t, nil)
	now := time.Now()

	h.handle(models.Event{Type: models.EventDefinition, Definition: futureDef(42, "ESZ6", "ES", 50)})
	h.handle(models.Event{Type: models.EventQuote, Quote: hubQuote(42, 99.9, 100.1, 500, 400), Received: now})
	h.handle(models.Event{Type: models.EventTrade, Trade: hubTrade(42, 1, 100, 3), Received: now})

	comp := h.Composite("ES")
	if comp.Ticker != "ES" {
		t.Fatalf("ticker = %q", comp.Ticker)
	}
	if comp.Skew == nil || comp.Imbalance == nil || comp.Vwap == nil {
		t.Fatalf("composite missing engine views: %+v", comp)
	}
	if comp.Prediction != nil {
		t.Fatalf("unexpected prediction before any training")
	}

	empty := h.Composite("ZC")
	if empty.Skew != nil || empty.Vwap != nil || empty.Sweeps != nil {
		t.Fatalf("composite for unknown ticker not empty: %+v", empty)
	}
}
