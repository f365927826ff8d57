package models

import "time"

// Signal is an advisory event emitted by a signal engine. It is published on
// the bus and routed to the configured backend; nothing in this process acts
// on it.
type Signal struct {
	Engine    string    `json:"engine"` // "book_skew", "obi", "vwap", "pairs", "ml", "sweep"
	Ticker    string    `json:"ticker"`
	Action    string    `json:"action"` // "BUY", "SELL", "FLIP", "EXTREME", "CROSS", "ENTRY", "EXIT", "BLOCKED"
	Value     float64   `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fill records one simulated lot adjustment made by the book-skew engine.
type Fill struct {
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Lots      int       `json:"lots"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is the capped simulated position the book-skew engine maintains.
type Position struct {
	Lots          int     `json:"lots"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	RealizedPnl   float64 `json:"realized_pnl"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	Fills         []Fill  `json:"fills,omitempty"`
}

// SkewState is the current book-skew view for one ticker.
type SkewState struct {
	Ticker     string    `json:"ticker"`
	Skew       float64   `json:"skew"`
	BidSize    float64   `json:"bid_size"`
	AskSize    float64   `json:"ask_size"`
	MidPrice   float64   `json:"mid_price"`
	LastSignal time.Time `json:"last_signal"`
	Position   Position  `json:"position"`
}

// ImbalanceState is the current multi-level order-book imbalance for one ticker.
type ImbalanceState struct {
	Ticker             string    `json:"ticker"`
	Levels             int       `json:"levels"`
	Ratio              float64   `json:"obi_ratio"`
	PriceWeightedRatio float64   `json:"price_weighted_ratio"`
	OrderCountRatio    float64   `json:"order_count_ratio"`
	Updated            time.Time `json:"updated"`
}

// VwapState is the running VWAP/TWAP view for one ticker.
type VwapState struct {
	Ticker    string  `json:"ticker"`
	VWAP      float64 `json:"vwap"`
	StdDev    float64 `json:"std_dev"`
	UpperBand float64 `json:"upper_band"` // +1σ
	LowerBand float64 `json:"lower_band"` // -1σ
	Upper2    float64 `json:"upper_band_2"`
	Lower2    float64 `json:"lower_band_2"`
	TWAP      float64 `json:"twap"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    float64 `json:"volume"`
	LastPrice float64 `json:"last_price"`
}

// PairPosition enumerates the pairs-engine position states.
type PairPosition string

const (
	PairFlat        PairPosition = "none"
	PairLongSpread  PairPosition = "long_spread"
	PairShortSpread PairPosition = "short_spread"
)

// PairState is the current pairs-trading view for one registered (Y, X) pair.
type PairState struct {
	TickerY       string       `json:"ticker_y"`
	TickerX       string       `json:"ticker_x"`
	HedgeRatio    float64      `json:"hedge_ratio"`
	Intercept     float64      `json:"intercept"`
	SpreadMean    float64      `json:"spread_mean"`
	SpreadStd     float64      `json:"spread_std"`
	ZScore        float64      `json:"z_score"`
	VarianceRatio float64      `json:"variance_ratio"`
	Cointegrated  bool         `json:"cointegrated"`
	Position      PairPosition `json:"position"`
	EntrySpread   float64      `json:"entry_spread"`
	RealizedPnl   float64      `json:"realized_pnl"`
	TradeCount    int          `json:"trade_count"`
	WinRate       float64      `json:"win_rate"`
	Sharpe        float64      `json:"sharpe"`
	Samples       int          `json:"samples"`
}

// Prediction is the ML combiner output for one ticker.
type Prediction struct {
	Ticker      string    `json:"ticker"`
	Value       float64   `json:"value"` // blended expected next-period return
	Direction   string    `json:"direction"`
	Confidence  float64   `json:"confidence"`
	R2          float64   `json:"r2"` // out-of-sample, held-out tail
	Samples     int       `json:"samples"`
	LastTrained time.Time `json:"last_trained"`
}

// Sweep flags a burst of same-instrument trades across multiple venues.
type Sweep struct {
	InstrumentID uint32    `json:"instrument_id"`
	Ticker       string    `json:"ticker,omitempty"`
	Trades       int       `json:"trades"`
	Venues       int       `json:"venues"`
	Notional     float64   `json:"notional"`
	Timestamp    time.Time `json:"timestamp"`
}

// CompositeSignals aggregates every engine's view of one ticker for the
// query surface.
type CompositeSignals struct {
	Ticker     string          `json:"ticker"`
	Timestamp  time.Time       `json:"timestamp"`
	Skew       *SkewState      `json:"skew,omitempty"`
	Imbalance  *ImbalanceState `json:"imbalance,omitempty"`
	Vwap       *VwapState      `json:"vwap,omitempty"`
	Pairs      []PairState     `json:"pairs,omitempty"`
	Prediction *Prediction     `json:"prediction,omitempty"`
	Sweeps     []Sweep         `json:"sweeps,omitempty"`
}

// ConnectionStatus is the read-only transport view for the query surface.
type ConnectionStatus struct {
	State            string `json:"state"`
	SessionID        string `json:"session_id,omitempty"`
	DBNVersion       uint8  `json:"dbn_version,omitempty"`
	ReconnectAttempt int    `json:"reconnect_attempt"`
	Subscriptions    int    `json:"subscriptions"`
	RecordsDecoded   uint64 `json:"records_decoded"`
	EventsDropped    uint64 `json:"events_dropped"`
	BytesRead        uint64 `json:"bytes_read"`
}
