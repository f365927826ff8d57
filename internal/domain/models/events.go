package models

import "time"

// EventType identifies an event flowing through the engine.
type EventType string

const (
	EventTrade        EventType = "trade"
	EventQuote        EventType = "quote"
	EventStatistic    EventType = "statistic"
	EventDefinition   EventType = "definition"
	EventOHLCV        EventType = "ohlcv"
	EventError        EventType = "error"
	EventSystem       EventType = "system"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventSignal       EventType = "signal"
	EventSweep        EventType = "sweep"
)

// Event is the union carried on the bus. Exactly one payload pointer is set
// for the wire event types; Signal/Sweep are set for derived events.
type Event struct {
	Type       EventType   `json:"type"`
	Trade      *Trade      `json:"trade,omitempty"`
	Quote      *Quote      `json:"quote,omitempty"`
	Statistic  *Statistic  `json:"statistic,omitempty"`
	Definition *Definition `json:"definition,omitempty"`
	OHLCV      *OHLCV      `json:"ohlcv,omitempty"`
	Error      *GatewayMsg `json:"error,omitempty"`
	System     *GatewayMsg `json:"system,omitempty"`
	Signal     *Signal     `json:"signal,omitempty"`
	Sweep      *Sweep      `json:"sweep,omitempty"`
	Received   time.Time   `json:"received"`
}

// RecordHeader is shared by every decoded wire record.
type RecordHeader struct {
	RecordSize   int    `json:"-"`
	RType        uint8  `json:"rtype"`
	PublisherID  uint16 `json:"publisher_id"`
	InstrumentID uint32 `json:"instrument_id"`
	TsEvent      uint64 `json:"ts_event"`
}

// Enrichment holds definition-derived fields copied onto a record by the
// instrument directory. Zero value means "not enriched".
type Enrichment struct {
	RawSymbol  string     `json:"raw_symbol,omitempty"`
	Underlying string     `json:"underlying,omitempty"`
	Strike     *float64   `json:"strike,omitempty"`
	OptionType string     `json:"option_type,omitempty"` // "C", "P" or ""
	Expiration *time.Time `json:"expiration,omitempty"`
	Multiplier float64    `json:"multiplier,omitempty"`
}

// Trade is a decoded trade record. Price is nil when the wire value was the
// undefined sentinel.
type Trade struct {
	RecordHeader
	Enrichment
	Price     *float64 `json:"price"`
	Size      uint32   `json:"size"`
	Side      byte     `json:"side"` // 'A' ask-aggressor, 'B' bid-aggressor, 'N' none
	Depth     uint8    `json:"depth"`
	TsRecv    uint64   `json:"ts_recv"`
	TsInDelta int32    `json:"ts_in_delta"`
	Sequence  uint32   `json:"sequence"`
}

// DepthLevel is one bid/ask price level of a quote record.
type DepthLevel struct {
	BidPx *float64 `json:"bid_px"`
	AskPx *float64 `json:"ask_px"`
	BidSz uint32   `json:"bid_sz"`
	AskSz uint32   `json:"ask_sz"`
	BidCt uint32   `json:"bid_ct"`
	AskCt uint32   `json:"ask_ct"`
}

// Quote is a decoded top-of-book or multi-level book record. Levels[0] is the
// BBO; consolidated schemas carry up to ten levels.
type Quote struct {
	RecordHeader
	Enrichment
	Price    *float64     `json:"price"`
	Size     uint32       `json:"size"`
	Side     byte         `json:"side"`
	TsRecv   uint64       `json:"ts_recv"`
	Sequence uint32       `json:"sequence"`
	Levels   []DepthLevel `json:"levels"`
}

// Statistic is a typed quantity published by the venue (open interest,
// settlement price, cleared volume and so on).
type Statistic struct {
	RecordHeader
	Enrichment
	TsRecv   uint64   `json:"ts_recv"`
	TsRef    uint64   `json:"ts_ref"`
	Price    *float64 `json:"price"`
	Quantity int64    `json:"quantity"`
	StatType uint16   `json:"stat_type"`
	Sequence uint32   `json:"sequence"`
}

// Statistic types the engines care about.
const (
	StatTypeOpenInterest    uint16 = 9
	StatTypeSettlementPrice uint16 = 3
	StatTypeClearedVolume   uint16 = 8
)

// OHLCV is a decoded bar record.
type OHLCV struct {
	RecordHeader
	Enrichment
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume uint64   `json:"volume"`
}

// Definition is a decoded instrument definition record.
type Definition struct {
	RecordHeader
	RawSymbol  string     `json:"raw_symbol"`
	Underlying string     `json:"underlying"`
	Strike     *float64   `json:"strike,omitempty"`
	OptionType string     `json:"option_type,omitempty"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Multiplier float64    `json:"multiplier"`
	TickSize   float64    `json:"tick_size"`
}

// GatewayMsg is an in-band protocol error or system message.
type GatewayMsg struct {
	RecordHeader
	Msg         string `json:"msg"`
	IsHeartbeat bool   `json:"is_heartbeat"`
}

// Ticker returns the per-engine key for an enriched record: the underlying
// when enrichment succeeded, otherwise the raw symbol when known.
func (e *Enrichment) Ticker() string {
	if e.Underlying != "" {
		return e.Underlying
	}
	return e.RawSymbol
}
