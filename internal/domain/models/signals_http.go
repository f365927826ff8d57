package models

// Requests for the query API. Defined in domain for consistency and reuse.

type TickerRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
}

type PairRequest struct {
	TickerY string `query:"y" json:"y" validate:"required"`
	TickerX string `query:"x" json:"x" validate:"required"`
}

type ChainRequest struct {
	Underlying string `query:"underlying" json:"underlying" validate:"required"`
	Expiration string `query:"expiration" json:"expiration"`
}

type SweepsRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type SignalHistoryRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required"`
	Engine string `query:"engine" json:"engine"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}
