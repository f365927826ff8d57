package directory

import (
	"sort"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
)

// OptionQuote is the chain view row: a definition joined with the latest
// cached quote and open-interest snapshots.
type OptionQuote struct {
	InstrumentID uint32     `json:"instrument_id"`
	RawSymbol    string     `json:"raw_symbol"`
	Underlying   string     `json:"underlying"`
	Strike       float64    `json:"strike"`
	OptionType   string     `json:"option_type"`
	Expiration   time.Time  `json:"expiration"`
	BidPx        *float64   `json:"bid_px,omitempty"`
	AskPx        *float64   `json:"ask_px,omitempty"`
	BidSz        uint32     `json:"bid_sz,omitempty"`
	AskSz        uint32     `json:"ask_sz,omitempty"`
	OpenInterest int64      `json:"open_interest,omitempty"`
	QuoteTime    *time.Time `json:"quote_time,omitempty"`
}

type quoteSnap struct {
	bidPx *float64
	askPx *float64
	bidSz uint32
	askSz uint32
	at    time.Time
}

// Directory holds instrument definitions keyed by instrument id plus cached
// open-interest and quote snapshots for the chain views. Definitions are
// never deleted while the session lives: the universe is replayed from
// session start and entries are cheap.
type Directory struct {
	mu     sync.RWMutex
	defs   map[uint32]*models.Definition
	oi     map[uint32]int64
	quotes map[uint32]quoteSnap

	startedAt time.Time

	// Readiness gate tuning.
	minElapsed time.Duration
	minDefs    int
	minOICover float64
}

// New creates an empty directory. The readiness gate requires both minimum
// elapsed time since connect and a minimum definition count; the count is
// relaxed when open-interest coverage is present.
func New(minElapsed time.Duration, minDefs int) *Directory {
	if minElapsed <= 0 {
		minElapsed = 30 * time.Second
	}
	if minDefs <= 0 {
		minDefs = 100
	}
	return &Directory{
		defs:       make(map[uint32]*models.Definition),
		oi:         make(map[uint32]int64),
		quotes:     make(map[uint32]quoteSnap),
		startedAt:  time.Now(),
		minElapsed: minElapsed,
		minDefs:    minDefs,
		minOICover: 0.2,
	}
}

// MarkConnected resets the readiness clock, e.g. after a reconnect replay.
func (d *Directory) MarkConnected(at time.Time) {
	d.mu.Lock()
	d.startedAt = at
	d.mu.Unlock()
}

// RecordDefinition inserts or overwrites by instrument id.
func (d *Directory) RecordDefinition(def *models.Definition) {
	if def == nil {
		return
	}
	d.mu.Lock()
	d.defs[def.InstrumentID] = def
	d.mu.Unlock()
}

// RecordOpenInterest caches the latest open-interest statistic.
func (d *Directory) RecordOpenInterest(instrumentID uint32, qty int64) {
	d.mu.Lock()
	d.oi[instrumentID] = qty
	d.mu.Unlock()
}

// RecordQuote caches the latest top-of-book for the chain view.
func (d *Directory) RecordQuote(q *models.Quote) {
	if q == nil || len(q.Levels) == 0 {
		return
	}
	top := q.Levels[0]
	d.mu.Lock()
	d.quotes[q.InstrumentID] = quoteSnap{
		bidPx: top.BidPx,
		askPx: top.AskPx,
		bidSz: top.BidSz,
		askSz: top.AskSz,
		at:    time.Unix(0, int64(q.TsRecv)),
	}
	d.mu.Unlock()
}

// Lookup returns the definition for an instrument id.
func (d *Directory) Lookup(instrumentID uint32) (*models.Definition, bool) {
	d.mu.RLock()
	def, ok := d.defs[instrumentID]
	d.mu.RUnlock()
	return def, ok
}

// Enrich copies definition-derived fields onto a record's enrichment block.
// Absence of a definition is not an error: the record passes through
// untouched.
func (d *Directory) Enrich(instrumentID uint32, e *models.Enrichment) bool {
	def, ok := d.Lookup(instrumentID)
	if !ok {
		return false
	}
	e.RawSymbol = def.RawSymbol
	e.Underlying = def.Underlying
	e.Strike = def.Strike
	e.OptionType = def.OptionType
	e.Expiration = def.Expiration
	e.Multiplier = def.Multiplier
	return true
}

// Size returns the number of known definitions.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.defs)
}

// GetExpirations lists the distinct option expirations known for an
// underlying, ascending.
func (d *Directory) GetExpirations(underlying string) []time.Time {
	d.mu.RLock()
	seen := make(map[time.Time]struct{})
	for _, def := range d.defs {
		if def.Underlying != underlying || def.Expiration == nil || def.OptionType == "" {
			continue
		}
		seen[def.Expiration.Truncate(24*time.Hour)] = struct{}{}
	}
	d.mu.RUnlock()

	out := make([]time.Time, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// GetOptionsChain joins definitions with cached quotes and open interest for
// one underlying and expiration date, sorted by strike then type.
func (d *Directory) GetOptionsChain(underlying string, expiration time.Time) []OptionQuote {
	day := expiration.Truncate(24 * time.Hour)

	d.mu.RLock()
	var chain []OptionQuote
	for id, def := range d.defs {
		if def.Underlying != underlying || def.Expiration == nil || def.OptionType == "" {
			continue
		}
		if !def.Expiration.Truncate(24 * time.Hour).Equal(day) {
			continue
		}
		row := OptionQuote{
			InstrumentID: id,
			RawSymbol:    def.RawSymbol,
			Underlying:   def.Underlying,
			OptionType:   def.OptionType,
			Expiration:   *def.Expiration,
		}
		if def.Strike != nil {
			row.Strike = *def.Strike
		}
		if oi, ok := d.oi[id]; ok {
			row.OpenInterest = oi
		}
		if q, ok := d.quotes[id]; ok {
			row.BidPx = q.bidPx
			row.AskPx = q.askPx
			row.BidSz = q.bidSz
			row.AskSz = q.askSz
			at := q.at
			row.QuoteTime = &at
		}
		chain = append(chain, row)
	}
	d.mu.RUnlock()

	sort.Slice(chain, func(i, j int) bool {
		if chain[i].Strike != chain[j].Strike {
			return chain[i].Strike < chain[j].Strike
		}
		return chain[i].OptionType < chain[j].OptionType
	})
	return chain
}

// HasSufficientData is a freshness/readiness gate, not a correctness
// guarantee: callers should not trust chain views until a replay has had
// time to populate the directory and enough definitions are known. The
// definition-count requirement is halved when a fair share of instruments
// already have open-interest coverage.
func (d *Directory) HasSufficientData(underlying string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if time.Since(d.startedAt) < d.minElapsed {
		return false
	}

	count := 0
	withOI := 0
	for id, def := range d.defs {
		if def.Underlying != underlying {
			continue
		}
		count++
		if _, ok := d.oi[id]; ok {
			withOI++
		}
	}
	need := d.minDefs
	if count > 0 && float64(withOI)/float64(count) >= d.minOICover {
		need = d.minDefs / 2
	}
	return count >= need
}
