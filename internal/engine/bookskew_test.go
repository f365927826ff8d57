package engine

import (
	"math"
	"testing"
	"time"

	"MicroPulse/internal/domain/models"
)

func collectSignals() (*[]models.Signal, func(models.Signal)) {
	var out []models.Signal
	return &out, func(s models.Signal) { out = append(out, s) }
}

func TestSkewBuySignal(t *testing.T) {
	got, emit := collectSignals()
	e := NewBookSkew(SkewConfig{}, emit)

	// log10(1000) - log10(10) = 2.0, beyond the 1.7 threshold.
	e.OnQuote("ES", 99, 101, 1000, 10, time.Now())

	if len(*got) != 1 {
		t.Fatalf("got %d signals", len(*got))
	}
	s := (*got)[0]
	if s.Engine != "book_skew" || s.Action != "BUY" {
		t.Fatalf("signal %+v", s)
	}
	if math.Abs(s.Value-2.0) > 1e-12 {
		t.Fatalf("skew %v, want 2.0", s.Value)
	}

	st, ok := e.State("ES")
	if !ok {
		t.Fatalf("no state")
	}
	if st.Position.Lots != 1 {
		t.Fatalf("lots %d, want 1", st.Position.Lots)
	}
	if st.Position.AvgEntryPrice != 100 {
		t.Fatalf("entry %v, want mid 100", st.Position.AvgEntryPrice)
	}
}

func TestSkewCooldown(t *testing.T) {
	got, emit := collectSignals()
	e := NewBookSkew(SkewConfig{}, emit)

	at := time.Now()
	e.OnQuote("ES", 99, 101, 1000, 10, at)
	e.OnQuote("ES", 99, 101, 1000, 10, at.Add(time.Second))

	if len(*got) != 1 {
		t.Fatalf("cooldown ignored, got %d signals", len(*got))
	}
}

func TestSkewPositionCap(t *testing.T) {
	got, emit := collectSignals()
	e := NewBookSkew(SkewConfig{}, emit)

	at := time.Now()
	for i := 0; i < 11; i++ {
		e.OnQuote("ES", 99, 101, 1000, 10, at.Add(time.Duration(i)*time.Minute))
	}

	if len(*got) != 11 {
		t.Fatalf("got %d signals", len(*got))
	}
	for i := 0; i < 10; i++ {
		if (*got)[i].Action != "BUY" {
			t.Fatalf("signal %d: %s", i, (*got)[i].Action)
		}
	}
	if (*got)[10].Action != "BLOCKED" {
		t.Fatalf("11th signal %s, want BLOCKED", (*got)[10].Action)
	}

	st, _ := e.State("ES")
	if st.Position.Lots != 10 {
		t.Fatalf("lots %d, want 10", st.Position.Lots)
	}
	// Every fill was charged the per-lot fee at the same mid price.
	if st.Position.RealizedPnl != -10 {
		t.Fatalf("realized %v, want -10 in fees", st.Position.RealizedPnl)
	}
}

func TestSkewFlip(t *testing.T) {
	got, emit := collectSignals()
	e := NewBookSkew(SkewConfig{}, emit)

	at := time.Now()
	e.OnQuote("ES", 99, 101, 100, 10, at) // skew +1, below threshold
	e.OnQuote("ES", 99, 101, 10, 100, at.Add(time.Second))

	if len(*got) != 1 {
		t.Fatalf("got %d signals", len(*got))
	}
	if (*got)[0].Action != "FLIP" {
		t.Fatalf("action %s", (*got)[0].Action)
	}
}

func TestSkewOppositeFillRealizesPnl(t *testing.T) {
	_, emit := collectSignals()
	e := NewBookSkew(SkewConfig{FeePerLot: 0.5}, emit)

	at := time.Now()
	e.OnQuote("ES", 99, 101, 1000, 10, at) // BUY at mid 100
	// Price moved up, skew flipped hard: SELL at mid 110 realizes +10.
	e.OnQuote("ES", 109, 111, 10, 1000, at.Add(time.Minute))

	st, _ := e.State("ES")
	if st.Position.Lots != 0 {
		t.Fatalf("lots %d, want flat", st.Position.Lots)
	}
	want := 10.0 - 2*0.5 // gross minus two fills' fees
	if math.Abs(st.Position.RealizedPnl-want) > 1e-9 {
		t.Fatalf("realized %v, want %v", st.Position.RealizedPnl, want)
	}
}

func TestSkewIgnoresOneSidedBook(t *testing.T) {
	got, emit := collectSignals()
	e := NewBookSkew(SkewConfig{}, emit)
	e.OnQuote("ES", 99, 101, 1000, 0, time.Now())
	if len(*got) != 0 {
		t.Fatalf("one-sided book emitted %d signals", len(*got))
	}
	if _, ok := e.State("ES"); ok {
		t.Fatalf("state created for ignored quote")
	}
}
