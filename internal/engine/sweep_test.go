package engine

import (
	"testing"
	"time"

	"MicroPulse/internal/domain/models"
)

func collectSweeps() (*[]models.Sweep, func(models.Sweep)) {
	var out []models.Sweep
	return &out, func(s models.Sweep) { out = append(out, s) }
}

func TestSweepFlagged(t *testing.T) {
	got, emit := collectSweeps()
	e := NewSweep(SweepConfig{}, emit)

	at := time.Now()
	e.OnTrade(1, "SPXW", 10, 10_000, at)
	e.OnTrade(1, "SPXW", 20, 10_000, at.Add(100*time.Millisecond))
	e.OnTrade(1, "SPXW", 10, 5_000, at.Add(200*time.Millisecond))

	flagged := e.Flush(at.Add(300 * time.Millisecond))
	if len(flagged) != 1 {
		t.Fatalf("flagged %d sweeps", len(flagged))
	}
	sw := flagged[0]
	if sw.Trades != 3 || sw.Venues != 2 || sw.Notional != 25_000 {
		t.Fatalf("sweep %+v", sw)
	}
	if len(*got) != 1 {
		t.Fatalf("emitted %d", len(*got))
	}

	// The buffer clears on flag: the same burst is never flagged twice.
	if again := e.Flush(at.Add(400 * time.Millisecond)); len(again) != 0 {
		t.Fatalf("re-flagged %d sweeps", len(again))
	}

	recent := e.Recent("SPXW")
	if len(recent) != 1 || recent[0].Notional != 25_000 {
		t.Fatalf("recent %+v", recent)
	}
}

func TestSweepSingleVenueNotFlagged(t *testing.T) {
	_, emit := collectSweeps()
	e := NewSweep(SweepConfig{}, emit)

	at := time.Now()
	for i := 0; i < 5; i++ {
		e.OnTrade(1, "SPXW", 10, 10_000, at)
	}
	if flagged := e.Flush(at.Add(100 * time.Millisecond)); len(flagged) != 0 {
		t.Fatalf("single venue flagged: %+v", flagged)
	}
}

func TestSweepBelowNotionalNotFlagged(t *testing.T) {
	_, emit := collectSweeps()
	e := NewSweep(SweepConfig{}, emit)

	at := time.Now()
	e.OnTrade(1, "SPXW", 10, 8_000, at)
	e.OnTrade(1, "SPXW", 20, 8_000, at)
	e.OnTrade(1, "SPXW", 30, 8_000, at)
	if flagged := e.Flush(at.Add(100 * time.Millisecond)); len(flagged) != 0 {
		t.Fatalf("below-notional burst flagged: %+v", flagged)
	}
}

func TestSweepWindowExpiry(t *testing.T) {
	_, emit := collectSweeps()
	e := NewSweep(SweepConfig{}, emit)

	at := time.Now()
	e.OnTrade(1, "SPXW", 10, 20_000, at)
	e.OnTrade(1, "SPXW", 20, 20_000, at.Add(50*time.Millisecond))

	// The burst never reaches three trades inside the window; once the
	// first two age out, a late third trade stands alone.
	e.OnTrade(1, "SPXW", 30, 20_000, at.Add(2*time.Second))
	if flagged := e.Flush(at.Add(2100 * time.Millisecond)); len(flagged) != 0 {
		t.Fatalf("stale trades counted: %+v", flagged)
	}
}

func TestSweepPerInstrumentBuffers(t *testing.T) {
	_, emit := collectSweeps()
	e := NewSweep(SweepConfig{}, emit)

	at := time.Now()
	// Two instruments, each short of the trade count on its own.
	e.OnTrade(1, "SPXW", 10, 15_000, at)
	e.OnTrade(1, "SPXW", 20, 15_000, at)
	e.OnTrade(2, "AAPL", 10, 15_000, at)
	e.OnTrade(2, "AAPL", 20, 15_000, at)

	if flagged := e.Flush(at.Add(100 * time.Millisecond)); len(flagged) != 0 {
		t.Fatalf("cross-instrument trades pooled: %+v", flagged)
	}
}

func TestSweepRecentRing(t *testing.T) {
	_, emit := collectSweeps()
	e := NewSweep(SweepConfig{MaxRecent: 2}, emit)

	at := time.Now()
	for burst := 0; burst < 4; burst++ {
		base := at.Add(time.Duration(burst) * 10 * time.Second)
		e.OnTrade(1, "SPXW", 10, 15_000, base)
		e.OnTrade(1, "SPXW", 20, 15_000, base)
		e.OnTrade(1, "SPXW", 30, 15_000, base)
		e.Flush(base.Add(100 * time.Millisecond))
	}

	recent := e.Recent("SPXW")
	if len(recent) != 2 {
		t.Fatalf("kept %d sweeps, cap is 2", len(recent))
	}
}
