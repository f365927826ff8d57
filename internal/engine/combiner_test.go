package engine

import (
	"testing"
	"time"
)

// feedCombiner drives a deterministic pattern: the single feature's sign
// dictates the next period's return.
func feedCombiner(e *Combiner, ticker string, rounds int, start time.Time) time.Time {
	price := 100.0
	at := start
	for i := 0; i < rounds; i++ {
		f := 1.0
		if i%2 == 1 {
			f = -1.0
		}
		e.Observe(ticker, []float64{f}, price, at)
		price *= 1 + 0.01*f
		at = at.Add(time.Second)
	}
	return at
}

func TestCombinerLearnsSignal(t *testing.T) {
	_, emit := collectSignals()
	e := NewCombiner(CombinerConfig{}, emit)

	at := feedCombiner(e, "ES", 300, time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC))
	e.TrainAll(at)

	// The last snapshot is still pending; predict off it.
	pred, ok := e.Predict("ES")
	if !ok {
		t.Fatalf("no prediction after training")
	}
	if pred.Samples == 0 || pred.LastTrained.IsZero() {
		t.Fatalf("prediction %+v", pred)
	}
	if pred.R2 < 0.5 {
		t.Fatalf("out-of-sample r2 %v, want a learnable pattern", pred.R2)
	}

	// Feature +1 must predict an up move, -1 a down move.
	e.Observe("ES", []float64{1}, 100, at)
	pred, _ = e.Predict("ES")
	if pred.Direction != "up" || pred.Value <= 0 {
		t.Fatalf("prediction for +1 feature: %+v", pred)
	}

	e.Observe("ES", []float64{-1}, 100, at.Add(time.Second))
	pred, _ = e.Predict("ES")
	if pred.Direction != "down" || pred.Value >= 0 {
		t.Fatalf("prediction for -1 feature: %+v", pred)
	}
}

func TestCombinerNoPredictionUntrained(t *testing.T) {
	_, emit := collectSignals()
	e := NewCombiner(CombinerConfig{}, emit)

	e.Observe("ES", []float64{1}, 100, time.Now())
	if _, ok := e.Predict("ES"); ok {
		t.Fatalf("predicted without a trained model")
	}
}

func TestCombinerMinSamplesGate(t *testing.T) {
	_, emit := collectSignals()
	e := NewCombiner(CombinerConfig{MinSamples: 50}, emit)

	at := feedCombiner(e, "ES", 20, time.Now())
	e.TrainAll(at)
	if _, ok := e.Predict("ES"); ok {
		t.Fatalf("trained below the sample floor")
	}
}

func TestCombinerBoundedHistory(t *testing.T) {
	_, emit := collectSignals()
	e := NewCombiner(CombinerConfig{MaxSamples: 100}, emit)

	at := feedCombiner(e, "ES", 500, time.Now())
	e.TrainAll(at)

	pred, ok := e.Predict("ES")
	if !ok {
		t.Fatalf("no prediction")
	}
	if pred.Samples > 100 {
		t.Fatalf("history grew to %d samples, cap is 100", pred.Samples)
	}
}

func TestCombinerLabelsNeverLookAhead(t *testing.T) {
	_, emit := collectSignals()
	e := NewCombiner(CombinerConfig{}, emit)

	at := time.Now()
	// One observation has no realized return yet: no sample, no training.
	e.Observe("ES", []float64{1}, 100, at)
	e.TrainAll(at)
	if _, ok := e.Predict("ES"); ok {
		t.Fatalf("single snapshot produced a model")
	}
}
