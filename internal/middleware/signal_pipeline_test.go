package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MicroPulse/internal/domain/models"
	"MicroPulse/pkg/metrics"
)

type stubProc struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubProc) Process(_ context.Context, _ *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *stubProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func sig(engine, ticker string) *models.Signal {
	return &models.Signal{
		Engine:    engine,
		Ticker:    ticker,
		Action:    "BUY",
		Value:     1.8,
		Timestamp: time.Now(),
	}
}

func TestPipelineForwards(t *testing.T) {
	proc := &stubProc{}
	p := NewSignalPipeline(proc, metrics.Nop{})

	if err := p.Process(context.Background(), sig("book_skew", "ES")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("downstream calls %d", proc.count())
	}
}

func TestPipelineValidation(t *testing.T) {
	proc := &stubProc{}
	p := NewSignalPipeline(proc, metrics.Nop{})
	ctx := context.Background()

	for _, s := range []*models.Signal{
		nil,
		{Ticker: "ES", Timestamp: time.Now()},  // no engine
		{Engine: "obi", Timestamp: time.Now()}, // no ticker
		{Engine: "obi", Ticker: "ES"},          // no timestamp
	} {
		if err := p.Process(ctx, s); err == nil {
			t.Fatalf("accepted invalid signal %+v", s)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid signals reached downstream")
	}
}

func TestPipelineThrottlesPerKey(t *testing.T) {
	proc := &stubProc{}
	p := NewSignalPipeline(proc, metrics.Nop{}, WithMaxRPS(1))
	ctx := context.Background()

	if err := p.Process(ctx, sig("obi", "ES")); err != nil {
		t.Fatalf("first: %v", err)
	}
	// Same key immediately after: throttled, dropped without error.
	if err := p.Process(ctx, sig("obi", "ES")); err != nil {
		t.Fatalf("throttled call errored: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("downstream calls %d, want 1", proc.count())
	}

	// A different engine+ticker key is not throttled.
	if err := p.Process(ctx, sig("vwap", "ES")); err != nil {
		t.Fatalf("other key: %v", err)
	}
	if proc.count() != 2 {
		t.Fatalf("downstream calls %d, want 2", proc.count())
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &stubProc{err: errors.New("backend down")}
	p := NewSignalPipeline(proc, metrics.Nop{}, WithBufferSize(4))

	if err := p.Process(context.Background(), sig("ml", "ES")); err == nil {
		t.Fatalf("expected downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffered %d, want 1", len(p.bufCh))
	}
}

func TestPipelineFlushesBufferOnRecovery(t *testing.T) {
	proc := &stubProc{err: errors.New("backend down")}
	p := NewSignalPipeline(proc, metrics.Nop{}, WithBufferSize(4))
	ctx := context.Background()

	_ = p.Process(ctx, sig("ml", "ES"))

	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(p.bufCh) > 0 {
		select {
		case <-deadline:
			t.Fatalf("buffer never drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if proc.count() < 2 {
		t.Fatalf("flush never reached downstream, calls=%d", proc.count())
	}
}

type batchStubProc struct {
	stubProc
	batches [][]*models.Signal
}

func (p *batchStubProc) ProcessBatch(_ context.Context, sigs []*models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	batch := make([]*models.Signal, len(sigs))
	copy(batch, sigs)
	p.batches = append(p.batches, batch)
	return nil
}

func (p *batchStubProc) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestPipelineFlushesInBatches(t *testing.T) {
	proc := &batchStubProc{stubProc: stubProc{err: errors.New("backend down")}}
	p := NewSignalPipeline(proc, metrics.Nop{},
		WithBufferSize(10), WithMaxRPS(1000), WithBatch(3, 50*time.Millisecond))
	ctx := context.Background()

	for _, ticker := range []string{"A", "B", "C"} {
		_ = p.Process(ctx, sig("ml", ticker))
	}
	if len(p.bufCh) != 3 {
		t.Fatalf("buffered %d, want 3", len(p.bufCh))
	}

	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("batch flush never happened")
		case <-time.After(10 * time.Millisecond):
		}
	}

	proc.mu.Lock()
	total := 0
	for _, b := range proc.batches {
		total += len(b)
	}
	proc.mu.Unlock()
	if total != 3 {
		t.Fatalf("flushed %d signals, want 3", total)
	}
}

func TestPipelineBatchTimeoutFlushesShortBatch(t *testing.T) {
	proc := &batchStubProc{stubProc: stubProc{err: errors.New("backend down")}}
	p := NewSignalPipeline(proc, metrics.Nop{},
		WithBufferSize(10), WithMaxRPS(1000), WithBatch(100, 50*time.Millisecond))
	ctx := context.Background()

	_ = p.Process(ctx, sig("ml", "A"))
	_ = p.Process(ctx, sig("ml", "B"))

	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for proc.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timeout flush never happened")
		case <-time.After(10 * time.Millisecond):
		}
	}

	proc.mu.Lock()
	total := 0
	for _, b := range proc.batches {
		total += len(b)
	}
	proc.mu.Unlock()
	if total != 2 {
		t.Fatalf("flushed %d signals, want 2", total)
	}
}

func TestPipelineBufferOverflowDrops(t *testing.T) {
	proc := &stubProc{err: errors.New("backend down")}
	p := NewSignalPipeline(proc, metrics.Nop{}, WithBufferSize(1), WithMaxRPS(1000))
	ctx := context.Background()

	s1 := sig("ml", "A")
	s2 := sig("ml", "B")
	_ = p.Process(ctx, s1)
	_ = p.Process(ctx, s2) // buffer full, dropped

	if len(p.bufCh) != 1 {
		t.Fatalf("buffered %d, want 1", len(p.bufCh))
	}
}
