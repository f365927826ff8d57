package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MicroPulse/internal/domain/models"
	domrepo "MicroPulse/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, s *models.Signal) error
}

// BatchProc is implemented by processors that can move several buffered
// signals in one backend call.
type BatchProc interface {
	ProcessBatch(ctx context.Context, sigs []*models.Signal) error
}

// SignalPipeline is a middleware between the engine hub and the signal
// backend. It validates, throttles per engine+ticker, and buffers when
// downstream is unavailable.
type SignalPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	batchSz  int           // flush in batches of this size when the proc supports it
	batchTO  time.Duration // flush a short batch after this long
	bufCh    chan *models.Signal
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per engine+ticker last accepted time
	// metrics
	bufDepthGauge func(int)
	throttleWarn  func(string)
}

type PipelineOption func(*SignalPipeline)

// WithMaxRPS sets the max signals per second per engine+ticker.
func WithMaxRPS(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch makes the flush loop drain the buffer in batches of up to n,
// flushing a short batch after the timeout. Takes effect only when the
// processor implements BatchProc.
func WithBatch(n int, timeout time.Duration) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 1 {
			p.batchSz = n
		}
		if timeout > 0 {
			p.batchTO = timeout
		}
	}
}

// NewSignalPipeline creates a new pipeline.
func NewSignalPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *SignalPipeline {
	p := &SignalPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per engine+ticker
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Signal, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Signal, p.bufSize)
	}
	p.bufDepthGauge = func(n int) { p.metrics.RecordLatency("pipeline_buffer_depth", float64(n)) }
	p.throttleWarn = func(key string) { p.metrics.RecordError("pipeline_throttle_" + key) }
	return p
}

// Start launches background flushing of buffered signals.
func (p *SignalPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	if bp, ok := p.proc.(BatchProc); ok && p.batchSz > 1 {
		go p.flushBatches(ctx, bp)
		return
	}
	go p.flushSingles(ctx)
}

func (p *SignalPipeline) flushSingles(ctx context.Context) {
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		case s := <-p.bufCh:
			if s == nil {
				continue
			}
			if err := p.proc.Process(ctx, s); err != nil {
				// exponential backoff with cap
				if backoff < 2*time.Second {
					backoff *= 2
				}
				p.metrics.RecordError("pipeline_flush")
				time.Sleep(backoff)
				// requeue if space; drop otherwise
				select {
				case p.bufCh <- s:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
			} else {
				backoff = 50 * time.Millisecond
			}
		}
	}
}

func (p *SignalPipeline) flushBatches(ctx context.Context, bp BatchProc) {
	timeout := p.batchTO
	if timeout <= 0 {
		timeout = time.Second
	}
	backoff := 50 * time.Millisecond
	var pending []*models.Signal
	tk := time.NewTicker(timeout)
	defer tk.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := bp.ProcessBatch(ctx, pending); err != nil {
			if backoff < 2*time.Second {
				backoff *= 2
			}
			p.metrics.RecordError("pipeline_flush")
			time.Sleep(backoff)
			// requeue if space; drop otherwise
			for _, s := range pending {
				select {
				case p.bufCh <- s:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
			}
		} else {
			backoff = 50 * time.Millisecond
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-p.stopCh:
			flush()
			return
		case <-tk.C:
			flush()
		case s := <-p.bufCh:
			if s == nil {
				continue
			}
			pending = append(pending, s)
			if len(pending) >= p.batchSz {
				flush()
			}
		}
	}
}

// Stop stops the background flushing.
func (p *SignalPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards the signal downstream,
// buffering on errors.
func (p *SignalPipeline) Process(ctx context.Context, s *models.Signal) error {
	start := time.Now()
	if err := validateSignal(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	key := s.Engine + ":" + s.Ticker
	if !p.allow(key, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		if p.throttleWarn != nil {
			p.throttleWarn(key)
		}
		return nil
	}

	if err := p.proc.Process(ctx, s); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- s:
			if p.bufDepthGauge != nil {
				p.bufDepthGauge(len(p.bufCh))
			}
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateSignal(s *models.Signal) error {
	if s == nil {
		return fmt.Errorf("signal nil")
	}
	if s.Engine == "" {
		return fmt.Errorf("engine empty")
	}
	if s.Ticker == "" {
		return fmt.Errorf("ticker empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	return nil
}

func (p *SignalPipeline) allow(key string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[key]
	if last.IsZero() {
		p.lastSeen[key] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
