package usecase

import (
	"context"
	"fmt"
	"time"

	"MicroPulse/internal/domain/models"
	drepo "MicroPulse/internal/domain/repository"
)

// SignalProcessor routes emitted signals to the configured backend.
type SignalProcessor struct {
	pub     drepo.Publisher
	store   drepo.SignalStore
	metrics drepo.Metrics
	backend string
}

// NewSignalProcessor creates a new SignalProcessor instance.
func NewSignalProcessor(
	pub drepo.Publisher,
	store drepo.SignalStore,
	metrics drepo.Metrics,
	backend string,
) *SignalProcessor {
	return &SignalProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// Process routes a single signal to the configured backend.
func (p *SignalProcessor) Process(ctx context.Context, s *models.Signal) error {
	if s == nil {
		return fmt.Errorf("signal is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, s)
	case "clickhouse":
		err = p.store.Store(ctx, s)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process signal: %w", err)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch moves several signals in one backend call. The pipeline's
// flush loop uses it to drain its retry buffer without a round-trip per
// signal.
func (p *SignalProcessor) ProcessBatch(ctx context.Context, sigs []*models.Signal) error {
	if len(sigs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, sigs)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, sigs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}

// Store returns the signal store when the backend persists locally, nil for
// the kafka backend.
func (p *SignalProcessor) Store() drepo.SignalStore {
	if p.backend == "clickhouse" {
		return p.store
	}
	return nil
}

// Close closes underlying resources if available.
func (p *SignalProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
