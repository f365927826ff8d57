package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"MicroPulse/internal/domain/models"
	"MicroPulse/pkg/metrics"
)

type fakePublisher struct {
	single  int
	batched int
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, _ *models.Signal) error {
	f.single++
	return f.err
}

func (f *fakePublisher) PublishBatch(_ context.Context, sigs []*models.Signal) error {
	f.batched += len(sigs)
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

type fakeStore struct {
	single  int
	batched int
	err     error
}

func (f *fakeStore) Init(_ context.Context) error { return nil }

func (f *fakeStore) Store(_ context.Context, _ *models.Signal) error {
	f.single++
	return f.err
}

func (f *fakeStore) StoreBatch(_ context.Context, sigs []*models.Signal) error {
	f.batched += len(sigs)
	return f.err
}

func (f *fakeStore) Query(_ context.Context, _, _ string, _, _ time.Time, _ int) ([]*models.Signal, error) {
	return nil, nil
}

func (f *fakeStore) Health(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func testSignals(n int) []*models.Signal {
	out := make([]*models.Signal, n)
	for i := range out {
		out[i] = &models.Signal{Ticker: "ESZ6", Engine: "vwap"}
	}
	return out
}

func TestProcessRoutesToBackend(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{}

	p := NewSignalProcessor(pub, store, metrics.Nop{}, "kafka")
	if err := p.Process(context.Background(), testSignals(1)[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if pub.single != 1 || store.single != 0 {
		t.Fatalf("expected kafka route, got pub=%d store=%d", pub.single, store.single)
	}

	p = NewSignalProcessor(pub, store, metrics.Nop{}, "clickhouse")
	if err := p.Process(context.Background(), testSignals(1)[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if store.single != 1 {
		t.Fatalf("expected clickhouse route, got store=%d", store.single)
	}
}

func TestProcessBatchRoutesToBackend(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{}

	p := NewSignalProcessor(pub, store, metrics.Nop{}, "kafka")
	if err := p.ProcessBatch(context.Background(), testSignals(3)); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if pub.batched != 3 || store.batched != 0 {
		t.Fatalf("expected kafka batch route, got pub=%d store=%d", pub.batched, store.batched)
	}

	p = NewSignalProcessor(pub, store, metrics.Nop{}, "clickhouse")
	if err := p.ProcessBatch(context.Background(), testSignals(2)); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if store.batched != 2 {
		t.Fatalf("expected clickhouse batch route, got store=%d", store.batched)
	}
}

func TestProcessBatchEmptyAndErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}

	p := NewSignalProcessor(pub, &fakeStore{}, metrics.Nop{}, "kafka")
	if err := p.ProcessBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op, got %v", err)
	}
	if pub.batched != 0 {
		t.Fatalf("empty batch reached the publisher")
	}

	if err := p.ProcessBatch(context.Background(), testSignals(1)); err == nil {
		t.Fatal("expected publish error to surface")
	}

	p = NewSignalProcessor(pub, &fakeStore{}, metrics.Nop{}, "postgres")
	if err := p.ProcessBatch(context.Background(), testSignals(1)); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
