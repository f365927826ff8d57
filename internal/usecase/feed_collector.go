package usecase

import (
	"context"

	"MicroPulse/internal/bus"
	"MicroPulse/internal/domain/models"
	drepo "MicroPulse/internal/domain/repository"
	"MicroPulse/internal/engine"
	mid "MicroPulse/internal/middleware"
)

// FeedCollector owns the gateway session and drives the event flow: decoded
// records go onto the bus, the engine hub consumes them, and emitted signals
// are routed through the pipeline to the backend.
type FeedCollector struct {
	stream  drepo.MarketStream
	bus     *bus.Bus
	hub     *engine.Hub
	pipe    *mid.SignalPipeline
	metrics drepo.Metrics
}

// NewFeedCollector creates a new FeedCollector instance.
func NewFeedCollector(
	stream drepo.MarketStream,
	b *bus.Bus,
	hub *engine.Hub,
	pipe *mid.SignalPipeline,
	metrics drepo.Metrics,
) *FeedCollector {
	return &FeedCollector{stream: stream, bus: b, hub: hub, pipe: pipe, metrics: metrics}
}

// IsConnected returns true if the gateway session is live.
func (c *FeedCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Status returns the gateway session view.
func (c *FeedCollector) Status() models.ConnectionStatus {
	return c.stream.Status()
}

// Start connects to the gateway and launches the consume loops. The stream
// handles its own reconnects; a terminal auth failure is returned here.
func (c *FeedCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}

	engineCh := c.bus.Subscribe("engines", 4096)
	signalCh := c.bus.Subscribe("backend", 1024)

	go c.pump(ctx)
	go c.hub.Run(ctx, engineCh)
	go c.sink(ctx, signalCh)
	return nil
}

// pump moves decoded events from the stream onto the bus.
func (c *FeedCollector) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.stream.Events():
			if !ok {
				return
			}
			c.bus.Publish(ev)
		}
	}
}

// sink feeds emitted signals through the pipeline to the backend.
func (c *FeedCollector) sink(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != models.EventSignal || ev.Signal == nil {
				continue
			}
			if err := c.pipe.Process(ctx, ev.Signal); err != nil {
				c.metrics.RecordError("sink")
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Disconnect()
}
