package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"MicroPulse/internal/bus"
	"MicroPulse/internal/usecase"
	pkgch "MicroPulse/pkg/clickhouse"
	"MicroPulse/pkg/config"
	xhttp "MicroPulse/pkg/http"
	applogger "MicroPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.FeedCollector
	processor  *usecase.SignalProcessor
	handler    xhttp.Handler
	bus        *bus.Bus
	chClient   *pkgch.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.FeedCollector,
	processor *usecase.SignalProcessor,
	handler xhttp.Handler,
	b *bus.Bus,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		processor: processor,
		handler:   handler,
		bus:       b,
		chClient:  chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	}
	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Path != "" {
		opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.handler, a.log, opts...)

	// Start the gateway session. An error here means authentication failed
	// or the first dial could not complete; reconnects are handled inside.
	if err := a.collector.Start(ctx); err != nil {
		return err
	}
	a.log.Info("collector started",
		applogger.String("dataset", a.cfg.Gateway.Dataset),
		applogger.Strings("symbols", a.cfg.Gateway.Symbols),
		applogger.String("backend", a.cfg.Backend.Type))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}

	// Closing the bus ends the hub and sink loops and drops any websocket
	// subscribers.
	a.bus.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	a.processor.Close()

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
