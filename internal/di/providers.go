package di

import (
	"context"
	"fmt"
	"time"

	"MicroPulse/internal/bus"
	"MicroPulse/internal/directory"
	"MicroPulse/internal/domain/repository"
	"MicroPulse/internal/engine"
	"MicroPulse/internal/handler/api"
	"MicroPulse/internal/lsg"
	mid "MicroPulse/internal/middleware"
	internalrepo "MicroPulse/internal/repository"
	"MicroPulse/internal/usecase"
	"MicroPulse/pkg/cache"
	pkgch "MicroPulse/pkg/clickhouse"
	"MicroPulse/pkg/config"
	xhttp "MicroPulse/pkg/http"
	pkgkafka "MicroPulse/pkg/kafka"
	applogger "MicroPulse/pkg/logger"
	"MicroPulse/pkg/metrics"
	"MicroPulse/pkg/server"
)

// ProvideLogger creates the application logger with a bounded ring of recent
// warn/error entries for the status endpoint.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, err
	}
	l.AddCollector(200)
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when
// metrics are disabled.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideMarketStream creates the gateway session client with its
// subscriptions registered. Definition and statistic schemas ride along so
// the instrument directory can populate.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (repository.MarketStream, error) {
	client := lsg.NewClient(lsg.Config{
		Dataset:           cfg.Gateway.Dataset,
		APIKey:            cfg.Gateway.APIKey,
		Domain:            cfg.Gateway.Domain,
		Port:              cfg.Gateway.Port,
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		DialTimeout:       cfg.Gateway.DialTimeout,
		EventBuffer:       cfg.Gateway.EventBuffer,
	}, l, m)

	if err := client.Subscribe(cfg.Gateway.Schema, cfg.Gateway.SymbolType, cfg.Gateway.Symbols, cfg.Gateway.ReplayFromStart); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Gateway.Schema, err)
	}
	for _, schema := range []string{"definition", "statistics"} {
		if err := client.Subscribe(schema, cfg.Gateway.SymbolType, cfg.Gateway.Symbols, false); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", schema, err)
		}
	}
	return client, nil
}

// ProvideDirectory creates the instrument directory.
func ProvideDirectory(cfg *config.Config) *directory.Directory {
	return directory.New(cfg.Directory.MinElapsed, cfg.Directory.MinDefs)
}

// ProvideBus creates the event bus.
func ProvideBus(m repository.Metrics, l *applogger.Logger) *bus.Bus {
	return bus.New(m, l)
}

// ProvideHub creates the engine hub wired to publish derived events back
// onto the bus, and registers configured pairs.
func ProvideHub(
	cfg *config.Config,
	dir *directory.Directory,
	b *bus.Bus,
	m repository.Metrics,
	l *applogger.Logger,
) *engine.Hub {
	hub := engine.NewHub(
		engine.HubConfig{
			TrainInterval: cfg.Engines.TrainInterval,
		},
		dir,
		engine.SkewConfig{
			Threshold: cfg.Engines.SkewThreshold,
			Cooldown:  cfg.Engines.SkewCooldown,
		},
		engine.ImbalanceConfig{
			Levels: cfg.Engines.ObiLevels,
		},
		engine.VwapConfig{
			Cooldown: cfg.Engines.VwapCooldown,
		},
		engine.PairsConfig{},
		engine.CombinerConfig{},
		engine.SweepConfig{
			Window:      cfg.Engines.SweepWindow,
			MinNotional: cfg.Engines.SweepNotional,
		},
		m,
		l,
		b.Publish,
	)
	for _, p := range cfg.Engines.Pairs {
		hub.AddPair(p.Y, p.X)
	}
	return hub
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// signal schema. Returns nil when the backend is not clickhouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Backend.Type != "clickhouse" {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append(
		[]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database},
		internalrepo.SignalSchema(signalTable(cfg))...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer. Returns nil when the
// backend is not kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalStore creates the ClickHouse signal store.
func ProvideSignalStore(chClient *pkgch.Client, cfg *config.Config) repository.SignalStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseSignalStore(chClient.DB(), signalTable(cfg))
}

// ProvideSignalPublisher creates the Kafka signal publisher.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
}

// ProvideSignalProcessor creates the backend router use case.
func ProvideSignalProcessor(
	pub repository.Publisher,
	store repository.SignalStore,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.SignalProcessor {
	return usecase.NewSignalProcessor(pub, store, m, cfg.Backend.Type)
}

// ProvideFeedCollector wires the stream, bus, hub and delivery pipeline.
func ProvideFeedCollector(
	stream repository.MarketStream,
	b *bus.Bus,
	hub *engine.Hub,
	processor *usecase.SignalProcessor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.FeedCollector {
	pipe := mid.NewSignalPipeline(processor, m,
		mid.WithMaxRPS(20),
		mid.WithBufferSize(1000),
		mid.WithBatch(cfg.Backend.BatchSize, cfg.Backend.BatchTimeout),
	)
	return usecase.NewFeedCollector(stream, b, hub, pipe, m)
}

// ProvideCache creates the query cache: layered with Redis when enabled,
// in-memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Cache.Redis.Addr),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc), nil
}

// ProvideSignalQuery creates the read-side use case. History is only served
// when the backend persists locally.
func ProvideSignalQuery(
	hub *engine.Hub,
	stream repository.MarketStream,
	processor *usecase.SignalProcessor,
	c cache.Service,
	cfg *config.Config,
) *usecase.SignalQuery {
	return usecase.NewSignalQuery(hub, stream, processor.Store(), c, cfg.Cache.TTL)
}

// ProvideHTTPHandler creates the Echo API handler with its websocket
// streaming endpoint.
func ProvideHTTPHandler(l *applogger.Logger, query *usecase.SignalQuery, b *bus.Bus) xhttp.Handler {
	return api.NewSignalsEchoHandler(l, query, api.NewStreamHandler(l, b))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.FeedCollector,
	processor *usecase.SignalProcessor,
	handler xhttp.Handler,
	b *bus.Bus,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, l, collector, processor, handler, b, chClient)
}

func signalTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + ".signals"
}
