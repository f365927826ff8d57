//go:build wireinject
// +build wireinject

package di

import (
	"MicroPulse/pkg/config"
	"MicroPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Market data plumbing
		ProvideMarketStream,
		ProvideDirectory,
		ProvideBus,
		ProvideHub,

		// Repositories
		ProvideSignalStore,
		ProvideSignalPublisher,

		// Use cases
		ProvideSignalProcessor,
		ProvideFeedCollector,
		ProvideSignalQuery,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
