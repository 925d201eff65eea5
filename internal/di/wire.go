//go:build wireinject
// +build wireinject

package di

import (
	"FinSheet/pkg/config"
	"FinSheet/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvidePublisher,
		ProvideSheetClient,
		ProvideMarketSource,

		// Repositories
		ProvideIndicatorStore,

		// Analysis
		ProvidePredictor,
		ProvideAnalysisRunner,

		// Sync and orchestration
		ProvideSyncManager,
		ProvideCycle,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
