package di

import (
	"context"
	"fmt"
	"time"

	"FinSheet/internal/analysis"
	"FinSheet/internal/domain/repository"
	domsvc "FinSheet/internal/domain/service"
	"FinSheet/internal/handler/api"
	internalrepo "FinSheet/internal/repository"
	"FinSheet/internal/service/marketdata"
	"FinSheet/internal/service/ratelimit"
	"FinSheet/internal/service/sheets"
	"FinSheet/internal/usecase"
	"FinSheet/pkg/cache"
	pkgch "FinSheet/pkg/clickhouse"
	"FinSheet/pkg/config"
	xhttp "FinSheet/pkg/http"
	pkgkafka "FinSheet/pkg/kafka"
	applogger "FinSheet/pkg/logger"
	"FinSheet/pkg/metrics"
	"FinSheet/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	if cfg.Environment == "development" {
		lc.Level = "debug"
		lc.Format = "console"
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideIndicatorStore creates the ClickHouse-backed indicator store.
func ProvideIndicatorStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.IndicatorStore {
	store := internalrepo.NewCHIndicatorStore(chClient, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

// ProvideCache creates the cache backend: Redis when enabled, in-process
// memory otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	// memory front, redis behind; locks always go to redis
	return cache.NewLayeredCache(c), nil
}

// ProvidePublisher creates the prediction publisher: Kafka when enabled, a
// no-op otherwise.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPredictionPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideSheetClient creates the spreadsheet client.
func ProvideSheetClient(cfg *config.Config, l *applogger.Logger) repository.SheetClient {
	c := sheets.New(cfg.Sheet.BaseURL, cfg.Sheet.SpreadsheetID, cfg.Sheet.Token, cfg.Sheet.Timeout)
	c.SetLogger(l)
	return c
}

// ProvideMarketSource creates the market data provider client.
func ProvideMarketSource(cfg *config.Config, l *applogger.Logger) usecase.MarketSource {
	c := marketdata.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	c.SetLogger(l)
	return c
}

// ProvidePredictor builds the weighted predictor from configuration.
func ProvidePredictor(cfg *config.Config) (domsvc.PredictionAnalyzer, error) {
	rules := make([]analysis.WeightRule, 0, len(cfg.Analysis.Weights))
	for _, w := range cfg.Analysis.Weights {
		rules = append(rules, analysis.WeightRule{
			Indicator: w.Indicator,
			Weight:    w.Weight,
			Center:    w.Center,
			Scale:     w.Scale,
		})
	}
	p, err := analysis.NewPredictor(rules, cfg.Analysis.MinIndicatorFraction)
	if err != nil {
		return nil, fmt.Errorf("predictor: %w", err)
	}
	return p, nil
}

// ProvideAnalysisRunner creates the per-instrument analysis pipeline.
func ProvideAnalysisRunner(
	store repository.IndicatorStore,
	pred domsvc.PredictionAnalyzer,
	pub repository.Publisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.AnalysisRunner {
	r := usecase.NewAnalysisRunner(
		store,
		analysis.NewTechnical(),
		analysis.NewFundamental(),
		pred,
		pub,
		m,
		usecase.RunnerConfig{
			Workers:          cfg.Analysis.Workers,
			BarHistory:       cfg.Analysis.BarHistory,
			StatementHistory: cfg.Analysis.StatementHistory,
			Columns:          cfg.Sheet.Columns,
		},
	)
	r.SetLogger(l)
	return r
}

// ProvideSyncManager creates the sheet sync manager.
func ProvideSyncManager(
	store repository.IndicatorStore,
	sheet repository.SheetClient,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SyncManager {
	sm := usecase.NewSyncManager(store, sheet, m, cfg.Provider.Symbols, usecase.SyncConfig{
		Policy:  cfg.Sync.Policy,
		Columns: cfg.Sheet.Columns,
		Retry: ratelimit.RetryConfig{
			MaxAttempts: cfg.Sync.MaxAttempts,
			BackoffMin:  cfg.Sync.BackoffMin,
			BackoffMax:  cfg.Sync.BackoffMax,
		},
	})
	sm.SetLogger(l)
	return sm
}

// ProvideCycle creates the end-to-end pipeline cycle.
func ProvideCycle(
	sm *usecase.SyncManager,
	runner *usecase.AnalysisRunner,
	source usecase.MarketSource,
	store repository.IndicatorStore,
	c cache.Service,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Cycle {
	cy := usecase.NewCycle(sm, runner, source, store, c, m, usecase.CycleConfig{
		Symbols:    cfg.Provider.Symbols,
		BarHistory: cfg.Analysis.BarHistory,
		Retry: ratelimit.RetryConfig{
			MaxAttempts: cfg.Sync.MaxAttempts,
			BackoffMin:  cfg.Sync.BackoffMin,
			BackoffMax:  cfg.Sync.BackoffMax,
		},
	})
	cy.SetLogger(l)
	return cy
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	cycle *usecase.Cycle,
	sm *usecase.SyncManager,
	store repository.IndicatorStore,
	c cache.Service,
	chClient *pkgch.Client,
	pub repository.Publisher,
	l *applogger.Logger,
) *server.App {
	app := server.New(cfg, cycle, chClient, pub, l)
	var h xhttp.Handler = api.NewAdminEchoHandler(l, store, sm, cycle, c)
	app.SetHTTPHandler(h)
	return app
}
