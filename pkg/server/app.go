package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "FinSheet/internal/domain/repository"
	"FinSheet/internal/usecase"
	pkgch "FinSheet/pkg/clickhouse"
	"FinSheet/pkg/config"
	xhttp "FinSheet/pkg/http"
	applogger "FinSheet/pkg/logger"

	"github.com/robfig/cron/v3"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	cycle       *usecase.Cycle
	chClient    *pkgch.Client
	publisher   domrepo.Publisher
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	logger      *applogger.Logger
	scheduler   *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	cycle *usecase.Cycle,
	chClient *pkgch.Client,
	publisher domrepo.Publisher,
	logger *applogger.Logger,
) *App {
	return &App{
		cfg:       cfg,
		cycle:     cycle,
		chClient:  chClient,
		publisher: publisher,
		logger:    logger,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.logger
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(l, time.Second),
	)

	if a.cfg.Schedule.Enabled {
		a.scheduler = cron.New()
		_, err := a.scheduler.AddFunc(a.cfg.Schedule.Cron, func() {
			if err := a.cycle.Run(ctx); err != nil {
				if errors.Is(err, usecase.ErrCycleInProgress) {
					l.Warn("scheduled cycle skipped, previous still running")
					return
				}
				l.Error("scheduled cycle failed", applogger.Error(err))
			}
		})
		if err != nil {
			l.Error("invalid cycle schedule", applogger.Error(err))
			return err
		}
		a.scheduler.Start()
		l.Info("cycle scheduler started", applogger.String("cron", a.cfg.Schedule.Cron))
	} else {
		// One run at startup, then trigger via the admin API.
		go func() {
			if err := a.cycle.Run(ctx); err != nil {
				l.Error("startup cycle failed", applogger.Error(err))
			}
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("app started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("symbols", a.cfg.Provider.Symbols))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	cancel()
	return a.shutdown(l)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(l *applogger.Logger) error {
	if a.scheduler != nil {
		// waits for an in-flight scheduled run
		<-a.scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			l.Warn("publisher close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
