package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
	"FinSheet/internal/service/marketdata"
	"FinSheet/internal/service/ratelimit"
	applogger "FinSheet/pkg/logger"
)

// MarketSource supplies raw market data for one instrument.
type MarketSource interface {
	FetchBars(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
	FetchStatements(ctx context.Context, symbol string) ([]models.FinancialStatement, error)
}

// Locker serializes cycles across processes. pkg/cache.Service satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// CycleConfig tunes one end-to-end run.
type CycleConfig struct {
	Symbols    []string
	BarHistory int
	LockTTL    time.Duration
	Retry      ratelimit.RetryConfig
}

const cycleLockKey = "cycle:leader"

// Cycle runs the full pipeline in its fixed order: import remote edits,
// ingest fresh market data, recompute analysis, export pending rows. At most
// one cycle runs at a time, in-process and across replicas.
type Cycle struct {
	sync    *SyncManager
	runner  *AnalysisRunner
	source  MarketSource
	store   domrepo.IndicatorStore
	locker  Locker
	metrics domrepo.Metrics
	cfg     CycleConfig
	l       *applogger.Logger

	running atomic.Bool
}

func NewCycle(
	sm *SyncManager,
	runner *AnalysisRunner,
	source MarketSource,
	store domrepo.IndicatorStore,
	locker Locker,
	metrics domrepo.Metrics,
	cfg CycleConfig,
) *Cycle {
	if cfg.BarHistory <= 0 {
		cfg.BarHistory = 250
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Cycle{
		sync:    sm,
		runner:  runner,
		source:  source,
		store:   store,
		locker:  locker,
		metrics: metrics,
		cfg:     cfg,
	}
}

// SetLogger injects a structured logger.
func (c *Cycle) SetLogger(l *applogger.Logger) { c.l = l }

// Running reports whether a cycle is currently in flight in this process.
func (c *Cycle) Running() bool { return c.running.Load() }

// RunOpts adjusts a single run.
type RunOpts struct {
	// SkipFetch runs analysis and sync over already stored data without
	// hitting the market data provider.
	SkipFetch bool
}

// Run executes one cycle with default options.
func (c *Cycle) Run(ctx context.Context) error {
	return c.RunWith(ctx, RunOpts{})
}

// RunWith executes one cycle. A second trigger while one is in flight returns
// ErrCycleInProgress instead of queueing.
func (c *Cycle) RunWith(ctx context.Context, opts RunOpts) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer c.running.Store(false)

	if c.locker != nil {
		ok, err := c.locker.TryLock(ctx, cycleLockKey, c.cfg.LockTTL)
		if err != nil {
			if c.l != nil {
				c.l.Warn("cycle lock unavailable, proceeding unguarded", applogger.Error(err))
			}
		} else if !ok {
			return ErrCycleInProgress
		} else {
			defer func() {
				if uerr := c.locker.Unlock(context.WithoutCancel(ctx), cycleLockKey); uerr != nil && c.l != nil {
					c.l.Warn("cycle unlock failed", applogger.Error(uerr))
				}
			}()
		}
	}

	start := time.Now()
	if c.l != nil {
		c.l.Info("cycle start", applogger.Int("symbols", len(c.cfg.Symbols)))
	}

	// Remote edits land before recomputation so this cycle's analysis and
	// conflict detection see them.
	if err := c.sync.Import(ctx); err != nil {
		return err
	}
	if !opts.SkipFetch {
		if err := c.ingest(ctx); err != nil {
			return err
		}
	}
	if err := c.runner.RunBatch(ctx, c.cfg.Symbols); err != nil {
		return err
	}
	if err := c.sync.Export(ctx); err != nil {
		return err
	}

	c.metrics.RecordLatency("cycle", time.Since(start).Seconds())
	if c.l != nil {
		c.l.Info("cycle done", applogger.Duration("took", time.Since(start)))
	}
	return nil
}

// ingest pulls fresh bars and statements for every configured instrument.
// Transient provider failures are retried with backoff before the instrument
// is skipped for this cycle; its previously stored history still feeds the
// analysis step either way.
func (c *Cycle) ingest(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	for _, symbol := range c.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}

		var bars []models.PriceBar
		err := ratelimit.Do(ctx, c.cfg.Retry, marketdata.IsTransient, func(ctx context.Context) error {
			var ferr error
			bars, ferr = c.source.FetchBars(ctx, symbol, c.cfg.BarHistory)
			return ferr
		})
		if err != nil {
			c.metrics.RecordError("ingest_bars")
			if c.l != nil {
				c.l.Warn("bar fetch failed", applogger.String("symbol", symbol), applogger.Error(err))
			}
		} else if len(bars) > 0 {
			if err := c.store.PutPriceBars(ctx, bars); err != nil {
				c.metrics.RecordError("store_bars")
				if c.l != nil {
					c.l.Error("bar store failed", applogger.String("symbol", symbol), applogger.Error(err))
				}
			}
		}

		var stmts []models.FinancialStatement
		err = ratelimit.Do(ctx, c.cfg.Retry, marketdata.IsTransient, func(ctx context.Context) error {
			var ferr error
			stmts, ferr = c.source.FetchStatements(ctx, symbol)
			return ferr
		})
		if err != nil {
			c.metrics.RecordError("ingest_statements")
			if c.l != nil {
				c.l.Warn("statement fetch failed", applogger.String("symbol", symbol), applogger.Error(err))
			}
		} else if len(stmts) > 0 {
			if err := c.store.PutStatements(ctx, stmts); err != nil {
				c.metrics.RecordError("store_statements")
				if c.l != nil {
					c.l.Error("statement store failed", applogger.String("symbol", symbol), applogger.Error(err))
				}
			}
		}
	}
	return nil
}
