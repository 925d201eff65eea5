package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinSheet/internal/analysis"
	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
	domsvc "FinSheet/internal/domain/service"
	applogger "FinSheet/pkg/logger"
)

// RunnerConfig bounds one analysis batch.
type RunnerConfig struct {
	Workers          int
	BarHistory       int
	StatementHistory int
	Columns          []string // declared sheet indicator columns
}

func (c RunnerConfig) normalize() RunnerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BarHistory <= 0 {
		c.BarHistory = 250
	}
	if c.StatementHistory <= 0 {
		c.StatementHistory = 8
	}
	return c
}

// AnalysisRunner computes indicators and predictions for a batch of
// instruments. Instruments are independent and run on a bounded worker pool;
// within one instrument the prediction starts only after both analyzers
// finished.
type AnalysisRunner struct {
	store   domrepo.IndicatorStore
	tech    domsvc.TechnicalAnalyzer
	fund    domsvc.FundamentalAnalyzer
	pred    domsvc.PredictionAnalyzer
	pub     domrepo.Publisher
	metrics domrepo.Metrics
	cfg     RunnerConfig
	l       *applogger.Logger
}

func NewAnalysisRunner(
	store domrepo.IndicatorStore,
	tech domsvc.TechnicalAnalyzer,
	fund domsvc.FundamentalAnalyzer,
	pred domsvc.PredictionAnalyzer,
	pub domrepo.Publisher,
	metrics domrepo.Metrics,
	cfg RunnerConfig,
) *AnalysisRunner {
	return &AnalysisRunner{
		store:   store,
		tech:    tech,
		fund:    fund,
		pred:    pred,
		pub:     pub,
		metrics: metrics,
		cfg:     cfg.normalize(),
	}
}

// SetLogger injects a structured logger.
func (r *AnalysisRunner) SetLogger(l *applogger.Logger) { r.l = l }

// RunBatch analyzes every symbol. Per-instrument failures are isolated: they
// are logged and counted, and the rest of the batch proceeds. Only context
// cancellation stops the batch early.
func (r *AnalysisRunner) RunBatch(ctx context.Context, symbols []string) error {
	start := time.Now()
	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup
	var failed int64
	var mu sync.Mutex

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := r.analyzeOne(ctx, symbol); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				r.logSkip(symbol, err)
			}
		}(symbol)
	}
	wg.Wait()

	r.metrics.RecordLatency("analyze_batch", time.Since(start).Seconds())
	if r.l != nil {
		r.l.Info("analysis batch done",
			applogger.Int("symbols", len(symbols)),
			applogger.Int64("failed", failed),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return ctx.Err()
}

func (r *AnalysisRunner) analyzeOne(ctx context.Context, symbol string) error {
	bars, err := r.store.GetPriceSeries(ctx, symbol, r.cfg.BarHistory)
	if err != nil {
		return fmt.Errorf("price series: %w", err)
	}
	stmts, err := r.store.GetStatements(ctx, symbol, r.cfg.StatementHistory)
	if err != nil {
		return fmt.Errorf("statements: %w", err)
	}

	// The two analyzers touch disjoint inputs and run concurrently; the
	// prediction needs both.
	var (
		wg      sync.WaitGroup
		techSet models.IndicatorSet
		fundSet models.IndicatorSet
		techErr error
		fundErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		techSet, techErr = r.tech.Analyze(bars)
	}()
	go func() {
		defer wg.Done()
		fundSet, fundErr = r.fund.Analyze(stmts)
	}()
	wg.Wait()

	// A prediction is never backed by a partial indicator set: either
	// analyzer failing blocks the instrument for this run.
	if techErr != nil {
		return fmt.Errorf("technical: %w", techErr)
	}
	if fundErr != nil {
		return fmt.Errorf("fundamental: %w", fundErr)
	}

	merged := models.Merge(techSet, fundSet)
	if err := r.store.PutIndicatorSet(ctx, symbol, merged); err != nil {
		return fmt.Errorf("store indicator set: %w", err)
	}

	pred, err := r.pred.Predict(symbol, techSet, fundSet)
	if err != nil {
		if errors.Is(err, analysis.ErrInsufficientIndicators) {
			r.metrics.RecordError("insufficient_indicators")
		}
		return err
	}

	if err := r.store.PutPrediction(ctx, pred); err != nil {
		return fmt.Errorf("store prediction: %w", err)
	}
	r.metrics.RecordPrediction(symbol, string(pred.Signal))

	if r.pub != nil {
		if err := r.pub.PublishPrediction(ctx, pred, merged); err != nil {
			// downstream feed is best-effort; the stored record is the truth
			r.metrics.RecordError("publish")
			if r.l != nil {
				r.l.Warn("prediction publish failed",
					applogger.String("symbol", symbol), applogger.Error(err))
			}
		}
	}

	return r.refreshSyncRecord(ctx, pred, merged)
}

// refreshSyncRecord recomputes the local content hash and advances the sync
// record when the content changed. State transitions here mirror the sync
// manager's table: a local change on a clean record marks it dirty, a local
// change on a remotely-dirty record is a conflict.
func (r *AnalysisRunner) refreshSyncRecord(ctx context.Context, pred models.Prediction, set models.IndicatorSet) error {
	row := models.RowFromPrediction(pred, set, r.cfg.Columns)
	newHash := row.ContentHash()
	now := time.Now().UTC()

	rec, err := r.store.GetSyncRecord(ctx, pred.Symbol)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return fmt.Errorf("sync record: %w", err)
		}
		rec = models.SyncRecord{
			Symbol:    pred.Symbol,
			LocalHash: newHash,
			State:     models.SyncLocalOnly,
			UpdatedAt: now,
		}
		r.metrics.RecordSyncTransition(string(rec.State))
		return r.store.PutSyncRecord(ctx, rec)
	}

	if rec.LocalHash == newHash {
		return nil // recomputation reproduced the content, nothing to advance
	}

	rec.LocalHash = newHash
	rec.UpdatedAt = now
	switch rec.State {
	case models.SyncSynced:
		rec.State = models.SyncLocalDirty
	case models.SyncRemoteDirty:
		rec.State = models.SyncConflicted
		r.metrics.RecordConflict(pred.Symbol)
		local, _ := json.Marshal(row)
		remote, _ := json.Marshal(map[string]string{"content_hash_at_last_sync": rec.RemoteHash})
		if err := r.store.AppendConflict(ctx, models.ConflictEntry{
			Symbol:         pred.Symbol,
			DetectedAt:     now,
			LocalSnapshot:  string(local),
			RemoteSnapshot: string(remote),
			Resolution:     models.ResolutionPending,
		}); err != nil {
			return fmt.Errorf("append conflict: %w", err)
		}
	case models.SyncLocalOnly, models.SyncLocalDirty, models.SyncConflicted:
		// already pending on the local side
	}
	r.metrics.RecordSyncTransition(string(rec.State))
	return r.store.PutSyncRecord(ctx, rec)
}

func (r *AnalysisRunner) logSkip(symbol string, err error) {
	if r.l == nil {
		return
	}
	switch {
	case errors.Is(err, analysis.ErrInsufficientIndicators):
		r.l.Warn("prediction skipped", applogger.String("symbol", symbol), applogger.Error(err))
	case errors.Is(err, analysis.ErrMalformedSeries):
		r.l.Error("malformed input series", applogger.String("symbol", symbol), applogger.Error(err))
	default:
		r.l.Error("instrument analysis failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
}
