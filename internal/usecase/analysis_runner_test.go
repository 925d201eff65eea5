package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSheet/internal/analysis"
	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
)

type stubTech struct {
	sets map[string]models.IndicatorSet
	err  error
	at   time.Time
}

func (s *stubTech) Analyze(bars []models.PriceBar) (models.IndicatorSet, error) {
	if s.err != nil {
		return models.IndicatorSet{}, s.err
	}
	if len(bars) > 0 {
		return s.sets[bars[0].Symbol], nil
	}
	return models.IndicatorSet{Values: map[string]float64{}, ComputedAt: s.at}, nil
}

type stubFund struct{ at time.Time }

func (s *stubFund) Analyze([]models.FinancialStatement) (models.IndicatorSet, error) {
	return models.IndicatorSet{Values: map[string]float64{"net_margin": 0.12}, ComputedAt: s.at}, nil
}

type stubPred struct {
	score float64
	err   error
}

func (s *stubPred) Predict(symbol string, technical, fundamental models.IndicatorSet) (models.Prediction, error) {
	if s.err != nil {
		return models.Prediction{}, s.err
	}
	merged := models.Merge(technical, fundamental)
	return models.Prediction{
		Symbol: symbol, Signal: models.SignalBullish,
		Score: s.score, Confidence: 1, GeneratedAt: merged.ComputedAt,
	}, nil
}

func newTestRunner(store *fakeStore, tech *stubTech, pred *stubPred, pub *fakePublisher) (*AnalysisRunner, *fakeMetrics) {
	m := newFakeMetrics()
	// a nil *fakePublisher must reach the runner as a nil interface, not a
	// typed-nil one, so the runner's optional-publisher guard still applies
	var pubIface domrepo.Publisher
	if pub != nil {
		pubIface = pub
	}
	r := NewAnalysisRunner(store, tech, &stubFund{at: tech.at}, pred, pubIface, m, RunnerConfig{
		Workers: 2,
		Columns: testColumns,
	})
	return r, m
}

func seedInputs(store *fakeStore, symbols ...string) {
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	for _, sym := range symbols {
		store.bars[sym] = []models.PriceBar{{Symbol: sym, Timestamp: at, Close: 100}}
		store.stmts[sym] = []models.FinancialStatement{{Symbol: sym, Period: at}}
	}
}

func TestRunBatchCreatesLocalOnlyRecord(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
	}}
	pub := &fakePublisher{}
	r, m := newTestRunner(store, tech, &stubPred{score: 0.4}, pub)

	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if _, ok := store.preds["AAPL"]; !ok {
		t.Fatalf("prediction not stored")
	}
	if _, ok := store.sets["AAPL"]; !ok {
		t.Fatalf("indicator set not stored")
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncLocalOnly {
		t.Fatalf("state = %s, want local_only for a first prediction", rec.State)
	}
	if rec.LocalHash == "" {
		t.Fatalf("local hash not computed")
	}
	if len(pub.published) != 1 {
		t.Fatalf("prediction should be published downstream")
	}
	if m.count("prediction:bullish") != 1 {
		t.Fatalf("prediction should be counted")
	}
}

func TestRunBatchUnchangedContentIsNoop(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
	}}
	r, _ := newTestRunner(store, tech, &stubPred{score: 0.4}, nil)

	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := store.record("AAPL")

	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := store.record("AAPL")
	if second != first {
		t.Fatalf("identical recomputation must not advance the record:\n%+v\n%+v", first, second)
	}
}

func TestRunBatchMarksSyncedRecordLocalDirty(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
	}}
	r, _ := newTestRunner(store, tech, &stubPred{score: 0.4}, nil)

	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncSynced,
		LocalHash: "stale", RemoteHash: "stale",
	}
	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncLocalDirty {
		t.Fatalf("state = %s, want local_dirty after a local content change", got)
	}
}

func TestRunBatchConflictsOnRemoteDirtyRecord(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
	}}
	r, m := newTestRunner(store, tech, &stubPred{score: 0.4}, nil)

	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncRemoteDirty,
		LocalHash: "stale", RemoteHash: "remote-h",
	}
	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncConflicted {
		t.Fatalf("state = %s, want conflicted when both sides changed", got)
	}
	if len(store.conflicts) != 1 {
		t.Fatalf("expected a conflict entry")
	}
	if m.count("conflict") != 1 {
		t.Fatalf("conflict should be counted")
	}
}

func TestRunBatchIsolatesFailingInstrument(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL", "MSFT")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
		"MSFT": {Values: map[string]float64{"rsi_14": 48.0}, ComputedAt: at},
	}}
	broken := &failingFor{inner: tech, symbol: "MSFT"}
	m := newFakeMetrics()
	r := NewAnalysisRunner(store, broken, &stubFund{at: at}, &stubPred{score: 0.4}, nil, m, RunnerConfig{
		Workers: 2,
		Columns: testColumns,
	})

	if err := r.RunBatch(context.Background(), []string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if _, ok := store.preds["AAPL"]; !ok {
		t.Fatalf("healthy instrument should still produce a prediction")
	}
	if _, ok := store.preds["MSFT"]; ok {
		t.Fatalf("failing instrument must not produce a prediction")
	}
}

// failingFor wraps an analyzer and fails a single symbol.
type failingFor struct {
	inner  *stubTech
	symbol string
}

func (f *failingFor) Analyze(bars []models.PriceBar) (models.IndicatorSet, error) {
	if len(bars) == 0 || bars[0].Symbol == f.symbol {
		return models.IndicatorSet{}, errors.New("bad series")
	}
	return f.inner.Analyze(bars)
}

func TestRunBatchSkipsInstrumentWithTooFewIndicators(t *testing.T) {
	store := newFakeStore()
	seedInputs(store, "AAPL")
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	tech := &stubTech{at: at, sets: map[string]models.IndicatorSet{
		"AAPL": {Values: map[string]float64{"rsi_14": 61.5}, ComputedAt: at},
	}}
	pred := &stubPred{err: analysis.ErrInsufficientIndicators}
	r, m := newTestRunner(store, tech, pred, nil)

	if err := r.RunBatch(context.Background(), []string{"AAPL"}); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if _, ok := store.preds["AAPL"]; ok {
		t.Fatalf("no prediction should be stored without enough indicators")
	}
	if _, ok := store.recs["AAPL"]; ok {
		t.Fatalf("no sync record should be created without a prediction")
	}
	if m.count("error:insufficient_indicators") != 1 {
		t.Fatalf("expected an insufficient_indicators error count")
	}
}
