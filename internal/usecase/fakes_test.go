package usecase

import (
	"context"
	"sync"
	"time"

	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
)

// fakeStore is an in-memory IndicatorStore.
type fakeStore struct {
	mu        sync.Mutex
	bars      map[string][]models.PriceBar
	stmts     map[string][]models.FinancialStatement
	sets      map[string]models.IndicatorSet
	preds     map[string]models.Prediction
	recs      map[string]models.SyncRecord
	conflicts []models.ConflictEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bars:  make(map[string][]models.PriceBar),
		stmts: make(map[string][]models.FinancialStatement),
		sets:  make(map[string]models.IndicatorSet),
		preds: make(map[string]models.Prediction),
		recs:  make(map[string]models.SyncRecord),
	}
}

func (s *fakeStore) GetPriceSeries(_ context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.bars[symbol]
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) PutPriceBars(_ context.Context, bars []models.PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
	}
	return nil
}

func (s *fakeStore) GetStatements(_ context.Context, symbol string, limit int) ([]models.FinancialStatement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stmts[symbol]
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) PutStatements(_ context.Context, stmts []models.FinancialStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stmts {
		s.stmts[st.Symbol] = append(s.stmts[st.Symbol], st)
	}
	return nil
}

func (s *fakeStore) PutIndicatorSet(_ context.Context, symbol string, set models.IndicatorSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[symbol] = set
	return nil
}

func (s *fakeStore) GetIndicatorSet(_ context.Context, symbol string) (models.IndicatorSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[symbol]
	if !ok {
		return models.IndicatorSet{}, domrepo.NotFoundError{Entity: "indicator set", Symbol: symbol}
	}
	return set, nil
}

func (s *fakeStore) PutPrediction(_ context.Context, p models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preds[p.Symbol] = p
	return nil
}

func (s *fakeStore) GetPrediction(_ context.Context, symbol string) (models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.preds[symbol]
	if !ok {
		return models.Prediction{}, domrepo.NotFoundError{Entity: "prediction", Symbol: symbol}
	}
	return p, nil
}

func (s *fakeStore) GetSyncRecord(_ context.Context, symbol string) (models.SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[symbol]
	if !ok {
		return models.SyncRecord{}, domrepo.NotFoundError{Entity: "sync record", Symbol: symbol}
	}
	return rec, nil
}

func (s *fakeStore) PutSyncRecord(_ context.Context, rec models.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Symbol] = rec
	return nil
}

func (s *fakeStore) ListSyncRecords(_ context.Context) ([]models.SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SyncRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) AppendConflict(_ context.Context, e models.ConflictEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append(s.conflicts, e)
	return nil
}

func (s *fakeStore) ListConflicts(_ context.Context, since time.Time) ([]models.ConflictEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConflictEntry
	for _, e := range s.conflicts {
		if !e.DetectedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func (s *fakeStore) record(symbol string) models.SyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[symbol]
}

// fakeSheet is an in-memory SheetClient.
type fakeSheet struct {
	mu       sync.Mutex
	rows     []models.SheetRow
	fetchErr error

	upsertErr error
	upserts   []models.SheetRow
	nextID    int
}

func (f *fakeSheet) FetchRows(context.Context) ([]models.SheetRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]models.SheetRow, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakeSheet) UpsertRow(_ context.Context, row models.SheetRow) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.upserts = append(f.upserts, row)
	if row.RowID != "" {
		return row.RowID, nil
	}
	f.nextID++
	return "row-" + row.Symbol, nil
}

func (f *fakeSheet) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// fakeMetrics counts recorder calls by name.
type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[string]int)}
}

func (m *fakeMetrics) bump(k string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[k]++
}

func (m *fakeMetrics) count(k string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[k]
}

func (m *fakeMetrics) RecordPrediction(symbol, signal string) { m.bump("prediction:" + signal) }
func (m *fakeMetrics) RecordSyncTransition(state string)      { m.bump("transition:" + state) }
func (m *fakeMetrics) RecordConflict(string)                  { m.bump("conflict") }
func (m *fakeMetrics) RecordError(kind string)                { m.bump("error:" + kind) }
func (m *fakeMetrics) RecordLatency(string, float64)          {}

// fakePublisher records published predictions.
type fakePublisher struct {
	mu        sync.Mutex
	published []models.Prediction
	err       error
}

func (p *fakePublisher) PublishPrediction(_ context.Context, pred models.Prediction, _ models.IndicatorSet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, pred)
	return nil
}

func (p *fakePublisher) Close() error { return nil }
