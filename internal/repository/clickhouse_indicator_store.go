package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
	pkgch "FinSheet/pkg/clickhouse"
	applogger "FinSheet/pkg/logger"
)

// CHIndicatorStore implements IndicatorStore backed by ClickHouse.
type CHIndicatorStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHIndicatorStore(ch *pkgch.Client, database string) *CHIndicatorStore {
	return &CHIndicatorStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHIndicatorStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHIndicatorStore) table(name string) string {
	return s.database + "." + name
}

func (s *CHIndicatorStore) GetPriceSeries(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, ts, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table("price_bars"))
	rows, err := s.db.QueryContext(ctx, q, symbol, limit)
	if err != nil {
		s.logError("price_bars query error", symbol, err)
		return nil, fmt.Errorf("get price series: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceBar, 0, limit)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			s.logError("price_bars scan error", symbol, err)
			return nil, fmt.Errorf("scan price bar: %w", err)
		}
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse price_bars ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHIndicatorStore) PutPriceBars(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	values := make([]string, 0, len(bars))
	args := make([]interface{}, 0, len(bars)*7)
	for _, b := range bars {
		if b.Symbol == "" || b.Timestamp.IsZero() {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, b.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, ts, open, high, low, close, vol) VALUES %s",
		s.table("price_bars"), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("put price bars: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) GetStatements(ctx context.Context, symbol string, limit int) ([]models.FinancialStatement, error) {
	q := fmt.Sprintf(`
        SELECT period, field, value, usable
        FROM %s
        WHERE symbol = ? AND period IN (
            SELECT DISTINCT period FROM %s WHERE symbol = ? ORDER BY period DESC LIMIT ?
        )
        ORDER BY period ASC, field ASC
    `, s.table("statements"), s.table("statements"))
	rows, err := s.db.QueryContext(ctx, q, symbol, symbol, limit)
	if err != nil {
		s.logError("statements query error", symbol, err)
		return nil, fmt.Errorf("get statements: %w", err)
	}
	defer rows.Close()

	var out []models.FinancialStatement
	var cur *models.FinancialStatement
	for rows.Next() {
		var (
			period time.Time
			field  string
			value  float64
			usable uint8
		)
		if err := rows.Scan(&period, &field, &value, &usable); err != nil {
			return nil, fmt.Errorf("scan statement field: %w", err)
		}
		if cur == nil || !cur.Period.Equal(period) {
			out = append(out, models.FinancialStatement{
				Symbol: symbol,
				Period: period,
				Fields: make(map[string]models.FieldValue),
			})
			cur = &out[len(out)-1]
		}
		if usable == 1 {
			cur.Fields[field] = models.Present(value)
		} else {
			cur.Fields[field] = models.Indeterminate()
		}
	}
	return out, rows.Err()
}

func (s *CHIndicatorStore) PutStatements(ctx context.Context, stmts []models.FinancialStatement) error {
	if len(stmts) == 0 {
		return nil
	}
	values := make([]string, 0, len(stmts)*5)
	args := make([]interface{}, 0, len(stmts)*5*5)
	for _, st := range stmts {
		for field, fv := range st.Fields {
			if fv.Kind == models.FieldMissing {
				continue // absence is represented by absence
			}
			usable := uint8(0)
			if fv.IsPresent() {
				usable = 1
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, st.Symbol, st.Period, field, fv.Value, usable)
		}
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, period, field, value, usable) VALUES %s",
		s.table("statements"), strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("put statements: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) PutIndicatorSet(ctx context.Context, symbol string, set models.IndicatorSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal indicator set: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, computed_at, payload) VALUES (?, ?, ?)", s.table("indicator_sets"))
	if _, err := s.db.ExecContext(ctx, q, symbol, set.ComputedAt, string(payload)); err != nil {
		return fmt.Errorf("put indicator set: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) GetIndicatorSet(ctx context.Context, symbol string) (models.IndicatorSet, error) {
	q := fmt.Sprintf(`
        SELECT payload FROM %s WHERE symbol = ? ORDER BY computed_at DESC LIMIT 1
    `, s.table("indicator_sets"))
	var payload string
	if err := s.db.QueryRowContext(ctx, q, symbol).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.IndicatorSet{}, domrepo.NotFoundError{Entity: "indicator set", Symbol: symbol}
		}
		return models.IndicatorSet{}, fmt.Errorf("get indicator set: %w", err)
	}
	var set models.IndicatorSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return models.IndicatorSet{}, fmt.Errorf("unmarshal indicator set: %w", err)
	}
	return set, nil
}

func (s *CHIndicatorStore) PutPrediction(ctx context.Context, p models.Prediction) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, generated_at, signal, score, confidence) VALUES (?, ?, ?, ?, ?)",
		s.table("predictions"))
	if _, err := s.db.ExecContext(ctx, q, p.Symbol, p.GeneratedAt, string(p.Signal), p.Score, p.Confidence); err != nil {
		return fmt.Errorf("put prediction: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) GetPrediction(ctx context.Context, symbol string) (models.Prediction, error) {
	q := fmt.Sprintf(`
        SELECT symbol, generated_at, signal, score, confidence
        FROM %s WHERE symbol = ? ORDER BY generated_at DESC LIMIT 1
    `, s.table("predictions"))
	var (
		p   models.Prediction
		sig string
	)
	if err := s.db.QueryRowContext(ctx, q, symbol).Scan(&p.Symbol, &p.GeneratedAt, &sig, &p.Score, &p.Confidence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Prediction{}, domrepo.NotFoundError{Entity: "prediction", Symbol: symbol}
		}
		return models.Prediction{}, fmt.Errorf("get prediction: %w", err)
	}
	p.Signal = models.Signal(sig)
	return p, nil
}

func (s *CHIndicatorStore) GetSyncRecord(ctx context.Context, symbol string) (models.SyncRecord, error) {
	q := fmt.Sprintf(`
        SELECT symbol, remote_row_id, local_hash, remote_hash, state, updated_at
        FROM %s WHERE symbol = ? ORDER BY updated_at DESC LIMIT 1
    `, s.table("sync_records"))
	var (
		rec   models.SyncRecord
		state string
	)
	err := s.db.QueryRowContext(ctx, q, symbol).Scan(
		&rec.Symbol, &rec.RemoteRowID, &rec.LocalHash, &rec.RemoteHash, &state, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncRecord{}, domrepo.NotFoundError{Entity: "sync record", Symbol: symbol}
		}
		return models.SyncRecord{}, fmt.Errorf("get sync record: %w", err)
	}
	rec.State = models.SyncState(state)
	return rec, nil
}

func (s *CHIndicatorStore) PutSyncRecord(ctx context.Context, rec models.SyncRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, updated_at, remote_row_id, local_hash, remote_hash, state) VALUES (?, ?, ?, ?, ?, ?)",
		s.table("sync_records"))
	if _, err := s.db.ExecContext(ctx, q,
		rec.Symbol, rec.UpdatedAt, rec.RemoteRowID, rec.LocalHash, rec.RemoteHash, string(rec.State)); err != nil {
		return fmt.Errorf("put sync record: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) ListSyncRecords(ctx context.Context) ([]models.SyncRecord, error) {
	q := fmt.Sprintf(`
        SELECT symbol,
               argMax(remote_row_id, updated_at),
               argMax(local_hash, updated_at),
               argMax(remote_hash, updated_at),
               argMax(state, updated_at),
               max(updated_at)
        FROM %s
        GROUP BY symbol
        ORDER BY symbol
    `, s.table("sync_records"))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sync records: %w", err)
	}
	defer rows.Close()

	var out []models.SyncRecord
	for rows.Next() {
		var (
			rec   models.SyncRecord
			state string
		)
		if err := rows.Scan(&rec.Symbol, &rec.RemoteRowID, &rec.LocalHash, &rec.RemoteHash, &state, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		rec.State = models.SyncState(state)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *CHIndicatorStore) AppendConflict(ctx context.Context, e models.ConflictEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, detected_at, local_snapshot, remote_snapshot, resolution) VALUES (?, ?, ?, ?, ?)",
		s.table("conflict_log"))
	if _, err := s.db.ExecContext(ctx, q, e.Symbol, e.DetectedAt, e.LocalSnapshot, e.RemoteSnapshot, e.Resolution); err != nil {
		return fmt.Errorf("append conflict: %w", err)
	}
	return nil
}

func (s *CHIndicatorStore) ListConflicts(ctx context.Context, since time.Time) ([]models.ConflictEntry, error) {
	q := fmt.Sprintf(`
        SELECT symbol, detected_at, local_snapshot, remote_snapshot, resolution
        FROM %s WHERE detected_at >= ? ORDER BY detected_at DESC
    `, s.table("conflict_log"))
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.ConflictEntry
	for rows.Next() {
		var e models.ConflictEntry
		if err := rows.Scan(&e.Symbol, &e.DetectedAt, &e.LocalSnapshot, &e.RemoteSnapshot, &e.Resolution); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *CHIndicatorStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHIndicatorStore) Close() error {
	return nil // connection pool owned by pkg/clickhouse
}

func (s *CHIndicatorStore) logError(msg, symbol string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("symbol", symbol), applogger.Error(err))
	}
}
