package repository

import (
	"context"
	"time"

	"FinSheet/internal/domain/models"
)

// IndicatorStore is the persisted record of raw inputs and computed outputs
// per instrument. Price and statement series come back in ascending order.
type IndicatorStore interface {
	GetPriceSeries(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
	PutPriceBars(ctx context.Context, bars []models.PriceBar) error
	GetStatements(ctx context.Context, symbol string, limit int) ([]models.FinancialStatement, error)
	PutStatements(ctx context.Context, stmts []models.FinancialStatement) error

	PutIndicatorSet(ctx context.Context, symbol string, set models.IndicatorSet) error
	GetIndicatorSet(ctx context.Context, symbol string) (models.IndicatorSet, error)
	PutPrediction(ctx context.Context, p models.Prediction) error
	GetPrediction(ctx context.Context, symbol string) (models.Prediction, error)

	GetSyncRecord(ctx context.Context, symbol string) (models.SyncRecord, error)
	PutSyncRecord(ctx context.Context, rec models.SyncRecord) error
	ListSyncRecords(ctx context.Context) ([]models.SyncRecord, error)

	AppendConflict(ctx context.Context, e models.ConflictEntry) error
	ListConflicts(ctx context.Context, since time.Time) ([]models.ConflictEntry, error)

	Health(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get* methods when no row exists for the symbol.
var ErrNotFound = NotFoundError{}

// NotFoundError distinguishes "no such record" from transport failures.
type NotFoundError struct{ Entity, Symbol string }

func (e NotFoundError) Error() string {
	if e.Entity == "" {
		return "not found"
	}
	return e.Entity + " not found: " + e.Symbol
}

// Is lets errors.Is match any NotFoundError against ErrNotFound.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	return ok
}

// SheetClient talks to the remote spreadsheet-of-record. FetchRows reads the
// whole sheet; UpsertRow writes one row matched by instrument key.
type SheetClient interface {
	FetchRows(ctx context.Context) ([]models.SheetRow, error)
	UpsertRow(ctx context.Context, row models.SheetRow) (rowID string, err error)
}

// Publisher feeds stored predictions to the downstream report generator.
type Publisher interface {
	PublishPrediction(ctx context.Context, p models.Prediction, set models.IndicatorSet) error
	Close() error
}

// Metrics records operational counters for the pipeline.
type Metrics interface {
	RecordPrediction(symbol, signal string)
	RecordSyncTransition(state string)
	RecordConflict(symbol string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
