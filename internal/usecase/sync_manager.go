package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinSheet/internal/domain/models"
	domrepo "FinSheet/internal/domain/repository"
	"FinSheet/internal/service/ratelimit"
	"FinSheet/internal/service/sheets"
	applogger "FinSheet/pkg/logger"
)

// Conflict resolution policies.
const (
	PolicyManual       = "manual"
	PolicyPreferLocal  = "prefer-local"
	PolicyPreferRemote = "prefer-remote"
)

// SyncConfig tunes the sync manager.
type SyncConfig struct {
	Policy  string
	Columns []string
	Retry   ratelimit.RetryConfig
}

// SyncManager reconciles the locally computed record set against the remote
// spreadsheet-of-record. It owns every SyncRecord state transition: callers
// never set sync_state directly.
type SyncManager struct {
	store   domrepo.IndicatorStore
	sheet   domrepo.SheetClient
	metrics domrepo.Metrics
	cfg     SyncConfig
	known   map[string]bool
	l       *applogger.Logger
}

func NewSyncManager(
	store domrepo.IndicatorStore,
	sheet domrepo.SheetClient,
	metrics domrepo.Metrics,
	symbols []string,
	cfg SyncConfig,
) *SyncManager {
	known := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		known[s] = true
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyManual
	}
	return &SyncManager{
		store:   store,
		sheet:   sheet,
		metrics: metrics,
		cfg:     cfg,
		known:   known,
	}
}

// SetLogger injects a structured logger.
func (m *SyncManager) SetLogger(l *applogger.Logger) { m.l = l }

// Import reads the whole remote sheet and advances sync records against it.
// A failed read aborts the cycle with nothing committed; per-row processing
// after a successful read is isolated per instrument.
func (m *SyncManager) Import(ctx context.Context) error {
	start := time.Now()
	rows, err := m.sheet.FetchRows(ctx)
	if err != nil {
		m.metrics.RecordError("remote_read")
		return fmt.Errorf("%w: %v", ErrRemoteRead, err)
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.importRow(ctx, row); err != nil {
			m.metrics.RecordError("import_row")
			if m.l != nil {
				m.l.Error("import row failed",
					applogger.String("symbol", row.Symbol), applogger.Error(err))
			}
		}
	}
	m.metrics.RecordLatency("import", time.Since(start).Seconds())
	return nil
}

func (m *SyncManager) importRow(ctx context.Context, row models.SheetRow) error {
	remoteHash := row.ContentHash()

	rec, err := m.store.GetSyncRecord(ctx, row.Symbol)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return fmt.Errorf("sync record: %w", err)
		}
		return m.seedFromRemote(ctx, row)
	}

	remoteChanged := remoteHash != rec.RemoteHash
	now := time.Now().UTC()

	switch rec.State {
	case models.SyncSynced:
		if !remoteChanged {
			return nil
		}
		// First observation only flags the edit; the next import adopts it.
		rec.State = models.SyncRemoteDirty
		rec.RemoteRowID = row.RowID
		rec.UpdatedAt = now
		return m.putRecord(ctx, rec)

	case models.SyncRemoteDirty:
		if !remoteChanged {
			// remote reverted to the last-synced content
			rec.State = models.SyncSynced
			rec.UpdatedAt = now
			return m.putRecord(ctx, rec)
		}
		return m.adoptRemote(ctx, rec, row, remoteHash)

	case models.SyncLocalDirty:
		if !remoteChanged {
			return nil // export will settle this one
		}
		return m.conflict(ctx, rec, row, remoteHash)

	case models.SyncLocalOnly:
		// A never-exported record already has a remote row: either both
		// sides agree on content, or someone raced us on the sheet.
		if remoteHash == rec.LocalHash {
			rec.State = models.SyncSynced
			rec.RemoteHash = remoteHash
			rec.RemoteRowID = row.RowID
			rec.UpdatedAt = now
			return m.putRecord(ctx, rec)
		}
		return m.conflict(ctx, rec, row, remoteHash)

	case models.SyncConflicted:
		return nil // terminal until resolved
	}
	return fmt.Errorf("unknown sync state %q", rec.State)
}

// seedFromRemote handles rows with no SyncRecord: known instruments from a
// prior export format get a RemoteDirty record so the standard path
// reconciles them next cycle; unknown symbols are surfaced, never dropped or
// auto-created.
func (m *SyncManager) seedFromRemote(ctx context.Context, row models.SheetRow) error {
	if !m.known[row.Symbol] {
		m.metrics.RecordError("unrecognized_row")
		if m.l != nil {
			m.l.Warn("unrecognized remote row", applogger.String("symbol", row.Symbol))
		}
		return nil
	}
	rec := models.SyncRecord{
		Symbol:      row.Symbol,
		RemoteRowID: row.RowID,
		State:       models.SyncRemoteDirty,
		UpdatedAt:   time.Now().UTC(),
	}
	if m.l != nil {
		m.l.Info("seeded sync record from remote row", applogger.String("symbol", row.Symbol))
	}
	return m.putRecord(ctx, rec)
}

// adoptRemote pulls the remote row's values into the local store and marks
// the record synced. Only a fully completed adoption advances state.
func (m *SyncManager) adoptRemote(ctx context.Context, rec models.SyncRecord, row models.SheetRow, remoteHash string) error {
	pred := models.Prediction{
		Symbol:      row.Symbol,
		Signal:      row.Signal,
		Score:       row.Score,
		Confidence:  row.Confidence,
		GeneratedAt: row.UpdatedAt,
	}
	if err := m.store.PutPrediction(ctx, pred); err != nil {
		return fmt.Errorf("adopt remote prediction: %w", err)
	}
	rec.LocalHash = remoteHash
	rec.RemoteHash = remoteHash
	rec.RemoteRowID = row.RowID
	rec.State = models.SyncSynced
	rec.UpdatedAt = time.Now().UTC()
	if m.l != nil {
		m.l.Info("adopted remote values", applogger.String("symbol", row.Symbol))
	}
	return m.putRecord(ctx, rec)
}

// conflict records a both-sides-changed divergence and applies the configured
// auto-resolution policy, if any.
func (m *SyncManager) conflict(ctx context.Context, rec models.SyncRecord, row models.SheetRow, remoteHash string) error {
	now := time.Now().UTC()
	m.metrics.RecordConflict(rec.Symbol)

	local, lerr := m.buildLocalRow(ctx, rec.Symbol)
	localSnap := []byte(`{}`)
	if lerr == nil {
		localSnap, _ = json.Marshal(local)
	}
	remoteSnap, _ := json.Marshal(row)

	entry := models.ConflictEntry{
		Symbol:         rec.Symbol,
		DetectedAt:     now,
		LocalSnapshot:  string(localSnap),
		RemoteSnapshot: string(remoteSnap),
		Resolution:     models.ResolutionPending,
	}

	switch m.cfg.Policy {
	case PolicyPreferLocal:
		entry.Resolution = models.ResolutionKeptLocal
		if err := m.store.AppendConflict(ctx, entry); err != nil {
			return fmt.Errorf("append conflict: %w", err)
		}
		// keep local content pending export over the remote edit
		rec.State = models.SyncLocalDirty
		rec.RemoteRowID = row.RowID
		rec.UpdatedAt = now
		return m.putRecord(ctx, rec)

	case PolicyPreferRemote:
		entry.Resolution = models.ResolutionKeptRemote
		if err := m.store.AppendConflict(ctx, entry); err != nil {
			return fmt.Errorf("append conflict: %w", err)
		}
		return m.adoptRemote(ctx, rec, row, remoteHash)

	default: // manual
		if err := m.store.AppendConflict(ctx, entry); err != nil {
			return fmt.Errorf("append conflict: %w", err)
		}
		rec.State = models.SyncConflicted
		rec.RemoteRowID = row.RowID
		rec.UpdatedAt = now
		return m.putRecord(ctx, rec)
	}
}

// Export writes a row for every instrument whose content is pending
// (LocalOnly or LocalDirty). Rows are matched by instrument key, so sheet
// reordering never duplicates or misplaces them. A transient per-row failure
// leaves that instrument's state unchanged for the next run; the batch
// continues.
func (m *SyncManager) Export(ctx context.Context) error {
	start := time.Now()
	recs, err := m.store.ListSyncRecords(ctx)
	if err != nil {
		return fmt.Errorf("list sync records: %w", err)
	}

	exported := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.State != models.SyncLocalOnly && rec.State != models.SyncLocalDirty {
			continue // re-exporting synced content is a no-op by construction
		}
		if err := m.exportOne(ctx, rec); err != nil {
			m.metrics.RecordError("export_row")
			if m.l != nil {
				m.l.Warn("row export failed, will retry next cycle",
					applogger.String("symbol", rec.Symbol), applogger.Error(err))
			}
			continue
		}
		exported++
	}

	m.metrics.RecordLatency("export", time.Since(start).Seconds())
	if m.l != nil {
		m.l.Info("export done", applogger.Int("rows", exported))
	}
	return nil
}

func (m *SyncManager) exportOne(ctx context.Context, rec models.SyncRecord) error {
	row, err := m.buildLocalRow(ctx, rec.Symbol)
	if err != nil {
		return fmt.Errorf("build row: %w", err)
	}
	row.RowID = rec.RemoteRowID
	hash := row.ContentHash()

	var rowID string
	err = ratelimit.Do(ctx, m.cfg.Retry, sheets.IsTransient, func(ctx context.Context) error {
		id, uerr := m.sheet.UpsertRow(ctx, row)
		if uerr == nil {
			rowID = id
		}
		return uerr
	})
	if err != nil {
		return err
	}

	// Only a fully completed write advances state.
	if rowID != "" {
		rec.RemoteRowID = rowID
	}
	rec.LocalHash = hash
	rec.RemoteHash = hash
	rec.State = models.SyncSynced
	rec.UpdatedAt = time.Now().UTC()
	return m.putRecord(ctx, rec)
}

// Resolve settles a conflicted instrument by picking a side. The record then
// converges through the standard export (kept-local) or import (kept-remote)
// path rather than a special-cased write.
func (m *SyncManager) Resolve(ctx context.Context, symbol, resolution string) error {
	rec, err := m.store.GetSyncRecord(ctx, symbol)
	if err != nil {
		return fmt.Errorf("sync record: %w", err)
	}
	if rec.State != models.SyncConflicted {
		return fmt.Errorf("%w: %s is %s", ErrNotConflicted, symbol, rec.State)
	}

	now := time.Now().UTC()
	local, lerr := m.buildLocalRow(ctx, symbol)
	localSnap := []byte(`{}`)
	if lerr == nil {
		localSnap, _ = json.Marshal(local)
	}
	if err := m.store.AppendConflict(ctx, models.ConflictEntry{
		Symbol:        symbol,
		DetectedAt:    now,
		LocalSnapshot: string(localSnap),
		Resolution:    resolution,
	}); err != nil {
		return fmt.Errorf("append conflict: %w", err)
	}

	switch resolution {
	case models.ResolutionKeptLocal:
		rec.State = models.SyncLocalDirty
	case models.ResolutionKeptRemote:
		rec.State = models.SyncRemoteDirty
	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}
	rec.UpdatedAt = now
	return m.putRecord(ctx, rec)
}

// buildLocalRow projects the current local prediction and indicator set onto
// the sheet schema.
func (m *SyncManager) buildLocalRow(ctx context.Context, symbol string) (models.SheetRow, error) {
	pred, err := m.store.GetPrediction(ctx, symbol)
	if err != nil {
		return models.SheetRow{}, err
	}
	set, err := m.store.GetIndicatorSet(ctx, symbol)
	if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
		return models.SheetRow{}, err
	}
	return models.RowFromPrediction(pred, set, m.cfg.Columns), nil
}

func (m *SyncManager) putRecord(ctx context.Context, rec models.SyncRecord) error {
	m.metrics.RecordSyncTransition(string(rec.State))
	return m.store.PutSyncRecord(ctx, rec)
}
