package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinSheet/internal/domain/models"
	"FinSheet/internal/service/ratelimit"
)

var testColumns = []string{"rsi_14", "momentum_10"}

func newTestSyncManager(store *fakeStore, sheet *fakeSheet, policy string) (*SyncManager, *fakeMetrics) {
	m := newFakeMetrics()
	sm := NewSyncManager(store, sheet, m, []string{"AAPL", "MSFT"}, SyncConfig{
		Policy:  policy,
		Columns: testColumns,
		Retry:   ratelimit.RetryConfig{MaxAttempts: 1, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
	})
	return sm, m
}

func seedLocal(store *fakeStore, symbol string, score float64) models.SheetRow {
	at := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	pred := models.Prediction{
		Symbol: symbol, Signal: models.SignalBullish,
		Score: score, Confidence: 0.8, GeneratedAt: at,
	}
	set := models.IndicatorSet{
		Values:     map[string]float64{"rsi_14": 61.5, "momentum_10": 0.03},
		ComputedAt: at,
	}
	store.preds[symbol] = pred
	store.sets[symbol] = set
	return models.RowFromPrediction(pred, set, testColumns)
}

func TestExportLocalOnlyThenIdempotent(t *testing.T) {
	store := newFakeStore()
	sheet := &fakeSheet{}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	row := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalOnly, LocalHash: row.ContentHash(),
	}

	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("export: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncSynced {
		t.Fatalf("state = %s, want synced", rec.State)
	}
	if rec.LocalHash != rec.RemoteHash || rec.LocalHash == "" {
		t.Fatalf("hashes should match after export")
	}
	if rec.RemoteRowID == "" {
		t.Fatalf("remote row id should be recorded")
	}
	if sheet.upsertCount() != 1 {
		t.Fatalf("expected 1 upsert, got %d", sheet.upsertCount())
	}

	// unchanged content: the second export writes nothing
	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("second export: %v", err)
	}
	if sheet.upsertCount() != 1 {
		t.Fatalf("synced rows must not be re-exported, got %d upserts", sheet.upsertCount())
	}
}

func TestExportFailureLeavesStateUnchanged(t *testing.T) {
	store := newFakeStore()
	sheet := &fakeSheet{upsertErr: errors.New("boom")}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	row := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalDirty, LocalHash: row.ContentHash(),
	}

	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("batch export should not fail on a row error: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncLocalDirty {
		t.Fatalf("state = %s, want local_dirty retained for retry", got)
	}

	// provider recovers, the next cycle converges
	sheet.upsertErr = nil
	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("export after recovery: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncSynced {
		t.Fatalf("state = %s, want synced after recovery", got)
	}
}

func TestImportRemoteReadFailureAborts(t *testing.T) {
	store := newFakeStore()
	sheet := &fakeSheet{fetchErr: errors.New("503")}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	err := sm.Import(context.Background())
	if !errors.Is(err, ErrRemoteRead) {
		t.Fatalf("expected ErrRemoteRead, got %v", err)
	}
}

func TestImportSeedsKnownSymbolSkipsUnknown(t *testing.T) {
	store := newFakeStore()
	sheet := &fakeSheet{rows: []models.SheetRow{
		{Symbol: "AAPL", Signal: models.SignalNeutral, RowID: "r1"},
		{Symbol: "WHOAMI", Signal: models.SignalNeutral, RowID: "r2"},
	}}
	sm, m := newTestSyncManager(store, sheet, PolicyManual)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncRemoteDirty {
		t.Fatalf("seeded state = %s, want remote_dirty", rec.State)
	}
	if rec.RemoteRowID != "r1" {
		t.Fatalf("row id not captured")
	}
	if _, ok := store.recs["WHOAMI"]; ok {
		t.Fatalf("unknown symbols must not get sync records")
	}
	if m.count("error:unrecognized_row") != 1 {
		t.Fatalf("unrecognized row should be counted")
	}
}

func TestImportTwoPhaseRemoteAdoption(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	h0 := localRow.ContentHash()
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncSynced,
		LocalHash: h0, RemoteHash: h0, RemoteRowID: "r1",
	}

	edited := localRow
	edited.Score = 0.9 // remote operator override
	edited.RowID = "r1"
	sheet := &fakeSheet{rows: []models.SheetRow{edited}}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	// first sighting only flags the edit
	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncRemoteDirty {
		t.Fatalf("state = %s, want remote_dirty after first sighting", got)
	}
	if store.preds["AAPL"].Score != 0.4 {
		t.Fatalf("local values must not change on the flagging pass")
	}

	// second import adopts the remote values
	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("second import: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncSynced {
		t.Fatalf("state = %s, want synced after adoption", rec.State)
	}
	if rec.LocalHash != edited.ContentHash() || rec.RemoteHash != edited.ContentHash() {
		t.Fatalf("hashes should converge on the remote content")
	}
	if store.preds["AAPL"].Score != 0.9 {
		t.Fatalf("adopted prediction score = %v, want 0.9", store.preds["AAPL"].Score)
	}
}

func TestImportRemoteRevertReturnsToSynced(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	h0 := localRow.ContentHash()
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncRemoteDirty,
		LocalHash: h0, RemoteHash: h0, RemoteRowID: "r1",
	}

	reverted := localRow
	reverted.RowID = "r1"
	sheet := &fakeSheet{rows: []models.SheetRow{reverted}}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncSynced {
		t.Fatalf("state = %s, want synced when remote content matches the last sync", got)
	}
}

func TestImportBothSidesChangedManualPolicy(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalDirty,
		LocalHash: localRow.ContentHash(), RemoteHash: "old-remote", RemoteRowID: "r1",
	}

	edited := localRow
	edited.Score = 0.9
	edited.RowID = "r1"
	sheet := &fakeSheet{rows: []models.SheetRow{edited}}
	sm, m := newTestSyncManager(store, sheet, PolicyManual)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncConflicted {
		t.Fatalf("state = %s, want conflicted", rec.State)
	}
	if len(store.conflicts) != 1 {
		t.Fatalf("expected 1 conflict entry, got %d", len(store.conflicts))
	}
	e := store.conflicts[0]
	if e.Resolution != models.ResolutionPending {
		t.Fatalf("manual policy leaves resolution pending, got %s", e.Resolution)
	}
	if e.LocalSnapshot == "" || e.RemoteSnapshot == "" {
		t.Fatalf("conflict entry must carry both snapshots")
	}
	if m.count("conflict") != 1 {
		t.Fatalf("conflict should be counted")
	}

	// conflicted rows are excluded from export until resolved
	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if sheet.upsertCount() != 0 {
		t.Fatalf("conflicted rows must not be exported")
	}
}

func TestImportPreferRemotePolicy(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalDirty,
		LocalHash: localRow.ContentHash(), RemoteHash: "old-remote", RemoteRowID: "r1",
	}
	edited := localRow
	edited.Score = 0.9
	edited.RowID = "r1"
	sheet := &fakeSheet{rows: []models.SheetRow{edited}}
	sm, _ := newTestSyncManager(store, sheet, PolicyPreferRemote)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncSynced {
		t.Fatalf("state = %s, want synced (remote side adopted)", rec.State)
	}
	if store.preds["AAPL"].Score != 0.9 {
		t.Fatalf("remote values should win under prefer-remote")
	}
	if len(store.conflicts) != 1 || store.conflicts[0].Resolution != models.ResolutionKeptRemote {
		t.Fatalf("conflict should be logged as kept-remote")
	}
}

func TestImportPreferLocalPolicy(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalDirty,
		LocalHash: localRow.ContentHash(), RemoteHash: "old-remote", RemoteRowID: "r1",
	}
	edited := localRow
	edited.Score = 0.9
	edited.RowID = "r1"
	sheet := &fakeSheet{rows: []models.SheetRow{edited}}
	sm, _ := newTestSyncManager(store, sheet, PolicyPreferLocal)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncLocalDirty {
		t.Fatalf("state = %s, want local_dirty (local side kept, pending export)", got)
	}
	if store.preds["AAPL"].Score != 0.4 {
		t.Fatalf("local values should win under prefer-local")
	}

	// the kept side overwrites the remote edit on export
	if err := sm.Export(context.Background()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncSynced {
		t.Fatalf("state = %s, want synced after export", got)
	}
}

func TestResolveTransitions(t *testing.T) {
	store := newFakeStore()
	seedLocal(store, "AAPL", 0.4)
	sheet := &fakeSheet{}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	store.recs["AAPL"] = models.SyncRecord{Symbol: "AAPL", State: models.SyncConflicted}
	if err := sm.Resolve(context.Background(), "AAPL", models.ResolutionKeptLocal); err != nil {
		t.Fatalf("resolve kept-local: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncLocalDirty {
		t.Fatalf("kept-local should leave the record pending export, got %s", got)
	}

	store.recs["AAPL"] = models.SyncRecord{Symbol: "AAPL", State: models.SyncConflicted}
	if err := sm.Resolve(context.Background(), "AAPL", models.ResolutionKeptRemote); err != nil {
		t.Fatalf("resolve kept-remote: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncRemoteDirty {
		t.Fatalf("kept-remote should leave the record pending import, got %s", got)
	}
}

func TestResolveRequiresConflictedState(t *testing.T) {
	store := newFakeStore()
	sheet := &fakeSheet{}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	store.recs["AAPL"] = models.SyncRecord{Symbol: "AAPL", State: models.SyncSynced}
	err := sm.Resolve(context.Background(), "AAPL", models.ResolutionKeptLocal)
	if !errors.Is(err, ErrNotConflicted) {
		t.Fatalf("expected ErrNotConflicted, got %v", err)
	}
}

func TestImportLocalOnlyMatchingRemoteRow(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalOnly, LocalHash: localRow.ContentHash(),
	}

	// a remote row with identical content already exists
	remote := localRow
	remote.RowID = "r9"
	sheet := &fakeSheet{rows: []models.SheetRow{remote}}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	rec := store.record("AAPL")
	if rec.State != models.SyncSynced {
		t.Fatalf("state = %s, want synced when content agrees", rec.State)
	}
	if rec.RemoteRowID != "r9" {
		t.Fatalf("existing row id should be adopted")
	}
}

func TestImportLocalOnlyDivergentRemoteRow(t *testing.T) {
	store := newFakeStore()
	localRow := seedLocal(store, "AAPL", 0.4)
	store.recs["AAPL"] = models.SyncRecord{
		Symbol: "AAPL", State: models.SyncLocalOnly, LocalHash: localRow.ContentHash(),
	}

	remote := localRow
	remote.Score = 0.9
	remote.RowID = "r9"
	sheet := &fakeSheet{rows: []models.SheetRow{remote}}
	sm, _ := newTestSyncManager(store, sheet, PolicyManual)

	if err := sm.Import(context.Background()); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got := store.record("AAPL").State; got != models.SyncConflicted {
		t.Fatalf("state = %s, want conflicted when content disagrees", got)
	}
}
