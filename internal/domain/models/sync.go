package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SyncState tracks where an instrument sits between the local store and the
// remote sheet. Transitions happen only inside the sync manager.
type SyncState string

const (
	// SyncLocalOnly means the record was computed locally and never exported.
	SyncLocalOnly SyncState = "local_only"
	// SyncSynced means local content matches what was last exported and no
	// remote edit has been observed.
	SyncSynced SyncState = "synced"
	// SyncLocalDirty means local recomputation changed the content hash since
	// the last sync while the remote row is unchanged.
	SyncLocalDirty SyncState = "local_dirty"
	// SyncRemoteDirty means the remote row changed since the last sync while
	// local content is unchanged.
	SyncRemoteDirty SyncState = "remote_dirty"
	// SyncConflicted means both sides changed since the last sync. Terminal
	// until an explicit resolution picks a side.
	SyncConflicted SyncState = "conflicted"
)

// IsValidSyncState reports whether s is a known state.
func IsValidSyncState(s SyncState) bool {
	switch s {
	case SyncLocalOnly, SyncSynced, SyncLocalDirty, SyncRemoteDirty, SyncConflicted:
		return true
	default:
		return false
	}
}

// SyncRecord tracks divergence between local content and the remote row for
// one instrument. At most one record per symbol.
type SyncRecord struct {
	Symbol      string    `json:"symbol"`
	RemoteRowID string    `json:"remote_row_id,omitempty"`
	LocalHash   string    `json:"local_hash"`
	RemoteHash  string    `json:"remote_hash"` // remote content hash at last sync
	State       SyncState `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Resolution values for a conflict entry.
const (
	ResolutionPending    = "pending"
	ResolutionKeptLocal  = "kept-local"
	ResolutionKeptRemote = "kept-remote"
)

// ConflictEntry records one detected local/remote divergence and how it was
// settled.
type ConflictEntry struct {
	Symbol         string    `json:"symbol"`
	DetectedAt     time.Time `json:"detected_at"`
	LocalSnapshot  string    `json:"local_snapshot"`
	RemoteSnapshot string    `json:"remote_snapshot"`
	Resolution     string    `json:"resolution"`
}

// SheetRow is the projection of one instrument onto the remote sheet schema:
// instrument key, signal, score, confidence, the declared indicator columns,
// and a last-updated timestamp. Row identity is the Symbol, never position.
type SheetRow struct {
	Symbol     string             `json:"symbol"`
	Signal     Signal             `json:"signal"`
	Score      float64            `json:"score"`
	Confidence float64            `json:"confidence"`
	Indicators map[string]float64 `json:"indicators"`
	UpdatedAt  time.Time          `json:"updated_at"`
	RowID      string             `json:"row_id,omitempty"`
}

// ContentHash returns a deterministic hash of the row's content columns.
// The timestamp and row id are identity/bookkeeping, not content, so they do
// not participate: re-exporting identical values must reproduce the hash.
func (r SheetRow) ContentHash() string {
	names := make([]string, 0, len(r.Indicators))
	for k := range r.Indicators {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.Symbol)
	b.WriteByte('|')
	b.WriteString(string(r.Signal))
	b.WriteByte('|')
	b.WriteString(formatCell(r.Score))
	b.WriteByte('|')
	b.WriteString(formatCell(r.Confidence))
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatCell(r.Indicators[k]))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// formatCell renders a numeric cell the same way it is written to the sheet,
// so a hash of local content is comparable with a hash of the row read back.
func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// RowFromPrediction projects a prediction plus its indicator set onto the
// declared sheet columns. Columns with no computed value are left out of the
// row; the column set itself is configuration.
func RowFromPrediction(p Prediction, set IndicatorSet, columns []string) SheetRow {
	ind := make(map[string]float64, len(columns))
	for _, col := range columns {
		if v, ok := set.Values[col]; ok {
			ind[col] = v
		}
	}
	return SheetRow{
		Symbol:     p.Symbol,
		Signal:     p.Signal,
		Score:      p.Score,
		Confidence: p.Confidence,
		Indicators: ind,
		UpdatedAt:  p.GeneratedAt,
	}
}
