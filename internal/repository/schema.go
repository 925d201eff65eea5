package repository

import "fmt"

// SchemaStatements returns idempotent DDL for the indicator store tables.
// sync_records is a ReplacingMergeTree keyed by symbol: every state change
// inserts a new version and reads resolve the latest one, which keeps the
// store append-only while presenting one record per instrument.
func SchemaStatements(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.price_bars (
			symbol String, ts DateTime, open Float64, high Float64,
			low Float64, close Float64, vol Float64
		) ENGINE=ReplacingMergeTree ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.statements (
			symbol String, period DateTime, field String,
			value Float64, usable UInt8
		) ENGINE=ReplacingMergeTree ORDER BY (symbol, period, field)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.indicator_sets (
			symbol String, computed_at DateTime, payload String
		) ENGINE=MergeTree ORDER BY (symbol, computed_at)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
			symbol String, generated_at DateTime, signal String,
			score Float64, confidence Float64
		) ENGINE=MergeTree ORDER BY (symbol, generated_at)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sync_records (
			symbol String, updated_at DateTime, remote_row_id String,
			local_hash String, remote_hash String, state String
		) ENGINE=ReplacingMergeTree(updated_at) ORDER BY symbol`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.conflict_log (
			symbol String, detected_at DateTime, local_snapshot String,
			remote_snapshot String, resolution String
		) ENGINE=MergeTree ORDER BY (symbol, detected_at)`, db),
	}
}
