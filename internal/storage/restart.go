package storage

import (
	"context"
	"database/sql"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

// InsertRestartMetric appends one checkpoint-resume attempt record (C8).
func (db *DB) InsertRestartMetric(ctx context.Context, m model.RestartMetric) error {
	if m.ID == "" {
		m.ID = newRecordID("restart", m.Timestamp)
	}
	var failureReason any
	if m.FailureReason != nil {
		failureReason = string(*m.FailureReason)
	}
	return db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO restart_metrics (
				id, timestamp, session_id, status, failure_reason, latency_ms,
				mode, narrative_count, link_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, m.Timestamp, m.SessionID, string(m.Status), failureReason, m.LatencyMs,
			string(m.Mode), m.NarrativeCount, m.LinkCount)
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		return nil
	})
}

// ListRestartMetricsSince returns restart metrics recorded at or after
// since (ms epoch), oldest first, for the success-rate and latency
// percentile computations in C9.
func (db *DB) ListRestartMetricsSince(ctx context.Context, since int64) ([]model.RestartMetric, error) {
	rows, err := db.Reader().QueryContext(ctx, `
		SELECT id, timestamp, session_id, status, failure_reason, latency_ms,
			mode, narrative_count, link_count
		FROM restart_metrics WHERE timestamp >= ? ORDER BY timestamp ASC
	`, since)
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.RestartMetric
	for rows.Next() {
		var m model.RestartMetric
		var status, mode string
		var failureReason sql.NullString
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.SessionID, &status, &failureReason,
			&m.LatencyMs, &mode, &m.NarrativeCount, &m.LinkCount); err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		m.Status = model.RestartStatus(status)
		m.Mode = model.RestartMode(mode)
		if failureReason.Valid {
			r := model.RestartFailureReason(failureReason.String)
			m.FailureReason = &r
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
