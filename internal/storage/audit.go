package storage

import (
	"context"
	"database/sql"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

// InsertAuditTx appends one audit entry within an existing transaction.
// The audit log is append-only: there is no update or delete path.
func InsertAuditTx(ctx context.Context, tx *sql.Tx, e model.AuditEntry) error {
	if e.ID == "" {
		e.ID = newRecordID("audit", e.CreatedAt)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, actor, from_id, to_id, relationship, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Action), string(e.Actor), e.FromID, e.ToID, e.Relationship,
		nullableString(e.Reason), e.CreatedAt)
	if err != nil {
		return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return nil
}

// CountAuditByAction returns the number of audit_log rows recording the
// given action, used by validate_cleanup to confirm deprecated-entry counts
// match deleted-link counts (spec §4.7 invariant).
func (db *DB) CountAuditByAction(ctx context.Context, action model.AuditAction) (int, error) {
	var n int
	err := db.Reader().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_log WHERE action = ?", string(action)).Scan(&n)
	if err != nil {
		return 0, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return n, nil
}

// ListAuditSince returns audit entries created at or after since (ms
// epoch), ordered oldest first.
func (db *DB) ListAuditSince(ctx context.Context, since int64) ([]model.AuditEntry, error) {
	rows, err := db.Reader().QueryContext(ctx, `
		SELECT id, action, actor, from_id, to_id, relationship, reason, created_at
		FROM audit_log WHERE created_at >= ? ORDER BY created_at ASC
	`, since)
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var action, actor string
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &action, &actor, &e.FromID, &e.ToID, &e.Relationship, &reason, &e.CreatedAt); err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		e.Action = model.AuditAction(action)
		e.Actor = model.AuditActor(actor)
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}
