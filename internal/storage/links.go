package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

// InsertLinkTx inserts a link within an existing transaction. Endpoint
// existence is enforced by the foreign keys on links(from_id, to_id); a
// duplicate primary key (from_id, to_id, relationship) surfaces as
// ErrConflict rather than a raw SQLite constraint error. Callers (C7)
// compose this with an InsertAuditTx call inside the same db.Writer so the
// link row and its audit entry commit atomically.
func InsertLinkTx(ctx context.Context, tx *sql.Tx, l model.Link) error {
	if err := l.Validate(); err != nil {
		return err
	}
	var approvedAt any
	if l.ApprovedAt != nil {
		approvedAt = *l.ApprovedAt
	}
	var decisionID any
	if l.DecisionID != nil {
		decisionID = *l.DecisionID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO links (
			from_id, to_id, relationship, reason, evidence, created_by,
			approved_by_user, approved_at, decision_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.FromID, l.ToID, l.Relationship, l.Reason, nullableString(l.Evidence),
		string(l.CreatedBy), boolToInt(l.ApprovedByUser), approvedAt, decisionID, l.CreatedAt)
	if err != nil {
		if isUniqueConstraintViolation(err) {
			return fmt.Errorf("%w: link (%s, %s, %s) already exists", mamaerr.ErrConflict, l.FromID, l.ToID, l.Relationship)
		}
		return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return nil
}

// ApproveLinkTx sets approved_by_user=1 and approved_at=approvedAt on the
// identified link. Returns ErrNotFound if no such link is pending or exists.
func ApproveLinkTx(ctx context.Context, tx *sql.Tx, fromID, toID, relationship string, approvedAt int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE links SET approved_by_user = 1, approved_at = ?
		WHERE from_id = ? AND to_id = ? AND relationship = ?
	`, approvedAt, fromID, toID, relationship)
	if err != nil {
		return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return requireRowsAffected(res, fromID, toID, relationship)
}

// DeleteLinkTx removes a link row (used by reject_link and the cleanup
// executor). The caller writes the corresponding audit entry separately
// within the same transaction.
func DeleteLinkTx(ctx context.Context, tx *sql.Tx, fromID, toID, relationship string) error {
	res, err := tx.ExecContext(ctx,
		"DELETE FROM links WHERE from_id = ? AND to_id = ? AND relationship = ?",
		fromID, toID, relationship)
	if err != nil {
		return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return requireRowsAffected(res, fromID, toID, relationship)
}

func requireRowsAffected(res sql.Result, fromID, toID, relationship string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	if n == 0 {
		return fmt.Errorf("%w: link (%s, %s, %s)", mamaerr.ErrNotFound, fromID, toID, relationship)
	}
	return nil
}

// GetLink retrieves a single link by its composite key.
func (db *DB) GetLink(ctx context.Context, fromID, toID, relationship string) (model.Link, error) {
	row := db.Reader().QueryRowContext(ctx,
		linkSelectColumns+" FROM links WHERE from_id = ? AND to_id = ? AND relationship = ?",
		fromID, toID, relationship)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Link{}, fmt.Errorf("%w: link (%s, %s, %s)", mamaerr.ErrNotFound, fromID, toID, relationship)
	}
	if err != nil {
		return model.Link{}, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return l, nil
}

// ListPending returns every link awaiting user approval (governance path).
func (db *DB) ListPending(ctx context.Context) ([]model.Link, error) {
	return db.queryLinks(ctx, linkSelectColumns+" FROM links WHERE approved_by_user = 0 ORDER BY created_at ASC")
}

// ListApprovedFrom returns approved, outgoing links from fromID — the only
// edges the graph expander (C6) is allowed to traverse.
func (db *DB) ListApprovedFrom(ctx context.Context, fromID string) ([]model.Link, error) {
	return db.queryLinks(ctx,
		linkSelectColumns+" FROM links WHERE from_id = ? AND approved_by_user = 1 ORDER BY created_at ASC",
		fromID)
}

// ListLinksFrom returns every outgoing link from fromID regardless of
// approval status, for graph expansion called with approved_only=false.
func (db *DB) ListLinksFrom(ctx context.Context, fromID string) ([]model.Link, error) {
	return db.queryLinks(ctx,
		linkSelectColumns+" FROM links WHERE from_id = ? ORDER BY created_at ASC",
		fromID)
}

// ListByStatus returns all links matching the given approval status
// (governance admin path; ListPending is the approved=false special case).
func (db *DB) ListByStatus(ctx context.Context, approved bool) ([]model.Link, error) {
	return db.queryLinks(ctx,
		linkSelectColumns+" FROM links WHERE approved_by_user = ? ORDER BY created_at ASC",
		boolToInt(approved))
}

// ListLegacyAuto returns links eligible for auto-link deprecation:
// created_by='user' with no originating decision_id (spec §4.7).
func (db *DB) ListLegacyAuto(ctx context.Context) ([]model.Link, error) {
	return db.queryLinks(ctx,
		linkSelectColumns+" FROM links WHERE created_by = ? AND decision_id IS NULL ORDER BY created_at ASC",
		string(model.CreatedByUser))
}

// ListAllLinks returns every link, used by create_backup and report
// generation to snapshot the full table.
func (db *DB) ListAllLinks(ctx context.Context) ([]model.Link, error) {
	return db.queryLinks(ctx, linkSelectColumns+" FROM links ORDER BY created_at ASC")
}

// CountLinks returns the total number of links.
func (db *DB) CountLinks(ctx context.Context) (int, error) {
	var n int
	if err := db.Reader().QueryRowContext(ctx, "SELECT COUNT(*) FROM links").Scan(&n); err != nil {
		return 0, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return n, nil
}

func (db *DB) queryLinks(ctx context.Context, query string, args ...any) ([]model.Link, error) {
	rows, err := db.Reader().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const linkSelectColumns = `SELECT
	from_id, to_id, relationship, reason, evidence, created_by,
	approved_by_user, approved_at, decision_id, created_at`

func scanLink(row rowScanner) (model.Link, error) {
	var l model.Link
	var createdBy string
	var evidence sql.NullString
	var approvedByUser int
	var approvedAt sql.NullInt64
	var decisionID sql.NullString

	if err := row.Scan(
		&l.FromID, &l.ToID, &l.Relationship, &l.Reason, &evidence, &createdBy,
		&approvedByUser, &approvedAt, &decisionID, &l.CreatedAt,
	); err != nil {
		return model.Link{}, err
	}

	l.Evidence = evidence.String
	l.CreatedBy = model.LinkCreatedBy(createdBy)
	l.ApprovedByUser = approvedByUser != 0
	if approvedAt.Valid {
		l.ApprovedAt = &approvedAt.Int64
	}
	if decisionID.Valid {
		l.DecisionID = &decisionID.String
	}
	return l, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: PRIMARY KEY")
}
