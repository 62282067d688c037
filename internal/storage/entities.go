package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

// InsertEntity validates e, assigns it an id and timestamps, and persists
// it. The caller is expected to have already computed e.Embedding (C2 asks
// C1 for it before calling); InsertEntity only serializes and stores it.
func (db *DB) InsertEntity(ctx context.Context, e model.Entity) (model.Entity, error) {
	if err := e.Validate(); err != nil {
		return model.Entity{}, err
	}

	now := time.Now().UnixMilli()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.ID == "" {
		e.ID = newEntityID(e.Type, e.Topic, now)
	}
	if e.Type == model.EntityTypeDecision && e.Confidence == nil {
		c := model.DefaultDecisionConfidence
		e.Confidence = &c
	}

	embeddingText, err := encodeEmbedding(e.Embedding)
	if err != nil {
		return model.Entity{}, err
	}
	evidence, err := marshalStrings(e.Evidence)
	if err != nil {
		return model.Entity{}, err
	}
	alternatives, err := marshalStrings(e.Alternatives)
	if err != nil {
		return model.Entity{}, err
	}
	openFiles, err := marshalStrings(e.OpenFiles)
	if err != nil {
		return model.Entity{}, err
	}

	var outcome *string
	if e.Outcome != nil {
		s := string(*e.Outcome)
		outcome = &s
	}

	err = db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (
				id, type, topic, content, reasoning, evidence, alternatives,
				risks, next_steps, open_files, confidence, outcome,
				failure_reason, limitation, embedding, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, string(e.Type), nullableString(e.Topic), e.Content, nullableString(e.Reasoning),
			evidence, alternatives, nullableString(e.Risks), nullableString(e.NextSteps), openFiles,
			e.Confidence, outcome, nullableString(e.FailureReason), nullableString(e.Limitation),
			nullableString(embeddingText), e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		return nil
	})
	if err != nil {
		return model.Entity{}, err
	}
	return e, nil
}

// GetEntity retrieves a single entity by id.
func (db *DB) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	row := db.Reader().QueryRowContext(ctx, entitySelectColumns+" FROM entities WHERE id = ?", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("%w: entity %q", mamaerr.ErrNotFound, id)
	}
	if err != nil {
		return model.Entity{}, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	return e, nil
}

// UpdateOutcome enforces the outcome-specific field requirements, writes
// updated_at, and never touches the embedding (spec §4.2).
func (db *DB) UpdateOutcome(ctx context.Context, id string, outcome model.Outcome, failureReason, limitation string) (model.Entity, error) {
	probe := model.Entity{Outcome: &outcome, FailureReason: failureReason, Limitation: limitation}
	if err := probe.Validate(); err != nil {
		return model.Entity{}, err
	}

	now := time.Now().UnixMilli()
	err := db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entities SET outcome = ?, failure_reason = ?, limitation = ?, updated_at = ?
			WHERE id = ?
		`, string(outcome), nullableString(failureReason), nullableString(limitation), now, id)
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		if n == 0 {
			return fmt.Errorf("%w: entity %q", mamaerr.ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return model.Entity{}, err
	}
	return db.GetEntity(ctx, id)
}

// ListRecent returns entities in descending created_at order, optionally
// filtered by type.
func (db *DB) ListRecent(ctx context.Context, entityType *model.EntityType, limit int) ([]model.Entity, error) {
	var rows *sql.Rows
	var err error
	if entityType != nil {
		rows, err = db.Reader().QueryContext(ctx,
			entitySelectColumns+" FROM entities WHERE type = ? ORDER BY created_at DESC LIMIT ?",
			string(*entityType), limit)
	} else {
		rows, err = db.Reader().QueryContext(ctx,
			entitySelectColumns+" FROM entities ORDER BY created_at DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByType returns every entity of the given type, oldest first, with
// no limit — used by the coverage/quality aggregates in C9, which need
// the full population rather than a recency-bounded page.
func (db *DB) ListByType(ctx context.Context, entityType model.EntityType) ([]model.Entity, error) {
	rows, err := db.Reader().QueryContext(ctx,
		entitySelectColumns+" FROM entities WHERE type = ? ORDER BY created_at ASC",
		string(entityType))
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByTypeInWindow returns entities of entityType created in
// [since, until], ordered oldest first — the checkpoint narrative window
// query (C8, spec §4.8's "prior 1 hour" selection).
func (db *DB) ListByTypeInWindow(ctx context.Context, entityType model.EntityType, since, until int64) ([]model.Entity, error) {
	rows, err := db.Reader().QueryContext(ctx,
		entitySelectColumns+" FROM entities WHERE type = ? AND created_at >= ? AND created_at <= ? ORDER BY created_at ASC",
		string(entityType), since, until)
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByTopic returns all entities with an exact (case-sensitive) topic
// match, ordered by created_at DESC, stable on insertion order (spec §4.5).
func (db *DB) ListByTopic(ctx context.Context, topic string) ([]model.Entity, error) {
	rows, err := db.Reader().QueryContext(ctx,
		entitySelectColumns+" FROM entities WHERE topic = ? ORDER BY created_at DESC, rowid ASC", topic)
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAll returns every entity; used to rebuild the in-memory vector index
// on Engine open (C4).
func (db *DB) ListAll(ctx context.Context) ([]model.Entity, error) {
	rows, err := db.Reader().QueryContext(ctx, entitySelectColumns+" FROM entities ORDER BY created_at ASC")
	if err != nil {
		return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntity removes an entity and cascades to its links (foreign keys
// with ON DELETE CASCADE) and, by the caller's contract, the vector index.
func (db *DB) DeleteEntity(ctx context.Context, id string) error {
	return db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mamaerr.Wrap(mamaerr.KindStorageError, err, "")
		}
		if n == 0 {
			return fmt.Errorf("%w: entity %q", mamaerr.ErrNotFound, id)
		}
		return nil
	})
}

const entitySelectColumns = `SELECT
	id, type, topic, content, reasoning, evidence, alternatives, risks,
	next_steps, open_files, confidence, outcome, failure_reason, limitation,
	embedding, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (model.Entity, error) {
	var e model.Entity
	var typeStr string
	var topic, content, reasoning, risks, nextSteps, failureReason, limitation, embeddingText sql.NullString
	var evidenceJSON, alternativesJSON, openFilesJSON sql.NullString
	var confidence sql.NullFloat64
	var outcome sql.NullString

	if err := row.Scan(
		&e.ID, &typeStr, &topic, &content, &reasoning, &evidenceJSON, &alternativesJSON,
		&risks, &nextSteps, &openFilesJSON, &confidence, &outcome, &failureReason, &limitation,
		&embeddingText, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return model.Entity{}, err
	}

	e.Type = model.EntityType(typeStr)
	e.Topic = topic.String
	e.Content = content.String
	e.Reasoning = reasoning.String
	e.Risks = risks.String
	e.NextSteps = nextSteps.String
	e.FailureReason = failureReason.String
	e.Limitation = limitation.String

	if confidence.Valid {
		e.Confidence = &confidence.Float64
	}
	if outcome.Valid {
		o := model.Outcome(outcome.String)
		e.Outcome = &o
	}

	var err error
	if e.Evidence, err = unmarshalStrings(evidenceJSON.String); err != nil {
		return model.Entity{}, err
	}
	if e.Alternatives, err = unmarshalStrings(alternativesJSON.String); err != nil {
		return model.Entity{}, err
	}
	if e.OpenFiles, err = unmarshalStrings(openFilesJSON.String); err != nil {
		return model.Entity{}, err
	}
	if e.Embedding, err = decodeEmbedding(embeddingText.String); err != nil {
		return model.Entity{}, err
	}

	return e, nil
}

func marshalStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "", nil
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", fmt.Errorf("storage: marshal string slice: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("storage: unmarshal string slice: %w", err)
	}
	return out, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
