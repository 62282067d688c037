// Package governance implements the link lifecycle (propose/approve/reject)
// and the auto-link deprecation workflow (scan, backup, report, execute,
// validate, restore) described as Epic 5 in the memory core's spec.
package governance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
)

// Invalidator is notified when a link touching a node changes, so the
// graph expander's cache (C6) never serves a traversal computed before
// the change.
type Invalidator interface {
	Invalidate(node string)
}

// Service composes the link state machine and the auto-link cleanup
// workflow over a storage.DB, invalidating the graph cache on every
// mutation that affects traversal.
type Service struct {
	db       *storage.DB
	expander Invalidator
	logger   *slog.Logger
}

// New builds a Service. expander may be nil to skip cache invalidation
// (e.g. a process with no live graph.Expander instance).
func New(db *storage.DB, expander Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, expander: expander, logger: logger}
}

func (s *Service) invalidate(ids ...string) {
	if s.expander == nil {
		return
	}
	for _, id := range ids {
		s.expander.Invalidate(id)
	}
}

// ProposeLink validates the endpoints and inserts an unapproved link
// created_by='llm', emitting a 'proposed' audit entry. The link is not
// traversable by C6 until ApproveLink is called.
func (s *Service) ProposeLink(ctx context.Context, fromID, toID, relationship, reason, evidence string) (model.Link, error) {
	if _, err := s.db.GetEntity(ctx, fromID); err != nil {
		return model.Link{}, fmt.Errorf("propose_link: from endpoint: %w", err)
	}
	if _, err := s.db.GetEntity(ctx, toID); err != nil {
		return model.Link{}, fmt.Errorf("propose_link: to endpoint: %w", err)
	}

	now := time.Now().UnixMilli()
	link := model.Link{
		FromID:       fromID,
		ToID:         toID,
		Relationship: relationship,
		Reason:       reason,
		Evidence:     evidence,
		CreatedBy:    model.CreatedByLLM,
		CreatedAt:    now,
	}
	if err := link.Validate(); err != nil {
		return model.Link{}, err
	}

	err := s.db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := storage.InsertLinkTx(ctx, tx, link); err != nil {
			return err
		}
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionProposed, Actor: model.ActorLLM,
			FromID: fromID, ToID: toID, Relationship: relationship,
			Reason: reason, CreatedAt: now,
		})
	})
	if err != nil {
		return model.Link{}, err
	}
	s.invalidate(fromID, toID)
	return link, nil
}

// ApproveLink marks a pending link approved, emits an 'approved' audit
// entry attributed to the user, and invalidates any cached traversal
// touching either endpoint.
func (s *Service) ApproveLink(ctx context.Context, fromID, toID, relationship string) error {
	now := time.Now().UnixMilli()
	err := s.db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := storage.ApproveLinkTx(ctx, tx, fromID, toID, relationship, now); err != nil {
			return err
		}
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionApproved, Actor: model.ActorUser,
			FromID: fromID, ToID: toID, Relationship: relationship,
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(fromID, toID)
	return nil
}

// RejectLink deletes the link and emits a 'rejected' audit entry carrying
// the rejection reason.
func (s *Service) RejectLink(ctx context.Context, fromID, toID, relationship, reason string) error {
	now := time.Now().UnixMilli()
	err := s.db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := storage.DeleteLinkTx(ctx, tx, fromID, toID, relationship); err != nil {
			return err
		}
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionRejected, Actor: model.ActorUser,
			FromID: fromID, ToID: toID, Relationship: relationship,
			Reason: reason, CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(fromID, toID)
	return nil
}

// GetPendingLinks lists every link awaiting user approval.
func (s *Service) GetPendingLinks(ctx context.Context) ([]model.Link, error) {
	return s.db.ListPending(ctx)
}
