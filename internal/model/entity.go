// Package model holds MAMA's data model: entities, links, audit entries,
// and restart metrics, plus the closed-set enums they reference.
package model

import (
	"fmt"
	"math"

	"github.com/mama-core/mama/internal/mamaerr"
)

// MaxReasonLen bounds failure_reason and limitation, per spec.
const MaxReasonLen = 2000

// DefaultDecisionConfidence is applied when a decision entity omits confidence.
const DefaultDecisionConfidence = 0.7

// EmbeddingNormTolerance is the allowed deviation of ‖embedding‖₂ from 1.
const EmbeddingNormTolerance = 1e-5

// Entity is a single typed memory record.
type Entity struct {
	ID   string
	Type EntityType

	Topic   string // required for EntityTypeDecision
	Content string

	Reasoning    string
	Evidence     []string
	Alternatives []string
	Risks        string
	NextSteps    string
	OpenFiles    []string
	Confidence   *float64 // nil means "absent"

	Outcome       *Outcome
	FailureReason string // required iff Outcome == OutcomeFailed
	Limitation    string // required iff Outcome == OutcomePartial

	Embedding []float32 // nil if no searchable text or provider unavailable

	CreatedAt int64 // ms epoch
	UpdatedAt int64 // ms epoch
}

// HasNarrativeText reports whether the entity carries text worth embedding.
func (e Entity) HasNarrativeText() bool {
	return e.Content != "" || e.Reasoning != ""
}

// IsComplete reports narrative completeness for coverage metrics (§4.9):
// reasoning, evidence, alternatives, and risks must all be non-empty.
func (e Entity) IsComplete() bool {
	return e.Reasoning != "" && len(e.Evidence) > 0 && len(e.Alternatives) > 0 && e.Risks != ""
}

// Validate checks the invariants from spec §3 that don't require storage
// access (existence of referenced entities is checked by the store).
func (e Entity) Validate() error {
	if e.Type == EntityTypeDecision {
		if e.Topic == "" {
			return fmt.Errorf("%w: decision entity requires a non-empty topic", mamaerr.ErrValidation)
		}
		if e.Reasoning == "" {
			return fmt.Errorf("%w: decision entity requires non-empty reasoning", mamaerr.ErrValidation)
		}
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return fmt.Errorf("%w: confidence %f out of range [0,1]", mamaerr.ErrValidation, *e.Confidence)
	}
	if e.Outcome != nil {
		switch *e.Outcome {
		case OutcomeFailed:
			if e.FailureReason == "" {
				return fmt.Errorf("%w: outcome FAILED requires a non-empty failure_reason", mamaerr.ErrValidation)
			}
		case OutcomePartial:
			if e.Limitation == "" {
				return fmt.Errorf("%w: outcome PARTIAL requires a non-empty limitation", mamaerr.ErrValidation)
			}
		}
	}
	if len(e.FailureReason) > MaxReasonLen {
		return fmt.Errorf("%w: failure_reason exceeds %d characters", mamaerr.ErrValidation, MaxReasonLen)
	}
	if len(e.Limitation) > MaxReasonLen {
		return fmt.Errorf("%w: limitation exceeds %d characters", mamaerr.ErrValidation, MaxReasonLen)
	}
	if e.Embedding != nil {
		if err := validateUnitNorm(e.Embedding); err != nil {
			return err
		}
	}
	return nil
}

func validateUnitNorm(v []float32) error {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if diff := norm - 1.0; diff < -EmbeddingNormTolerance || diff > EmbeddingNormTolerance {
		return fmt.Errorf("%w: embedding norm %f deviates from 1 by more than %g", mamaerr.ErrInvariantViolated, norm, EmbeddingNormTolerance)
	}
	return nil
}
