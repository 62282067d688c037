package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestEntityValidate_DecisionRequiresTopicAndReasoning(t *testing.T) {
	e := model.Entity{Type: model.EntityTypeDecision, Content: "x"}
	err := e.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mamaerr.ErrValidation))

	e.Topic = "auth_strategy"
	err = e.Validate()
	require.Error(t, err, "still missing reasoning")

	e.Reasoning = "stateless auth"
	assert.NoError(t, e.Validate())
}

func TestEntityValidate_ConfidenceRange(t *testing.T) {
	e := model.Entity{Type: model.EntityTypeInsight, Content: "x", Confidence: ptr(1.5)}
	err := e.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mamaerr.ErrValidation))
}

func TestEntityValidate_FailedRequiresFailureReason(t *testing.T) {
	e := model.Entity{Type: model.EntityTypeContext, Content: "x", Outcome: ptr(model.OutcomeFailed)}
	err := e.Validate()
	require.Error(t, err)

	e.FailureReason = "DB bottleneck at 10K rps"
	assert.NoError(t, e.Validate())
}

func TestEntityValidate_PartialRequiresLimitation(t *testing.T) {
	e := model.Entity{Type: model.EntityTypeContext, Content: "x", Outcome: ptr(model.OutcomePartial)}
	err := e.Validate()
	require.Error(t, err)

	e.Limitation = "only covers the happy path"
	assert.NoError(t, e.Validate())
}

func TestEntityValidate_EmbeddingNorm(t *testing.T) {
	e := model.Entity{Type: model.EntityTypeInsight, Content: "x", Embedding: []float32{0.6, 0.8}}
	assert.NoError(t, e.Validate(), "unit vector should pass")

	e.Embedding = []float32{1, 1}
	err := e.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mamaerr.ErrInvariantViolated))
}

func TestEntityIsComplete(t *testing.T) {
	e := model.Entity{
		Reasoning:    "because",
		Evidence:     []string{"file.go:10"},
		Alternatives: []string{"plan B"},
		Risks:        "latency",
	}
	assert.True(t, e.IsComplete())

	e.Risks = ""
	assert.False(t, e.IsComplete())
}
