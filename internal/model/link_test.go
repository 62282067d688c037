package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
)

func TestLinkValidate_RejectsSelfLoop(t *testing.T) {
	l := model.Link{FromID: "D1", ToID: "D1", Relationship: "refines", Reason: "because"}
	err := l.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mamaerr.ErrInvariantViolated))
}

func TestLinkValidate_RequiresReason(t *testing.T) {
	l := model.Link{FromID: "D1", ToID: "D2", Relationship: "refines"}
	err := l.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, mamaerr.ErrValidation))
}

func TestLinkActive(t *testing.T) {
	l := model.Link{FromID: "D1", ToID: "D2", Relationship: "refines", Reason: "because"}
	assert.False(t, l.Active())
	l.ApprovedByUser = true
	assert.True(t, l.Active())
}

func TestLinkIsLegacyAutoAndProtected(t *testing.T) {
	auto := model.Link{FromID: "D1", ToID: "D2", CreatedBy: model.CreatedByUser}
	assert.True(t, auto.IsLegacyAuto())
	assert.False(t, auto.IsProtected())

	llmLink := model.Link{FromID: "D1", ToID: "D2", CreatedBy: model.CreatedByLLM}
	assert.False(t, llmLink.IsLegacyAuto())
	assert.True(t, llmLink.IsProtected())

	contextualized := model.Link{
		FromID: "D1", ToID: "D2",
		CreatedBy: model.CreatedByUser, ApprovedByUser: true, DecisionID: ptr("D9"),
	}
	assert.False(t, contextualized.IsLegacyAuto())
	assert.True(t, contextualized.IsProtected())
}
