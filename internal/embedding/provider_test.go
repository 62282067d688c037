package embedding_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/embedding"
	"github.com/mama-core/mama/internal/mamaerr"
)

func TestNew_DefaultsToHashProvider(t *testing.T) {
	p, err := embedding.New(embedding.Options{})
	require.NoError(t, err)
	assert.IsType(t, &embedding.HashProvider{}, p)
}

func TestNew_UnknownKindErrors(t *testing.T) {
	_, err := embedding.New(embedding.Options{Kind: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNew_OpenAIRequiresAPIKey(t *testing.T) {
	_, err := embedding.New(embedding.Options{Kind: "openai"})
	require.Error(t, err)
	assert.ErrorIs(t, err, mamaerr.ErrValidation)
}

func TestNoopProvider_AlwaysUnavailable(t *testing.T) {
	p := embedding.NewNoopProvider(16)
	assert.Equal(t, 16, p.Dimensions())

	_, err := p.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, mamaerr.ErrEmbedUnavailable)

	_, err = p.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, mamaerr.ErrEmbedUnavailable)
}
