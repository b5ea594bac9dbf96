package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsqa/internal/types"
	"github.com/xhad/newsqa/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	_, err := llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{Provider: llm.ProviderGoogleAI})
	assert.ErrorIs(t, err, types.ErrCredential)

	_, err = llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{Provider: "nope"})
	assert.ErrorIs(t, err, types.ErrConfiguration)

	emb, err := llm.NewEmbedderWithConfig(context.Background(), llm.EmbedderConfig{
		Provider: llm.ProviderOllama,
		Model:    "nomic-embed-text:latest",
		BaseURL:  "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.NotNil(t, emb)
}

func TestClassifyEmbeddingError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{errors.New("googleapi: Error 400: API key not valid. Please pass a valid API key."), types.ErrCredential},
		{errors.New("rpc error: code = PermissionDenied desc = PERMISSION_DENIED"), types.ErrCredential},
		{errors.New("googleapi: Error 403: The caller does not have permission"), types.ErrCredential},
		{errors.New("ollama: status code: 401"), types.ErrCredential},
		{errors.New("403 Forbidden"), types.ErrCredential},
		{errors.New("dial tcp: connection refused"), types.ErrIndexBuild},
		{errors.New("dial tcp 10.0.0.1:4013: connection refused"), types.ErrIndexBuild},
		{errors.New("batch of 401 texts exceeds the request limit"), types.ErrIndexBuild},
		{errors.New("request id 7f403a failed: 503 service unavailable"), types.ErrIndexBuild},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.ErrorIs(t, llm.ClassifyEmbeddingError(tt.err), tt.want)
		})
	}
	assert.False(t, llm.IsAuthError(nil))
}
