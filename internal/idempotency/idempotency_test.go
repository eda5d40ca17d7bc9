package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPayloadIsDeterministic(t *testing.T) {
	payload := map[string]any{"a": 1, "b": "two"}

	h1, err := HashPayload(payload)
	require.NoError(t, err)
	h2, err := HashPayload(payload)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

func TestHashPayloadDiffersForDifferentPayloads(t *testing.T) {
	h1, err := HashPayload(map[string]any{"quantity": 100})
	require.NoError(t, err)
	h2, err := HashPayload(map[string]any{"quantity": 200})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
