package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsStable(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("https://example.com/post:lead text"))
	require.NoError(t, err)
	second, err := h.Hash([]byte("https://example.com/post:lead text"))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	other, err := h.Hash([]byte("https://example.com/post:different lead"))
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}
