package runner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = b.Write([]byte("defg"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = b.Write([]byte("h"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, truncated := b.Bytes()
	require.Equal(t, "abcde", string(got))
	require.True(t, truncated)
}

func TestCappedBufferExactFit(t *testing.T) {
	b := newCappedBuffer(3)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write(nil)

	got, truncated := b.Bytes()
	require.Equal(t, "abc", string(got))
	require.False(t, truncated)
}
