package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	t.Run("empty return zero", func(t *testing.T) {
		b := New[int](3)
		v, ok := b.TryPop()
		require.False(t, ok)
		require.Equal(t, int(0), v)
		require.Equal(t, 0, b.Len())
	})
	t.Run("populate and drain", func(t *testing.T) {
		const size = 3
		b := New[int](size)
		for i := 0; i < size; i++ {
			ok := b.TryPush(i + 1)
			require.True(t, ok)
			require.Equal(t, i+1, b.Len())
		}
		ok := b.TryPush(-1)
		require.False(t, ok)
		require.EqualValues(t, 1, b.Dropped())
		for i := 0; i < size; i++ {
			v, ok := b.TryPop()
			require.True(t, ok)
			require.Equal(t, i+1, v)
			require.Equal(t, size-(i+1), b.Len())
		}
		v, ok := b.TryPop()
		require.False(t, ok)
		require.Equal(t, int(0), v)
	})
	t.Run("full keeps oldest", func(t *testing.T) {
		b := New[int](2)
		require.True(t, b.TryPush(1))
		require.True(t, b.TryPush(2))
		require.False(t, b.TryPush(3))
		v, _ := b.TryPop()
		require.Equal(t, 1, v)
		require.True(t, b.TryPush(4))
		v, _ = b.TryPop()
		require.Equal(t, 2, v)
		v, _ = b.TryPop()
		require.Equal(t, 4, v)
	})
	t.Run("reset", func(t *testing.T) {
		b := New[int](2)
		b.TryPush(1)
		b.Reset()
		require.Equal(t, 0, b.Len())
		_, ok := b.TryPop()
		require.False(t, ok)
	})
}
