package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

func TestRing(t *testing.T) {
	t.Run("bounds", func(t *testing.T) {
		_, err := NewRing[byte](16, 1)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
		_, err = NewRing[byte](8, 2)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
		_, err = NewRing[byte](16, MaxNumBufs+1)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
	t.Run("slots", func(t *testing.T) {
		r, err := NewRing[byte](16, 2)
		require.NoError(t, err)
		require.Equal(t, At(0), r.In())
		require.True(t, r.Out().IsEmpty())

		require.False(t, r.Commit(), "empty block is not committed")
		require.Equal(t, 16, r.Fill(make([]byte, 20)))
		require.True(t, r.Commit())
		require.Equal(t, At(1), r.In())
		require.Equal(t, At(0), r.Out())

		r.Put(1)
		require.True(t, r.Commit())
		require.True(t, r.Full())
		require.True(t, r.In().IsEmpty())
		require.Equal(t, 0, r.Fill([]byte{1}))
		require.Equal(t, 17, r.Len())

		buf := make([]byte, 32)
		n, done := r.Drain(buf)
		require.Equal(t, 16, n)
		require.True(t, done)
		require.Equal(t, At(0), r.In())
		require.Equal(t, At(1), r.Out())

		n, done = r.Drain(buf)
		require.Equal(t, 1, n)
		require.True(t, done)
		require.True(t, r.Out().IsEmpty())
		require.Equal(t, 0, r.Len())
	})
	t.Run("drain partial", func(t *testing.T) {
		r, err := NewRing[byte](16, 3)
		require.NoError(t, err)
		r.Fill([]byte("0123456789"))
		r.Commit()
		buf := make([]byte, 4)
		n, done := r.Drain(buf)
		require.Equal(t, 4, n)
		require.False(t, done)
		require.Equal(t, "0123", string(buf))
		require.Equal(t, "456789", string(r.OutBlock()))
		require.Equal(t, 6, r.Len())
	})
	t.Run("when full", func(t *testing.T) {
		r, err := NewRing[byte](16, 2)
		require.NoError(t, err)
		r.SetPolicy(WhenFull)
		r.Put(1)
		r.Commit()
		require.True(t, r.Held())
		require.True(t, r.Out().IsEmpty())
		n, _ := r.Drain(make([]byte, 4))
		require.Equal(t, 0, n)

		r.Put(2)
		r.Commit()
		require.False(t, r.Held())
		n, _ = r.Drain(make([]byte, 4))
		require.Equal(t, 1, n)
		n, _ = r.Drain(make([]byte, 4))
		require.Equal(t, 1, n)
		require.True(t, r.Held(), "held again after draining")
	})
	t.Run("resize resets", func(t *testing.T) {
		r, err := NewRing[byte](16, 2)
		require.NoError(t, err)
		r.Put(1)
		r.Commit()
		require.NoError(t, r.Resize(32, 4))
		require.Equal(t, 0, r.Len())
		require.Equal(t, 32, r.BlockSize())
		require.Equal(t, 4, r.NumBufs())
		require.Equal(t, At(0), r.In())
		require.Error(t, r.Resize(1, 4))
	})
}

func TestRingConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r, err := NewRing[byte](16, rapid.IntRange(MinNumBufs, 6).Draw(t, "bufs"))
		if err != nil {
			t.Fatal(err)
		}
		var written, read int
		buf := make([]byte, 64)
		t.Repeat(map[string]func(*rapid.T){
			"write": func(t *rapid.T) {
				n := rapid.IntRange(0, 24).Draw(t, "n")
				written += r.Fill(buf[:n])
			},
			"commit": func(t *rapid.T) {
				r.Commit()
			},
			"read": func(t *rapid.T) {
				n := rapid.IntRange(1, 24).Draw(t, "n")
				m, _ := r.Drain(buf[:n])
				read += m
			},
			"resize": func(t *rapid.T) {
				for {
					m, _ := r.Drain(buf)
					if m == 0 {
						break
					}
					read += m
				}
				if r.Pending() != 0 {
					t.Skip("producer block not committed")
				}
				if err := r.Resize(16*rapid.IntRange(1, 4).Draw(t, "k"), rapid.IntRange(MinNumBufs, 6).Draw(t, "bufs")); err != nil {
					t.Fatal(err)
				}
			},
			"": func(t *rapid.T) {
				if r.Len() != written-read {
					t.Fatalf("len %d, written %d, read %d", r.Len(), written, read)
				}
			},
		})
	})
}
