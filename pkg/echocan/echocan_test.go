// Copyright 2024 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package echocan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

type failing struct{}

func (failing) Name() string                      { return "broken" }
func (failing) Create(p Params) (Instance, error) { return nil, errors.ErrOutOfMemory }

func TestRegistry(t *testing.T) {
	t.Run("find is case insensitive", func(t *testing.T) {
		r := NewRegistry(nil, nil)
		require.NoError(t, r.Register(NLMS{}))
		require.ErrorIs(t, r.Register(NLMS{}), errors.ErrBusy)
		h, err := r.Find("nlms")
		require.NoError(t, err)
		require.Equal(t, "NLMS", h.Provider().Name())
		require.Equal(t, 1, r.Users("Nlms"))
		require.ErrorIs(t, r.Unregister("NLMS"), errors.ErrBusy)
		h.Release()
		h.Release()
		require.Equal(t, 0, r.Users("NLMS"))
		require.NoError(t, r.Unregister("NLMS"))
		require.ErrorIs(t, r.Unregister("NLMS"), errors.ErrNoSuchCapability)
	})
	t.Run("loader gets one chance", func(t *testing.T) {
		var r *Registry
		calls := 0
		r = NewRegistry(nil, func(name string) error {
			calls++
			if name == "null" {
				return r.Register(Null{})
			}
			return errors.ErrNoSuchCapability
		})
		h, err := r.Find("null")
		require.NoError(t, err)
		require.Equal(t, 1, calls)
		h.Release()
		_, err = r.Find("null")
		require.NoError(t, err)
		require.Equal(t, 1, calls, "registered provider needs no load")

		_, err = r.Find("kb1")
		require.ErrorIs(t, err, errors.ErrNoSuchCapability)
		_, err = r.Find("KB1")
		require.ErrorIs(t, err, errors.ErrNoSuchCapability)
		require.Equal(t, 2, calls, "failed load is remembered")
	})
	t.Run("attach", func(t *testing.T) {
		r := NewRegistry(nil, nil)
		require.NoError(t, r.Register(Null{}))
		require.NoError(t, r.Register(failing{}))

		_, err := r.Attach("null", Params{Taps: 0})
		require.ErrorIs(t, err, errors.ErrInvalidArgument)

		_, err = r.Attach("broken", Params{Taps: 128})
		require.ErrorIs(t, err, errors.ErrOutOfMemory)
		require.Equal(t, 0, r.Users("broken"), "failed create keeps no reference")

		a, err := r.Attach("NULL", Params{Taps: 128})
		require.NoError(t, err)
		require.Equal(t, "NULL", a.Name())
		require.Equal(t, 1, r.Users("null"))
		sig := []int16{1, 2, 3}
		a.Update([]int16{9, 9, 9}, sig)
		require.Equal(t, []int16{1, 2, 3}, sig)
		require.True(t, a.TrainTap(0, 1))
		a.Close()
		a.Close()
		require.Equal(t, 0, r.Users("null"))
		require.Equal(t, []string{"NULL", "broken"}, r.Names())
	})
}

func TestNLMS(t *testing.T) {
	inst, err := NLMS{}.Create(Params{Taps: 16})
	require.NoError(t, err)
	defer inst.Free()

	const n = 8000
	ref := make([]int16, n)
	sig := make([]int16, n)
	for i := range ref {
		ref[i] = int16(8000 * math.Sin(float64(i)*0.3) * math.Cos(float64(i)*0.017))
		if i >= 3 {
			sig[i] = ref[i-3] / 2
		}
	}
	for i := 0; i < n; i += 8 {
		inst.Update(ref[i:i+8], sig[i:i+8])
	}
	var tail float64
	for _, v := range sig[n-800:] {
		tail += math.Abs(float64(v))
	}
	require.Less(t, tail/800, 100.0, "echo should converge")

	_, err = NLMS{}.Create(Params{Taps: 16, Keyed: map[string]int64{"mu": 0}})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}
