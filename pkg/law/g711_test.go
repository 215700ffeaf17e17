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

package law

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ulawErrorBound(s int) int {
	if s <= -31612 {
		// zero trap region
		return 2700
	}
	a := s
	if a < 0 {
		a = -a
	}
	if a > clip {
		a = clip
	}
	exp := 0
	for v := (a + bias) >> 7; v > 1; v >>= 1 {
		exp++
	}
	return (16 << exp) + 4
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func withPrecomputed(t *testing.T, on bool) {
	prev := Precomputed()
	SetPrecomputed(on)
	t.Cleanup(func() { SetPrecomputed(prev) })
}

func TestULaw(t *testing.T) {
	for _, pre := range []bool{false, true} {
		name := "computed"
		if pre {
			name = "precomputed"
		}
		t.Run(name, func(t *testing.T) {
			withPrecomputed(t, pre)
			t.Run("never 0xff", func(t *testing.T) {
				for s := math.MinInt16; s <= math.MaxInt16; s++ {
					require.NotEqual(t, byte(0xff), LinearToULaw(int16(s)), "s=%d", s)
				}
			})
			t.Run("zero trap", func(t *testing.T) {
				require.Equal(t, byte(ZeroTrap), LinearToULaw(math.MinInt16))
				require.Equal(t, byte(0x7f), LinearToULaw(0))
				require.Equal(t, int16(0), ULawToLinear(LinearToULaw(0)))
			})
			t.Run("round trip", func(t *testing.T) {
				rapid.Check(t, func(t *rapid.T) {
					s := rapid.Int16().Draw(t, "s")
					got := int(ULawToLinear(LinearToULaw(s)))
					if d := abs(got - int(s)); d > ulawErrorBound(int(s)) {
						t.Fatalf("s=%d decoded=%d diff=%d", s, got, d)
					}
				})
			})
		})
	}
}

func TestPrecomputedMatches(t *testing.T) {
	var computed [2][65536]byte
	withPrecomputed(t, false)
	for s := math.MinInt16; s <= math.MaxInt16; s++ {
		computed[0][s+32768] = LinearToULaw(int16(s))
		computed[1][s+32768] = LinearToALaw(int16(s))
	}
	SetPrecomputed(true)
	for s := math.MinInt16; s <= math.MaxInt16; s++ {
		require.Equal(t, computed[0][s+32768], LinearToULaw(int16(s)), "ulaw s=%d", s)
		require.Equal(t, computed[1][s+32768], LinearToALaw(int16(s)), "alaw s=%d", s)
	}
}

func TestALaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.Int16().Draw(t, "s")
		got := int(ALawToLinear(LinearToALaw(s)))
		a := abs(int(s))
		bound := 32
		for v := a >> 8; v > 1; v >>= 1 {
			bound <<= 1
		}
		if a > 32256 {
			bound = 1024
		}
		if d := abs(got - int(s)); d > bound {
			t.Fatalf("s=%d decoded=%d diff=%d", s, got, d)
		}
	})
}

func TestCodecBuffers(t *testing.T) {
	src := []int16{0, 1000, -1000, 32767, -32768}
	for _, l := range []Law{MuLaw, ALaw} {
		enc := make([]byte, len(src))
		l.EncodeTo(enc, src)
		dec := make([]int16, len(src))
		l.DecodeTo(dec, enc)
		for i := range src {
			require.Equal(t, l.Encode(src[i]), enc[i])
			require.Equal(t, l.Decode(enc[i]), dec[i])
		}
	}
}
