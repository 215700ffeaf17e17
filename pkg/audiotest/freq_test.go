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

package audiotest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreq(t *testing.T) {
	sig := make([]int16, 160)
	const amp = 100
	inp := []Wave{
		{0, amp},
		{3, amp / 2},
		{1, amp / 4},
	}
	GenSignal(sig, inp)

	out := FindSignal(sig)
	require.Equal(t, inp, out)
}

func TestFindPeaks(t *testing.T) {
	sig := make([]int16, 8000)
	for i := range sig {
		ph := 2 * math.Pi * float64(i) / 8000
		sig[i] = int16(4000*math.Sin(ph*440) + 2000*math.Sin(ph*350))
	}
	peaks := FindPeaks(sig, 8000, 2)
	require.Len(t, peaks, 2)
	require.InDelta(t, 440, peaks[0].Freq, 1)
	require.InDelta(t, 350, peaks[1].Freq, 1)
}
