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
	"math/cmplx"
	"slices"

	"github.com/mjibson/go-dsp/fft"
)

type Wave struct {
	Ind int
	Amp int
}

// GenSignal fills dst with sine waves completing 1<<Ind periods over the buffer.
func GenSignal(dst []int16, waves []Wave) {
	for i := range dst {
		ifl := float64(i) / float64(len(dst))
		var v float64
		for _, w := range waves {
			v += float64(w.Amp) * math.Sin(ifl*2*math.Pi*(float64(int(1)<<w.Ind)))
		}
		dst[i] = int16(v)
	}
}

func spectrum(src []int16) []complex128 {
	cmp := make([]complex128, len(src))
	for i, v := range src {
		cmp[i] = complex(float64(v), 0)
	}
	return fft.FFT(cmp)
}

// FindSignal is the inverse of GenSignal.
func FindSignal(src []int16) []Wave {
	out := spectrum(src)
	var waves []Wave
	for i, v := range out[:len(out)/2] {
		if i == 0 {
			continue
		}
		a := 2 * cmplx.Abs(v) / float64(len(src))
		if a < 1 {
			continue
		}
		fi := int(math.Log2(float64(i)))
		waves = append(waves, Wave{Ind: fi, Amp: int(math.Round(a + 0.5))})
	}
	slices.SortFunc(waves, func(a, b Wave) int {
		return b.Amp - a.Amp
	})
	return waves
}

// Peak is a spectral peak of a signal.
type Peak struct {
	Freq float64
	Amp  float64
}

// FindPeaks returns the n strongest local maxima of the spectrum, strongest first.
func FindPeaks(src []int16, sampleRate int, n int) []Peak {
	out := spectrum(src)
	half := out[:len(out)/2]
	mag := make([]float64, len(half))
	for i, v := range half {
		mag[i] = 2 * cmplx.Abs(v) / float64(len(src))
	}
	var peaks []Peak
	for i := 1; i+1 < len(mag); i++ {
		if mag[i] > mag[i-1] && mag[i] >= mag[i+1] {
			peaks = append(peaks, Peak{
				Freq: float64(i) * float64(sampleRate) / float64(len(src)),
				Amp:  mag[i],
			})
		}
	}
	slices.SortFunc(peaks, func(a, b Peak) int {
		switch {
		case a.Amp > b.Amp:
			return -1
		case a.Amp < b.Amp:
			return 1
		}
		return 0
	})
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}
