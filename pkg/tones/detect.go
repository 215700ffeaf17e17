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

package tones

import (
	"math"
	"time"
)

// goertzelWindow is the analysis block length in samples at 8kHz.
const goertzelWindow = 102

type goertzel struct {
	coef   float64
	s1, s2 float64
}

func newGoertzel(freq Hz) goertzel {
	return goertzel{coef: 2 * math.Cos(2*math.Pi*float64(freq)/SampleRate)}
}

func (g *goertzel) update(x float64) {
	s := x + g.coef*g.s1 - g.s2
	g.s2 = g.s1
	g.s1 = s
}

func (g *goertzel) energy() float64 {
	return g.s1*g.s1 + g.s2*g.s2 - g.coef*g.s1*g.s2
}

func (g *goertzel) reset() {
	g.s1, g.s2 = 0, 0
}

// Detector reports a single frequency held for a minimum time, as used for the
// 2100 Hz echo canceller disable tone.
type Detector struct {
	g       goertzel
	total   float64
	n       int
	hits    int
	need    int
	tripped bool
}

// DisableToneFreq is the answer tone that asks for echo cancellation to be turned off.
const DisableToneFreq Hz = 2100

// NewDetector returns a detector that trips after freq was dominant for at least hold.
func NewDetector(freq Hz, hold time.Duration) *Detector {
	need := SamplesFor(hold) / goertzelWindow
	if need < 1 {
		need = 1
	}
	return &Detector{g: newGoertzel(freq), need: need}
}

// Process feeds samples and reports whether the tone was detected. It trips only once until Reset.
func (d *Detector) Process(samples []int16) bool {
	detected := false
	for _, v := range samples {
		x := float64(v)
		d.g.update(x)
		d.total += x * x
		d.n++
		if d.n < goertzelWindow {
			continue
		}
		// the bin energy of a pure tone is about N/2 times the signal energy
		e := d.g.energy() * 2 / goertzelWindow
		if d.total > goertzelWindow*100 && e > 0.6*d.total {
			d.hits++
		} else {
			d.hits = 0
		}
		d.g.reset()
		d.total = 0
		d.n = 0
		if d.hits >= d.need && !d.tripped {
			d.tripped = true
			detected = true
		}
	}
	return detected
}

func (d *Detector) Reset() {
	d.g.reset()
	d.total, d.n, d.hits = 0, 0, 0
	d.tripped = false
}
