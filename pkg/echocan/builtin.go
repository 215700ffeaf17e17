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

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// Null is a provider whose instances leave the signal untouched.
type Null struct{}

func (Null) Name() string { return "NULL" }

func (Null) Create(p Params) (Instance, error) {
	return nullInstance{}, nil
}

type nullInstance struct{}

func (nullInstance) Update(ref, sig []int16)          {}
func (nullInstance) TrainTap(pos int, val int16) bool { return true }
func (nullInstance) Free()                            {}

// NLMS is a normalized least mean squares canceller.
// Keyed parameter "mu" sets the step size in 1/1000 units.
type NLMS struct{}

func (NLMS) Name() string { return "NLMS" }

func (NLMS) Create(p Params) (Instance, error) {
	mu := 0.5
	if v, ok := p.Keyed["mu"]; ok {
		if v <= 0 || v > 1000 {
			return nil, errors.ErrInvalidArgf("nlms mu %d", v)
		}
		mu = float64(v) / 1000
	}
	return &nlms{
		taps: make([]float64, p.Taps),
		hist: make([]float64, p.Taps),
		mu:   mu,
	}, nil
}

type nlms struct {
	taps []float64
	hist []float64 // reference history, newest first
	pos  int
	pow  float64
	mu   float64
}

func (e *nlms) Update(ref, sig []int16) {
	n := len(e.taps)
	for i := range sig {
		x := float64(ref[i])
		old := e.hist[n-1]
		copy(e.hist[1:], e.hist[:n-1])
		e.hist[0] = x
		e.pow += x*x - old*old
		if e.pow < 0 {
			e.pow = 0
		}

		var est float64
		for k, w := range e.taps {
			est += w * e.hist[k]
		}
		res := float64(sig[i]) - est
		if e.pow > 1 {
			g := e.mu * res / e.pow
			for k := range e.taps {
				e.taps[k] += g * e.hist[k]
			}
		}
		sig[i] = int16(max(math.MinInt16, min(math.MaxInt16, math.Round(res))))
	}
}

func (e *nlms) TrainTap(pos int, val int16) bool {
	if pos < 0 || pos >= len(e.taps) {
		return true
	}
	e.taps[pos] = float64(val) / 32768
	return pos == len(e.taps)-1
}

func (e *nlms) Free() {
	e.taps, e.hist = nil, nil
}
