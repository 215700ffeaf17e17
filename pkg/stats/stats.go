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

package stats

import (
	"math"
	"sync/atomic"
	"time"
)

// Stat accumulates a series of samples: count, sum, extremes and variance.
// Updates are lock free. A Snapshot taken while samples arrive may mix them.
type Stat struct {
	count    atomic.Uint64
	sum      atomic.Uint64
	squares  atomic.Uint64
	min      atomic.Uint64
	max      atomic.Uint64
	overflow atomic.Bool
}

// Snapshot is a point in time view of a Stat.
type Snapshot struct {
	Count    uint64
	Sum      uint64
	Min      uint64
	Max      uint64
	Average  float64
	Variance float64
	// Overflow is set once the sum of squares wrapped; Variance is meaningless then.
	Overflow bool
}

func NewStat() *Stat {
	s := &Stat{}
	s.min.Store(math.MaxUint64)
	return s
}

func (s *Stat) Update(v uint64) {
	s.count.Add(1)
	s.sum.Add(v)
	for cur := s.max.Load(); v > cur; cur = s.max.Load() {
		if s.max.CompareAndSwap(cur, v) {
			break
		}
	}
	for cur := s.min.Load(); v < cur; cur = s.min.Load() {
		if s.min.CompareAndSwap(cur, v) {
			break
		}
	}
	sq := v * v
	if s.squares.Add(sq) < sq || (v != 0 && sq/v != v) {
		s.overflow.Store(true)
	}
}

func (s *Stat) Snapshot() Snapshot {
	snap := Snapshot{
		Count:    s.count.Load(),
		Sum:      s.sum.Load(),
		Min:      s.min.Load(),
		Max:      s.max.Load(),
		Overflow: s.overflow.Load(),
	}
	if snap.Count == 0 {
		snap.Min = 0
		return snap
	}
	n := float64(snap.Count)
	snap.Average = float64(snap.Sum) / n
	snap.Variance = float64(s.squares.Load())/n - snap.Average*snap.Average
	return snap
}

// TickStat tracks how long pipeline ticks take, in microseconds. Ticks running
// longer than the tick interval are counted as late: they eat into the next tick.
type TickStat struct {
	Stat
	interval time.Duration
	late     atomic.Uint64
}

func NewTickStat(interval time.Duration) *TickStat {
	t := &TickStat{interval: interval}
	t.min.Store(math.MaxUint64)
	return t
}

func (t *TickStat) Observe(d time.Duration) {
	t.Update(uint64(d.Microseconds()))
	if t.interval > 0 && d > t.interval {
		t.late.Add(1)
	}
}

// Late returns the number of ticks that took longer than the interval.
func (t *TickStat) Late() uint64 {
	return t.late.Load()
}
