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

package conf

import (
	"slices"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

const (
	ChunkSize = 8
	MaxConf   = 1024
	MaxLinks  = MaxConf

	// DefaultMaxActive is the default number of conferences that may be mixed at once.
	DefaultMaxActive = 128
)

type Chunk [ChunkSize]int16

// Sum is an accumulated conference mix. It is kept wide and clipped only on output.
type Sum [ChunkSize]int32

// Buffer selects one of the three rotating accumulator sets.
type Buffer int

const (
	Prev Buffer = iota
	Current
	Next
)

type Link struct {
	Src int
	Dst int
}

// Referencer reports whether any channel uses a conference in a conference mode.
type Referencer interface {
	ReferencesConf(n int) bool
}

// Engine owns the conference alias tables, the prev/current/next accumulators and
// the link table. It is driven by a single tick owner and is not safe for concurrent use.
type Engine struct {
	log     logger.Logger
	alias   [MaxConf + 1]int // conference -> alias, 0 if none
	rev     []int            // alias -> conference, index 0 unused
	sums    [3][]Sum
	links   []Link
	pending int
}

func NewEngine(maxActive int, log logger.Logger) *Engine {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	if log == nil {
		log = logger.GetLogger()
	}
	e := &Engine{log: log}
	e.alloc(maxActive)
	return e
}

func (e *Engine) alloc(n int) {
	rev := make([]int, n+1)
	copy(rev, e.rev)
	e.rev = rev
	for i := range e.sums {
		sums := make([]Sum, n+1)
		copy(sums, e.sums[i])
		e.sums[i] = sums
	}
}

// MaxActive returns the number of alias slots.
func (e *Engine) MaxActive() int {
	return len(e.rev) - 1
}

// limit is the highest alias that may be handed out. A pending shrink applies at once.
func (e *Engine) limit() int {
	if n := e.pending; n != 0 && n < e.MaxActive() {
		return n
	}
	return e.MaxActive()
}

// Resize changes the number of alias slots at the next rotation. Shrinking below the
// highest live alias fails with Busy. Until the rotation no alias above n is allocated.
func (e *Engine) Resize(n int) error {
	if n <= 0 || n > MaxConf {
		return errors.ErrInvalidArgf("max active conferences %d", n)
	}
	for a := n + 1; a < len(e.rev); a++ {
		if e.rev[a] != 0 {
			return errors.ErrBusyf("alias %d in use by conference %d", a, e.rev[a])
		}
	}
	e.pending = n
	return nil
}

// Rotate advances the accumulators: prev := current, current := next, next := 0.
func (e *Engine) Rotate() {
	if n := e.pending; n != 0 {
		e.pending = 0
		if n != e.MaxActive() {
			e.log.Infow("resized conference slots", "from", e.MaxActive(), "to", n)
			e.alloc(n)
		}
	}
	prev := e.sums[Prev]
	e.sums[Prev] = e.sums[Current]
	e.sums[Current] = e.sums[Next]
	clear(prev)
	e.sums[Next] = prev
}

// Alias returns the alias of conference n, allocating the first free one if needed.
func (e *Engine) Alias(n int) (int, error) {
	if n < 1 || n > MaxConf {
		return 0, errors.ErrInvalidArgf("conference %d", n)
	}
	if a := e.alias[n]; a != 0 {
		return a, nil
	}
	for a := 1; a <= e.limit(); a++ {
		if e.rev[a] == 0 {
			e.rev[a] = n
			e.alias[n] = a
			for i := range e.sums {
				e.sums[i][a] = Sum{}
			}
			e.log.Debugw("conference alias allocated", "conf", n, "alias", a)
			return a, nil
		}
	}
	e.log.Debugw("conference slots exhausted", "conf", n, "slots", e.limit())
	return 0, errors.ErrBusyf("no free conference slot for %d", n)
}

// Lookup returns the alias of conference n without allocating.
func (e *Engine) Lookup(n int) int {
	if n < 1 || n > MaxConf {
		return 0
	}
	return e.alias[n]
}

// Check releases the alias of conference n when nothing references it.
func (e *Engine) Check(n int, r Referencer) bool {
	a := e.Lookup(n)
	if a == 0 || r.ReferencesConf(n) {
		return false
	}
	e.alias[n] = 0
	e.rev[a] = 0
	e.log.Debugw("conference alias released", "conf", n, "alias", a)
	return true
}

// Active returns the live conferences in alias order.
func (e *Engine) Active() []int {
	var out []int
	for _, n := range e.rev[1:] {
		if n != 0 {
			out = append(out, n)
		}
	}
	return out
}

func (e *Engine) Sum(b Buffer, alias int) *Sum {
	return &e.sums[b][alias]
}

// Talk adds in to the accumulator of alias and returns what was added, so that the
// member can remove exactly its own contribution later.
func (e *Engine) Talk(b Buffer, alias int, in *Chunk) Chunk {
	if alias == 0 {
		return Chunk{}
	}
	s := &e.sums[b][alias]
	for i, v := range in {
		s[i] += int32(v)
	}
	return *in
}

// Listen writes the mix of alias without own into out, clipped to 16 bits.
func (e *Engine) Listen(out *Chunk, b Buffer, alias int, own *Chunk) {
	if alias == 0 {
		*out = Chunk{}
		return
	}
	s := &e.sums[b][alias]
	for i := range out {
		v := s[i]
		if own != nil {
			v -= int32(own[i])
		}
		out[i] = Clip(v)
	}
}

// Mix adds the mix of alias without own onto out.
func (e *Engine) Mix(out *Chunk, b Buffer, alias int, own *Chunk) {
	if alias == 0 {
		return
	}
	s := &e.sums[b][alias]
	for i := range out {
		v := int32(out[i]) + s[i]
		if own != nil {
			v -= int32(own[i])
		}
		out[i] = Clip(v)
	}
}

// Clip saturates a wide sample to the symmetric 16-bit range.
func Clip(v int32) int16 {
	if v > 0x7FFF {
		return 0x7FFF
	}
	if v < -0x7FFF {
		return -0x7FFF
	}
	return int16(v)
}

// AddLink makes the current mix of src feed into dst once per tick.
func (e *Engine) AddLink(src, dst int) error {
	if src < 1 || src > MaxConf || dst < 1 || dst > MaxConf || src == dst {
		return errors.ErrInvalidArgf("link %d -> %d", src, dst)
	}
	l := Link{Src: src, Dst: dst}
	if slices.Contains(e.links, l) {
		return nil
	}
	if len(e.links) >= MaxLinks {
		return errors.ErrBusyf("link table full")
	}
	e.links = append(e.links, l)
	return nil
}

func (e *Engine) RemoveLink(src, dst int) error {
	i := slices.Index(e.links, Link{Src: src, Dst: dst})
	if i < 0 {
		return errors.ErrInvalidArgf("no link %d -> %d", src, dst)
	}
	e.links = slices.Delete(e.links, i, i+1)
	return nil
}

// ClearLinks removes every link.
func (e *Engine) ClearLinks() {
	e.links = e.links[:0]
}

func (e *Engine) Links() []Link {
	return slices.Clone(e.links)
}

// ApplyLinks adds each linked source into its destination in the current buffer.
// Links whose conferences have no alias are skipped.
func (e *Engine) ApplyLinks() {
	cur := e.sums[Current]
	for _, l := range e.links {
		d, s := e.alias[l.Dst], e.alias[l.Src]
		if d == 0 || s == 0 {
			continue
		}
		for i := range cur[d] {
			cur[d][i] += cur[s][i]
		}
	}
}
