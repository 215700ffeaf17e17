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

// SampleRate of every channel.
const SampleRate = 8000

type Hz uint32

// Tone is one segment of a tone: two recursive oscillators running for Samples samples.
// Segments form a singly-linked list which may loop back on itself.
type Tone struct {
	Fac1, InitV2a, InitV3a int32
	Fac2, InitV2b, InitV3b int32

	Samples  int
	Modulate bool

	Next *Tone
}

// Level of generated tones in dBm0 unless configured otherwise.
const DefaultLevel = -10

func oscillator(freq Hz, gain float64) (fac, v2, v3 int32) {
	if freq == 0 {
		return 0, 0, 0
	}
	w := 2 * math.Pi * float64(freq) / SampleRate
	fac = int32(2 * math.Cos(w) * 32768)
	v2 = int32(math.Sin(-2*w) * gain)
	v3 = int32(math.Sin(-w) * gain)
	return fac, v2, v3
}

func levelGain(level float64) float64 {
	return math.Pow(10, (level-3.14)/20) * 65536 / 2
}

// SamplesFor converts a duration to a sample count.
func SamplesFor(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}

// NewTone builds a two-frequency segment. Either frequency may be zero; both zero is silence.
func NewTone(f1, f2 Hz, level float64, dur time.Duration) *Tone {
	g := levelGain(level)
	t := &Tone{Samples: SamplesFor(dur)}
	t.Fac1, t.InitV2a, t.InitV3a = oscillator(f1, g)
	t.Fac2, t.InitV2b, t.InitV3b = oscillator(f2, g)
	return t
}

// Silence returns a silent segment.
func Silence(dur time.Duration) *Tone {
	return &Tone{Samples: SamplesFor(dur)}
}

// Chain links segments in order and returns the first one.
// If loop is set the last segment points back at the first.
func Chain(loop bool, segs ...*Tone) *Tone {
	if len(segs) == 0 {
		return nil
	}
	for i := 0; i+1 < len(segs); i++ {
		segs[i].Next = segs[i+1]
	}
	if loop {
		segs[len(segs)-1].Next = segs[0]
	}
	return segs[0]
}

// IsSilent reports whether the segment produces no signal.
func (t *Tone) IsSilent() bool {
	return t.InitV2a == 0 && t.InitV3a == 0 && t.InitV2b == 0 && t.InitV3b == 0
}

// Player generates samples of a tone on a channel.
type Player struct {
	cur *Tone
	pos int

	v1a, v2a, v3a int32
	v1b, v2b, v3b int32
}

// Start replaces the current tone. A nil tone stops playback.
func (p *Player) Start(t *Tone) {
	p.cur = t
	p.load()
}

func (p *Player) Stop() {
	p.Start(nil)
}

func (p *Player) load() {
	p.pos = 0
	if p.cur == nil {
		p.v1a, p.v2a, p.v3a = 0, 0, 0
		p.v1b, p.v2b, p.v3b = 0, 0, 0
		return
	}
	p.v1a, p.v2a, p.v3a = 0, p.cur.InitV2a, p.cur.InitV3a
	p.v1b, p.v2b, p.v3b = 0, p.cur.InitV2b, p.cur.InitV3b
}

func (p *Player) Playing() bool {
	return p.cur != nil
}

// Current returns the segment being played.
func (p *Player) Current() *Tone {
	return p.cur
}

// NextSample advances both oscillators by one sample.
// At the end of a segment playback continues with the next one.
func (p *Player) NextSample() int16 {
	t := p.cur
	if t == nil {
		return 0
	}
	p.v1a, p.v2a = p.v2a, p.v3a
	p.v3a = int32((int64(t.Fac1)*int64(p.v2a))>>15) - p.v1a
	p.v1b, p.v2b = p.v2b, p.v3b
	p.v3b = int32((int64(t.Fac2)*int64(p.v2b))>>15) - p.v1b

	var v int32
	if t.Modulate {
		w := p.v3b
		if w < 0 {
			w = -w
		}
		v = (p.v3a * (w >> 7)) >> 8
	} else {
		v = p.v3a + p.v3b
	}

	p.pos++
	if p.pos >= t.Samples {
		p.cur = t.Next
		p.load()
	}
	return int16(max(math.MinInt16, min(math.MaxInt16, v)))
}

// Fill writes the next len(buf) samples. It returns false if playback stopped before buf was filled;
// the rest of buf is zeroed.
func (p *Player) Fill(buf []int16) bool {
	for i := range buf {
		if p.cur == nil {
			clear(buf[i:])
			return false
		}
		buf[i] = p.NextSample()
	}
	return true
}
