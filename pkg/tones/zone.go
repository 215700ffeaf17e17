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
	"sync"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// MaxZones is the number of zone slots in a registry.
const MaxZones = 128

// DialParams controls the length of digit tones.
type DialParams struct {
	DTMFToneLen time.Duration `yaml:"dtmf_tonelen"`
	MFR1ToneLen time.Duration `yaml:"mfr1_tonelen"`
	MFR2ToneLen time.Duration `yaml:"mfr2_tonelen"`
	Level       float64       `yaml:"level"`
}

func DefaultDialParams() DialParams {
	return DialParams{
		DTMFToneLen: 100 * time.Millisecond,
		MFR1ToneLen: 68 * time.Millisecond,
		MFR2ToneLen: 100 * time.Millisecond,
		Level:       DefaultLevel,
	}
}

func (p DialParams) toneLen(c Class) time.Duration {
	switch c {
	case MFR1:
		return p.MFR1ToneLen
	case MFR2Fwd, MFR2Rev:
		return p.MFR2ToneLen
	}
	return p.DTMFToneLen
}

// SegmentSpec describes one segment of a tone.
type SegmentSpec struct {
	Freq1    Hz      `yaml:"freq1"`
	Freq2    Hz      `yaml:"freq2"`
	Level    float64 `yaml:"level"`
	Duration int     `yaml:"duration_ms"` // 0 means continuous
	Modulate bool    `yaml:"modulate"`
}

// ToneSpec describes a tone of a zone, e.g. "busy" or "dtmf:5".
type ToneSpec struct {
	Tone     string        `yaml:"tone"`
	Segments []SegmentSpec `yaml:"segments"`
	Loop     bool          `yaml:"loop"`
}

// ZoneSpec is a loadable tone zone definition.
type ZoneSpec struct {
	Name        string     `yaml:"name"`
	RingCadence []int      `yaml:"ring_cadence"` // ms, alternating on and off
	Tones       []ToneSpec `yaml:"tones"`
}

// Zone holds every tone of one locale.
type Zone struct {
	ID          int
	Name        string
	RingCadence []time.Duration

	tones  [MaxRegularTones]*Tone
	digits [MFR2Rev + 1][16]*Tone
	// MFR2 tones started directly play until replaced
	mfr2 [2][len(mfr2Digits)]*Tone
}

var (
	dtmfRow = [4]Hz{697, 770, 852, 941}
	dtmfCol = [4]Hz{1209, 1336, 1477, 1633}

	mfr1Freqs    = [6]Hz{700, 900, 1100, 1300, 1500, 1700}
	mfr2FwdFreqs = [6]Hz{1380, 1500, 1620, 1740, 1860, 1980}
	mfr2RevFreqs = [6]Hz{1140, 1020, 900, 780, 660, 540}

	// frequency pairs of MF digit values 1..15
	mfPairs = [16][2]int{
		{}, {0, 1}, {0, 2}, {1, 2}, {0, 3}, {1, 3}, {2, 3}, {0, 4},
		{1, 4}, {2, 4}, {3, 4}, {0, 5}, {1, 5}, {2, 5}, {3, 5}, {4, 5},
	}
	// MF digit value of each MFR1 digit table entry
	mfr1Values = [len(mfr1Digits)]int{10, 1, 2, 3, 4, 5, 6, 7, 8, 9, 13, 15, 12, 14, 11}
)

func digitFreqs(c Class, i int) (Hz, Hz) {
	switch c {
	case DTMF:
		return dtmfRow[dtmfRowOf(i)], dtmfCol[dtmfColOf(i)]
	case MFR1:
		p := mfPairs[mfr1Values[i]]
		return mfr1Freqs[p[0]], mfr1Freqs[p[1]]
	case MFR2Fwd:
		p := mfPairs[i+1]
		return mfr2FwdFreqs[p[0]], mfr2FwdFreqs[p[1]]
	case MFR2Rev:
		p := mfPairs[i+1]
		return mfr2RevFreqs[p[0]], mfr2RevFreqs[p[1]]
	}
	return 0, 0
}

// keypad position of dtmfDigits entries
var dtmfKeypad = [16][2]int{
	{3, 1}, {0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}, {2, 0},
	{2, 1}, {2, 2}, {3, 0}, {3, 2}, {0, 3}, {1, 3}, {2, 3}, {3, 3},
}

func dtmfRowOf(i int) int { return dtmfKeypad[i][0] }
func dtmfColOf(i int) int { return dtmfKeypad[i][1] }

func digitTone(c Class, i int, p DialParams, head *Tone) *Tone {
	dur := p.toneLen(c)
	if head == nil {
		f1, f2 := digitFreqs(c, i)
		d := dur
		if c == MFR1 && mfr1Digits[i] == '*' {
			// KP is longer
			d = 100 * time.Millisecond
		}
		head = NewTone(f1, f2, p.Level, d)
	}
	last := head
	for last.Next != nil && last.Next != head {
		last = last.Next
	}
	last.Next = Silence(dur)
	return head
}

func buildSegments(ts ToneSpec, defLevel float64) *Tone {
	segs := make([]*Tone, 0, len(ts.Segments))
	loop := ts.Loop
	for _, s := range ts.Segments {
		dur := time.Duration(s.Duration) * time.Millisecond
		if s.Duration == 0 {
			dur = time.Second
			loop = true
		}
		level := s.Level
		if level == 0 {
			level = defLevel
		}
		t := NewTone(s.Freq1, s.Freq2, level, dur)
		t.Modulate = s.Modulate
		segs = append(segs, t)
	}
	return Chain(loop, segs...)
}

// NewZone builds a zone. Digit tones not overridden by the spec use the standard frequencies.
func NewZone(spec ZoneSpec, p DialParams) (*Zone, error) {
	if p.Level == 0 {
		p.Level = DefaultLevel
	}
	z := &Zone{Name: spec.Name}
	for _, ms := range spec.RingCadence {
		if ms <= 0 {
			return nil, errors.ErrInvalidArgf("zone %q: ring cadence entry %d", spec.Name, ms)
		}
		z.RingCadence = append(z.RingCadence, time.Duration(ms)*time.Millisecond)
	}
	custom := make(map[Kind]*Tone)
	for _, ts := range spec.Tones {
		k, err := ParseKind(ts.Tone)
		if err != nil {
			return nil, err
		}
		if len(ts.Segments) == 0 {
			return nil, errors.ErrInvalidArgf("zone %q: tone %q has no segments", spec.Name, ts.Tone)
		}
		t := buildSegments(ts, p.Level)
		if k.Class == Regular {
			z.tones[k.Index] = t
		} else {
			custom[k] = t
		}
	}
	for c := DTMF; c <= MFR2Rev; c++ {
		for i := range len(classDigits(c)) {
			z.digits[c][i] = digitTone(c, i, p, custom[Kind{Class: c, Index: i}])
		}
	}
	for i := range len(mfr2Digits) {
		for j, c := range []Class{MFR2Fwd, MFR2Rev} {
			f1, f2 := digitFreqs(c, i)
			z.mfr2[j][i] = Chain(true, NewTone(f1, f2, p.Level, time.Second))
		}
	}
	return z, nil
}

// Resolve returns the tone to start for k.
func (z *Zone) Resolve(k Kind) (*Tone, error) {
	var t *Tone
	switch k.Class {
	case Regular:
		if k.Index >= 0 && k.Index < MaxRegularTones {
			t = z.tones[k.Index]
		}
	case MFR2Fwd, MFR2Rev:
		if k.Index >= 0 && k.Index < len(mfr2Digits) {
			t = z.mfr2[k.Class-MFR2Fwd][k.Index]
		}
	default:
		if k.Index >= 0 && k.Index < 16 {
			t = z.digits[k.Class][k.Index]
		}
	}
	if t == nil {
		return nil, errors.ErrNoSuchTone
	}
	return t, nil
}

// DialTone returns the tone used for a digit of a dial string: the digit followed by a gap.
func (z *Zone) DialTone(k Kind) (*Tone, error) {
	if k.Class == Regular || k.Index < 0 || k.Index >= 16 {
		return nil, errors.ErrNoSuchTone
	}
	t := z.digits[k.Class][k.Index]
	if t == nil {
		return nil, errors.ErrNoSuchTone
	}
	return t, nil
}

type zoneSlot struct {
	zone *Zone
	refs int
}

// ZoneRegistry holds loaded zones. Zones in use by a channel cannot be freed.
type ZoneRegistry struct {
	log   logger.Logger
	mu    sync.RWMutex
	zones [MaxZones]zoneSlot
	def   int
}

func NewZoneRegistry(log logger.Logger) *ZoneRegistry {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ZoneRegistry{log: log, def: -1}
}

func checkZone(id int) error {
	if id < 0 || id >= MaxZones {
		return errors.ErrInvalidArgf("zone %d", id)
	}
	return nil
}

// Register loads z into slot id, replacing an unused zone.
func (r *ZoneRegistry) Register(id int, z *Zone) error {
	if err := checkZone(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := &r.zones[id]; s.zone != nil && s.refs > 0 {
		return errors.ErrBusyf("zone %d in use", id)
	}
	z.ID = id
	r.zones[id] = zoneSlot{zone: z}
	if r.def < 0 {
		r.def = id
	}
	r.log.Infow("loaded tone zone", "zone", id, "name", z.Name, "default", r.def == id)
	return nil
}

// Free unloads zone id.
func (r *ZoneRegistry) Free(id int) error {
	if err := checkZone(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &r.zones[id]
	if s.zone == nil {
		return errors.ErrInvalidArgf("zone %d not loaded", id)
	}
	if s.refs > 0 {
		return errors.ErrBusyf("zone %d in use", id)
	}
	name := s.zone.Name
	*s = zoneSlot{}
	if r.def == id {
		r.def = -1
	}
	r.log.Infow("freed tone zone", "zone", id, "name", name)
	return nil
}

// SetDefault selects the zone used for id -1.
func (r *ZoneRegistry) SetDefault(id int) error {
	if err := checkZone(id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.zones[id].zone == nil {
		return errors.ErrNoToneZone
	}
	r.def = id
	r.log.Debugw("default tone zone", "zone", id)
	return nil
}

func (r *ZoneRegistry) Default() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Acquire takes a reference on zone id. Id -1 selects the default zone.
func (r *ZoneRegistry) Acquire(id int) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == -1 {
		id = r.def
	}
	if id < 0 || id >= MaxZones || r.zones[id].zone == nil {
		return nil, errors.ErrNoToneZone
	}
	s := &r.zones[id]
	s.refs++
	return s.zone, nil
}

// Release drops a reference taken by Acquire.
func (r *ZoneRegistry) Release(z *Zone) {
	if z == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := &r.zones[z.ID]; s.zone == z && s.refs > 0 {
		s.refs--
	}
}

// Refs returns the number of references on zone id.
func (r *ZoneRegistry) Refs(id int) int {
	if checkZone(id) != nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.zones[id].refs
}
