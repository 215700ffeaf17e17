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
	"fmt"
	"math"
)

// Law selects a companding, as requested by a channel or configured on a span.
type Law int

const (
	Default Law = iota
	MuLaw
	ALaw
)

func (l Law) String() string {
	switch l {
	case Default:
		return "default"
	case MuLaw:
		return "ulaw"
	case ALaw:
		return "alaw"
	}
	return fmt.Sprintf("Law(%d)", int(l))
}

// Parse converts a config name to a Law. Empty string means Default.
func Parse(s string) (Law, error) {
	switch s {
	case "", "default":
		return Default, nil
	case "ulaw", "mulaw", "u-law":
		return MuLaw, nil
	case "alaw", "a-law":
		return ALaw, nil
	}
	return Default, fmt.Errorf("unknown law %q", s)
}

// Resolve returns the effective law. Default falls back to the channel default,
// then the span default, then μ-law.
func Resolve(requested, chanDefault, spanDefault Law) Law {
	for _, l := range []Law{requested, chanDefault, spanDefault} {
		if l == MuLaw || l == ALaw {
			return l
		}
	}
	return MuLaw
}

func (l Law) Encode(v int16) byte {
	if l == ALaw {
		return LinearToALaw(v)
	}
	return LinearToULaw(v)
}

func (l Law) Decode(v byte) int16 {
	if l == ALaw {
		return alaw2lin[v]
	}
	return ulaw2lin[v]
}

func (l Law) EncodeTo(out []byte, buf []int16) {
	if l == ALaw {
		EncodeALawTo(out, buf)
		return
	}
	EncodeULawTo(out, buf)
}

func (l Law) DecodeTo(out []int16, buf []byte) {
	if l == ALaw {
		DecodeALawTo(out, buf)
		return
	}
	DecodeULawTo(out, buf)
}

// Silence returns the companded code closest to zero.
func (l Law) Silence() byte {
	return l.Encode(0)
}

// GainTable maps a companded byte to a companded byte with gain applied.
type GainTable [256]byte

// Identity returns a table that leaves samples untouched.
func Identity() *GainTable {
	var t GainTable
	for i := range t {
		t[i] = byte(i)
	}
	return &t
}

// NewGainTable builds a gain table for the law, with gain given in dB.
func NewGainTable(l Law, db float64) *GainTable {
	if db == 0 {
		return Identity()
	}
	k := math.Pow(10, db/20)
	var t GainTable
	for i := range t {
		v := float64(l.Decode(byte(i))) * k
		v = max(math.MinInt16, min(math.MaxInt16, v))
		t[i] = l.Encode(int16(v))
	}
	return &t
}

// Apply maps every byte in buf through the table in place.
func (t *GainTable) Apply(buf []byte) {
	if t == nil {
		return
	}
	for i, v := range buf {
		buf[i] = t[v]
	}
}

// IsIdentity reports whether the table leaves samples untouched.
func (t *GainTable) IsIdentity() bool {
	if t == nil {
		return true
	}
	for i, v := range t {
		if int(v) != i {
			return false
		}
	}
	return true
}
