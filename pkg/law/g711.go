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
	"math/bits"
	"sync"
	"sync/atomic"
)

// from g711.c by SUN microsystems (unrestricted use)

const (
	signBit   = 0x80 // Sign bit for a A-law byte.
	quantMask = 0xf  // Quantization field mask.
	segShift  = 4    // Left shift for segment number.
	segMask   = 0x70 // Segment field mask.

	bias = 0x84 // Bias for linear code.
	clip = 32635

	// ZeroTrap replaces an all-zero μ-law code.
	ZeroTrap = 0x02
)

var (
	ulaw2lin [256]int16
	alaw2lin [256]int16

	lin2ulaw [16384]byte
	lin2alaw [16384]byte

	precomputed atomic.Bool
	buildOnce   sync.Once
)

func init() {
	buildLinTable(ulaw2lin[:], ulaw2linear)
	buildLinTable(alaw2lin[:], alaw2linear)
}

// SetPrecomputed switches encoding between the 16384-entry reverse tables and direct computation.
// Both paths produce identical codes.
func SetPrecomputed(on bool) {
	if on {
		buildOnce.Do(func() {
			buildLawTable(lin2ulaw[:], linear2ulaw)
			buildLawTable(lin2alaw[:], linear2alaw)
		})
	}
	precomputed.Store(on)
}

// Precomputed reports whether reverse tables are in use.
func Precomputed() bool {
	return precomputed.Load()
}

func alaw2linear(v byte) int {
	v ^= 0x55

	t := int(v & quantMask)
	seg := int((uint(v) & segMask) >> segShift)
	if seg != 0 {
		t = (t + t + 1 + 32) << (seg + 2)
	} else {
		t = (t + t + 1) << 3
	}

	if (v & signBit) != 0 {
		return t
	}
	return -t
}

func ulaw2linear(v byte) int {
	v = ^v

	t := (int(v&quantMask) << 3) + bias
	t <<= (uint(v) & segMask) >> segShift

	if (v & signBit) != 0 {
		return bias - t
	}
	return t - bias
}

// linear2ulaw encodes a sample whose two low bits are already cleared.
func linear2ulaw(v int) byte {
	sign := (v >> 8) & signBit
	if sign != 0 {
		v = -v
	}
	if v > clip {
		v = clip
	}
	v += bias
	exp := bits.Len(uint(v>>7)) - 1
	if exp < 0 {
		exp = 0
	}
	mant := (v >> (exp + 3)) & quantMask
	mu := ^byte(sign | exp<<segShift | mant)
	switch mu {
	case 0:
		mu = ZeroTrap
	case 0xff:
		mu = 0x7f
	}
	return mu
}

var alawSegEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

func linear2alaw(v int) byte {
	v >>= 3
	mask := 0xd5
	if v < 0 {
		mask = 0x55
		v = -v - 1
	}
	seg := 0
	for seg < len(alawSegEnd) && v > alawSegEnd[seg] {
		seg++
	}
	if seg >= len(alawSegEnd) {
		return byte(0x7f ^ mask)
	}
	a := seg << segShift
	if seg < 2 {
		a |= (v >> 1) & quantMask
	} else {
		a |= (v >> seg) & quantMask
	}
	return byte(a ^ mask)
}

func buildLinTable(table []int16, log2lin func(byte) int) {
	for i := range table {
		table[i] = int16(log2lin(byte(i)))
	}
}

func buildLawTable(table []byte, lin2log func(int) byte) {
	for i := range table {
		table[i] = lin2log((i << 2) - 32768)
	}
}

func tableIndex(v int16) int {
	return (int(v) + 32768) >> 2
}

// truncate drops the two low bits, matching the resolution of the reverse tables.
func truncate(v int16) int {
	return int(v) >> 2 << 2
}

func LinearToULaw(v int16) byte {
	if precomputed.Load() {
		return lin2ulaw[tableIndex(v)]
	}
	return linear2ulaw(truncate(v))
}

func LinearToALaw(v int16) byte {
	if precomputed.Load() {
		return lin2alaw[tableIndex(v)]
	}
	return linear2alaw(truncate(v))
}

func ULawToLinear(v byte) int16 {
	return ulaw2lin[v]
}

func ALawToLinear(v byte) int16 {
	return alaw2lin[v]
}

func EncodeALawTo(out []byte, buf []int16) {
	for i, v := range buf {
		out[i] = LinearToALaw(v)
	}
}

func DecodeALawTo(out []int16, buf []byte) {
	for i, v := range buf {
		out[i] = alaw2lin[v]
	}
}

func EncodeULawTo(out []byte, buf []int16) {
	for i, v := range buf {
		out[i] = LinearToULaw(v)
	}
}

func DecodeULawTo(out []int16, buf []byte) {
	for i, v := range buf {
		out[i] = ulaw2lin[v]
	}
}
