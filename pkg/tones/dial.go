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
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// MaxDialString is the longest dial string a channel buffers.
const MaxDialString = 64

// StepOp is what a dial string step asks the channel to do.
type StepOp int

const (
	// StepTone plays a digit tone.
	StepTone StepOp = iota
	// StepPause waits for the pause length.
	StepPause
	// StepPulse dials Pulses breaks on the hook.
	StepPulse
)

// Step is a single action produced from a dial string.
type Step struct {
	Op     StepOp
	Kind   Kind
	Digit  byte
	Pulses int
}

// Dialer tracks the pending part of a channel's dial string.
type Dialer struct {
	buf    []byte
	mode   DigitMode
	active bool
}

// Mode returns the current digit mode.
func (d *Dialer) Mode() DigitMode {
	return d.mode
}

// Active reports whether a dial string is being processed.
func (d *Dialer) Active() bool {
	return d.active
}

// Pending returns the unprocessed characters.
func (d *Dialer) Pending() string {
	return string(d.buf)
}

// Replace discards pending digits and starts dialing s in DTMF mode.
func (d *Dialer) Replace(s string) error {
	if len(s) > MaxDialString {
		return errors.ErrInvalidArgf("dial string too long")
	}
	d.buf = append(d.buf[:0], s...)
	d.mode = ModeDTMF
	d.active = len(s) != 0
	return nil
}

// Append adds digits to the pending dial string.
func (d *Dialer) Append(s string) error {
	if len(d.buf)+len(s) > MaxDialString {
		return errors.ErrInvalidArgf("dial string too long")
	}
	if !d.active {
		d.mode = ModeDTMF
	}
	d.buf = append(d.buf, s...)
	d.active = d.active || len(s) != 0
	return nil
}

// Cancel drops pending digits. It returns true if dialing was in progress.
func (d *Dialer) Cancel() bool {
	was := d.active
	d.buf = d.buf[:0]
	d.active = false
	return was
}

// Next consumes characters of the dial string until one produces a step.
// Mode switches are consumed silently and characters without a tone are skipped.
// When nothing is left it returns false and marks the dialer idle; done reports whether
// this call finished an active dial string.
func (d *Dialer) Next() (step Step, ok bool, done bool) {
	for len(d.buf) > 0 {
		c := d.buf[0]
		d.buf = d.buf[1:]
		switch c {
		case 'T', 't':
			d.mode = ModeDTMF
			continue
		case 'M', 'm':
			d.mode = ModeMFR1
			continue
		case 'O', 'o':
			d.mode = ModeMFR2Fwd
			continue
		case 'R', 'r':
			d.mode = ModeMFR2Rev
			continue
		case 'P', 'p':
			d.mode = ModePulse
			continue
		case 'W', 'w':
			return Step{Op: StepPause, Digit: c}, true, false
		}
		if d.mode == ModePulse {
			if n := PulseCount(c); n > 0 {
				return Step{Op: StepPulse, Digit: c, Pulses: n}, true, false
			}
			continue
		}
		if k, ok := DigitToTone(d.mode, c); ok {
			return Step{Op: StepTone, Kind: k, Digit: c}, true, false
		}
	}
	done = d.active
	d.active = false
	return Step{}, false, done
}

// PulseCount returns the number of breaks that dial c, or 0 if c cannot be pulse dialed.
func PulseCount(c byte) int {
	switch {
	case c == '0':
		return 10
	case c >= '1' && c <= '9':
		return int(c - '0')
	case c == '*':
		return 11
	case c == '#':
		return 12
	}
	return 0
}

// PulseDigit is the inverse of PulseCount.
func PulseDigit(n int) byte {
	switch {
	case n == 10:
		return '0'
	case n >= 1 && n <= 9:
		return byte('0' + n)
	case n == 11:
		return '*'
	case n == 12:
		return '#'
	}
	return 0
}
