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
	"fmt"
	"strings"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// Regular tones defined by a zone.
const (
	ToneDial = iota
	ToneBusy
	ToneRing
	ToneCongestion
	ToneCallWait
	ToneDialRecall
	ToneRecord
	ToneInfo
	ToneCust1
	ToneCust2
	ToneStutter

	MaxRegularTones = 16
)

var regularNames = map[string]int{
	"dial":       ToneDial,
	"busy":       ToneBusy,
	"ring":       ToneRing,
	"congestion": ToneCongestion,
	"callwait":   ToneCallWait,
	"dialrecall": ToneDialRecall,
	"record":     ToneRecord,
	"info":       ToneInfo,
	"cust1":      ToneCust1,
	"cust2":      ToneCust2,
	"stutter":    ToneStutter,
}

// Class tells which table of a zone a tone comes from.
type Class int

const (
	Regular Class = iota
	DTMF
	MFR1
	MFR2Fwd
	MFR2Rev
)

func (c Class) String() string {
	switch c {
	case Regular:
		return "regular"
	case DTMF:
		return "dtmf"
	case MFR1:
		return "mfr1"
	case MFR2Fwd:
		return "mfr2fwd"
	case MFR2Rev:
		return "mfr2rev"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

const (
	dtmfDigits = "0123456789*#ABCD"
	// MFR1 uses * for KP, # for ST and A, B, C for ST', ST'', ST'''
	mfr1Digits = "0123456789*#ABC"
	mfr2Digits = "1234567890*#ABC"
)

func classDigits(c Class) string {
	switch c {
	case DTMF:
		return dtmfDigits
	case MFR1:
		return mfr1Digits
	case MFR2Fwd, MFR2Rev:
		return mfr2Digits
	}
	return ""
}

// Numeric tone id ranges, as exchanged with user-facing controls.
const (
	DTMFBase    = 16
	MFR1Base    = DTMFBase + len(dtmfDigits)
	MFR2FwdBase = MFR1Base + len(mfr1Digits)
	MFR2RevBase = MFR2FwdBase + len(mfr2Digits)
	MaxToneID   = MFR2RevBase + len(mfr2Digits)
)

// Kind identifies a tone: a regular tone index or a digit of one of the digit tables.
type Kind struct {
	Class Class
	Index int
}

func RegularTone(id int) Kind { return Kind{Class: Regular, Index: id} }

// Digit returns the tone of digit c in class; ok is false if the class has no such digit.
func Digit(class Class, c byte) (Kind, bool) {
	digits := classDigits(class)
	if c >= 'a' && c <= 'd' {
		c -= 'a' - 'A'
	}
	i := strings.IndexByte(digits, c)
	if i < 0 {
		return Kind{}, false
	}
	return Kind{Class: class, Index: i}, true
}

// Char returns the digit character for digit tones.
func (k Kind) Char() byte {
	digits := classDigits(k.Class)
	if k.Index < 0 || k.Index >= len(digits) {
		return 0
	}
	return digits[k.Index]
}

func (k Kind) String() string {
	if k.Class == Regular {
		return fmt.Sprintf("regular:%d", k.Index)
	}
	return fmt.Sprintf("%s:%c", k.Class, k.Char())
}

// ID returns the numeric tone id.
func (k Kind) ID() int {
	switch k.Class {
	case DTMF:
		return DTMFBase + k.Index
	case MFR1:
		return MFR1Base + k.Index
	case MFR2Fwd:
		return MFR2FwdBase + k.Index
	case MFR2Rev:
		return MFR2RevBase + k.Index
	}
	return k.Index
}

// DecodeID classifies a numeric tone id.
func DecodeID(id int) (Kind, error) {
	switch {
	case id < 0:
	case id < MaxRegularTones:
		return RegularTone(id), nil
	case id < MFR1Base:
		return Kind{Class: DTMF, Index: id - DTMFBase}, nil
	case id < MFR2FwdBase:
		return Kind{Class: MFR1, Index: id - MFR1Base}, nil
	case id < MFR2RevBase:
		return Kind{Class: MFR2Fwd, Index: id - MFR2FwdBase}, nil
	case id < MaxToneID:
		return Kind{Class: MFR2Rev, Index: id - MFR2RevBase}, nil
	}
	return Kind{}, errors.ErrInvalidArgf("tone id %d", id)
}

// ParseKind parses names like "busy", "dtmf:5" or "mfr2rev:#".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if id, ok := regularNames[s]; ok {
		return RegularTone(id), nil
	}
	name, digit, ok := strings.Cut(s, ":")
	if !ok || len(digit) != 1 {
		return Kind{}, errors.ErrInvalidArgf("tone %q", s)
	}
	for c := DTMF; c <= MFR2Rev; c++ {
		if c.String() != name {
			continue
		}
		if k, ok := Digit(c, digit[0]); ok {
			return k, nil
		}
	}
	return Kind{}, errors.ErrInvalidArgf("tone %q", s)
}

// DigitMode is the signalling used for digits of a dial string.
type DigitMode int

const (
	ModeDTMF DigitMode = iota
	ModeMFR1
	ModePulse
	ModeMFR2Fwd
	ModeMFR2Rev
)

func (m DigitMode) String() string {
	switch m {
	case ModeDTMF:
		return "dtmf"
	case ModeMFR1:
		return "mfr1"
	case ModePulse:
		return "pulse"
	case ModeMFR2Fwd:
		return "mfr2fwd"
	case ModeMFR2Rev:
		return "mfr2rev"
	}
	return fmt.Sprintf("DigitMode(%d)", int(m))
}

// DigitToTone resolves a dial string digit for the mode. Pulse mode has no tones.
func DigitToTone(mode DigitMode, c byte) (Kind, bool) {
	switch mode {
	case ModeDTMF:
		return Digit(DTMF, c)
	case ModeMFR1:
		return Digit(MFR1, c)
	case ModeMFR2Fwd:
		return Digit(MFR2Fwd, c)
	case ModeMFR2Rev:
		return Digit(MFR2Rev, c)
	}
	return Kind{}, false
}
