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

package rbs

import (
	"fmt"
	"strings"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// Bits is an ABCD signaling nibble.
type Bits uint8

const (
	DBit Bits = 1 << iota
	CBit
	BBit
	ABit

	AllBits = ABit | BBit | CBit | DBit
)

func (b Bits) String() string {
	var sb strings.Builder
	for i, c := range "ABCD" {
		if b&(ABit>>i) != 0 {
			sb.WriteRune(c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// SigType is the line signaling of a channel.
type SigType int

const (
	SigNone SigType = iota
	FXSLS
	FXSGS
	FXSKS
	FXOLS
	FXOGS
	FXOKS
	EM
	EME1
	SF
	CAS
	Clear
)

var sigNames = [...]string{
	SigNone: "none",
	FXSLS:   "fxsls",
	FXSGS:   "fxsgs",
	FXSKS:   "fxsks",
	FXOLS:   "fxols",
	FXOGS:   "fxogs",
	FXOKS:   "fxoks",
	EM:      "em",
	EME1:    "em_e1",
	SF:      "sf",
	CAS:     "cas",
	Clear:   "clear",
}

func (s SigType) String() string {
	if s >= 0 && int(s) < len(sigNames) {
		return sigNames[s]
	}
	return fmt.Sprintf("SigType(%d)", int(s))
}

func ParseSigType(s string) (SigType, error) {
	for i, n := range sigNames {
		if strings.EqualFold(s, n) {
			return SigType(i), nil
		}
	}
	return SigNone, errors.ErrInvalidArgf("signaling type %q", s)
}

// IsFXO reports whether the channel signals toward a phone (it rings the line).
func (s SigType) IsFXO() bool {
	return s == FXOLS || s == FXOGS || s == FXOKS
}

func (s SigType) IsFXS() bool {
	return s == FXSLS || s == FXSGS || s == FXSKS
}

// HookSignaled reports whether hook requests apply to the signaling type.
func (s SigType) HookSignaled() bool {
	switch s {
	case SigNone, CAS, Clear:
		return false
	}
	return true
}

// TxSig is the line condition requested from the span.
type TxSig int

const (
	TxOnhook TxSig = iota
	TxOffhook
	TxStart
	TxKewl
)

func (s TxSig) String() string {
	switch s {
	case TxOnhook:
		return "onhook"
	case TxOffhook:
		return "offhook"
	case TxStart:
		return "start"
	case TxKewl:
		return "kewl"
	}
	return fmt.Sprintf("TxSig(%d)", int(s))
}

// txBits maps a signaling type and line condition to robbed bits.
var txBits = map[SigType][4]Bits{
	EM:    {0, AllBits, AllBits, 0},
	FXSLS: {BBit | DBit, AllBits, AllBits, 0},
	FXSGS: {BBit | DBit, AllBits, ABit | CBit, 0},
	FXSKS: {BBit | DBit, AllBits, AllBits, 0},
	FXOLS: {BBit | DBit, BBit | DBit, 0, 0},
	FXOGS: {BBit | DBit, AllBits, ABit | CBit, 0},
	FXOKS: {BBit | DBit, BBit | DBit, 0, AllBits},
	SF:    {0, AllBits, AllBits, 0},
	EME1:  {DBit, ABit | BBit | DBit, ABit | BBit | DBit, DBit},
}

// TxBits returns the robbed bits for a line condition.
func TxBits(s SigType, tx TxSig) (Bits, error) {
	tbl, ok := txBits[s]
	if !ok || tx < TxOnhook || tx > TxKewl {
		return 0, errors.ErrInvalidArgf("no bits for %v %v", s, tx)
	}
	return tbl[tx], nil
}

// RxSig is the decoded far-end line condition.
type RxSig int

const (
	RxUnknown RxSig = iota - 1
	RxOnhook
	RxOffhook
	RxStart
	RxRing
)

func (s RxSig) String() string {
	switch s {
	case RxUnknown:
		return "unknown"
	case RxOnhook:
		return "onhook"
	case RxOffhook:
		return "offhook"
	case RxStart:
		return "start"
	case RxRing:
		return "ring"
	}
	return fmt.Sprintf("RxSig(%d)", int(s))
}

// DecodeBits turns received robbed bits into a line condition.
func DecodeBits(s SigType, b Bits) (RxSig, error) {
	switch s {
	case FXOLS, FXOGS, FXOKS, EM, EME1, SF:
		if b&ABit != 0 {
			return RxOffhook, nil
		}
		return RxOnhook, nil
	case FXSLS:
		if b&BBit == 0 {
			return RxRing, nil
		}
		return RxOffhook, nil
	case FXSKS, FXSGS:
		if b&BBit == 0 {
			return RxRing, nil
		}
		if b&ABit != 0 {
			return RxOnhook, nil
		}
		return RxOffhook, nil
	}
	return RxUnknown, errors.ErrInvalidArgf("no decoding for %v", s)
}
