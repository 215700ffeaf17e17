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
	"fmt"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// Mode is the mixing policy of a channel.
type Mode int

const (
	Normal Mode = iota
	MonitorRx
	MonitorTx
	MonitorBoth
	MonitorRxPreEcho
	MonitorTxPreEcho
	MonitorBothPreEcho
	Conf
	ConfAnn
	ConfMon
	ConfAnnMon
	RealAndPseudo
	DigitalMon
)

var modeNames = [...]string{
	Normal:             "normal",
	MonitorRx:          "monitor-rx",
	MonitorTx:          "monitor-tx",
	MonitorBoth:        "monitor-both",
	MonitorRxPreEcho:   "monitor-rx-preecho",
	MonitorTxPreEcho:   "monitor-tx-preecho",
	MonitorBothPreEcho: "monitor-both-preecho",
	Conf:               "conf",
	ConfAnn:            "conf-ann",
	ConfMon:            "conf-mon",
	ConfAnnMon:         "conf-ann-mon",
	RealAndPseudo:      "real-and-pseudo",
	DigitalMon:         "digital-mon",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Flags select the direction of conference participation.
type Flags int

const (
	Talker Flags = 1 << iota
	Listener
	PseudoTalker
	PseudoListener
)

// Setting is the conference configuration of a channel. Num is a conference number for
// conference modes and a channel number for monitor modes.
type Setting struct {
	Mode  Mode
	Flags Flags
	Num   int
}

// DefaultFlags returns the flags implied by a mode when none are given.
func DefaultFlags(m Mode) Flags {
	switch m {
	case Conf, ConfAnnMon:
		return Talker | Listener
	case ConfAnn:
		return Talker
	case ConfMon:
		return Listener
	case RealAndPseudo:
		return Talker | Listener | PseudoTalker | PseudoListener
	}
	return 0
}

// UsesConference reports whether Num names a conference.
func (s Setting) UsesConference() bool {
	switch s.Mode {
	case Conf, ConfAnn, ConfMon, ConfAnnMon, RealAndPseudo:
		return true
	}
	return false
}

// IsMonitor reports whether Num names a monitored channel.
func (s Setting) IsMonitor() bool {
	switch s.Mode {
	case MonitorRx, MonitorTx, MonitorBoth, MonitorRxPreEcho, MonitorTxPreEcho, MonitorBothPreEcho, DigitalMon:
		return true
	}
	return false
}

func (s Setting) Has(f Flags) bool {
	return s.Flags&f != 0
}

// Normalize fills default flags and validates ranges.
func (s Setting) Normalize(maxChan int) (Setting, error) {
	if s.Mode < Normal || s.Mode > DigitalMon {
		return s, errors.ErrInvalidArgf("conference mode %d", int(s.Mode))
	}
	if s.Flags == 0 {
		s.Flags = DefaultFlags(s.Mode)
	}
	switch {
	case s.Mode == Normal:
		s.Num, s.Flags = 0, 0
	case s.UsesConference():
		if s.Num < 1 || s.Num > MaxConf {
			return s, errors.ErrInvalidArgf("conference %d", s.Num)
		}
	case s.IsMonitor():
		if s.Num < 1 || s.Num > maxChan {
			return s, errors.ErrInvalidArgf("monitored channel %d", s.Num)
		}
	}
	return s, nil
}
