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

package event

import "fmt"

// Event is a channel event. Digit events carry the digit in the low byte.
type Event uint32

const (
	None Event = iota
	OnHook
	RingOffHook
	WinkFlash
	Alarm
	NoAlarm
	Abort
	Overrun
	BadFCS
	DialComplete
	RingerOn
	RingerOff
	HookComplete
	BitsChanged
	PulseStart
	TimerExpired
	TimerPing
	Polarity
	RingBegin
	EchoCanDisabled
	Removed
)

const (
	PulseDigit Event = 1 << (16 + iota)
	DTMFDown
	DTMFUp

	digitMask = PulseDigit | DTMFDown | DTMFUp
)

var names = [...]string{
	None:            "none",
	OnHook:          "onhook",
	RingOffHook:     "ring-offhook",
	WinkFlash:       "wink-flash",
	Alarm:           "alarm",
	NoAlarm:         "no-alarm",
	Abort:           "abort",
	Overrun:         "overrun",
	BadFCS:          "bad-fcs",
	DialComplete:    "dial-complete",
	RingerOn:        "ringer-on",
	RingerOff:       "ringer-off",
	HookComplete:    "hook-complete",
	BitsChanged:     "bits-changed",
	PulseStart:      "pulse-start",
	TimerExpired:    "timer-expired",
	TimerPing:       "timer-ping",
	Polarity:        "polarity",
	RingBegin:       "ring-begin",
	EchoCanDisabled: "echocan-disabled",
	Removed:         "removed",
}

// Pulse returns the event for a decoded pulse digit.
func Pulse(c byte) Event {
	return PulseDigit | Event(c)
}

// Digit returns the digit carried by a digit event.
func (e Event) Digit() (byte, bool) {
	if e&digitMask == 0 {
		return 0, false
	}
	return byte(e), true
}

// Kind strips the digit from digit events.
func (e Event) Kind() Event {
	if e&digitMask != 0 {
		return e & digitMask
	}
	return e
}

// KindName names the kind of e without its digit.
func (e Event) KindName() string {
	switch e.Kind() {
	case PulseDigit:
		return "pulse-digit"
	case DTMFDown:
		return "dtmf-down"
	case DTMFUp:
		return "dtmf-up"
	}
	return e.String()
}

func (e Event) String() string {
	switch e.Kind() {
	case PulseDigit:
		return fmt.Sprintf("pulse-digit(%c)", byte(e))
	case DTMFDown:
		return fmt.Sprintf("dtmf-down(%c)", byte(e))
	case DTMFUp:
		return fmt.Sprintf("dtmf-up(%c)", byte(e))
	}
	if int(e) < len(names) {
		return names[e]
	}
	return fmt.Sprintf("Event(%d)", uint32(e))
}

// Sink receives channel events.
type Sink interface {
	QueueEvent(e Event)
}
