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

import "time"

const (
	ChunkSize  = 8
	SampleRate = 8000
)

// Timing holds the signaling hold times.
type Timing struct {
	PreWink      time.Duration
	Wink         time.Duration
	PreFlash     time.Duration
	Flash        time.Duration
	Start        time.Duration
	Debounce     time.Duration
	AfterStart   time.Duration
	Kewl         time.Duration
	AfterKewl    time.Duration
	PulseBreak   time.Duration
	PulseMake    time.Duration
	PulseAfter   time.Duration
	RxWink       time.Duration
	RxFlash      time.Duration
	RingDebounce time.Duration

	// Receive pulse windows. A break shorter than MinPulse is a glitch, one longer
	// than MaxPulse is a flash.
	MinPulse time.Duration
	MaxPulse time.Duration
}

// DefaultTiming returns the standard hold times. shortFlash narrows the pulse window
// for lines that use a short hook flash.
func DefaultTiming(shortFlash bool) Timing {
	t := Timing{
		PreWink:      50 * time.Millisecond,
		Wink:         150 * time.Millisecond,
		PreFlash:     50 * time.Millisecond,
		Flash:        750 * time.Millisecond,
		Start:        1500 * time.Millisecond,
		Debounce:     600 * time.Millisecond,
		AfterStart:   500 * time.Millisecond,
		Kewl:         500 * time.Millisecond,
		AfterKewl:    300 * time.Millisecond,
		PulseBreak:   50 * time.Millisecond,
		PulseMake:    50 * time.Millisecond,
		PulseAfter:   750 * time.Millisecond,
		RxWink:       250 * time.Millisecond,
		RxFlash:      1250 * time.Millisecond,
		RingDebounce: 2000 * time.Millisecond,
		MinPulse:     15 * time.Millisecond,
		MaxPulse:     200 * time.Millisecond,
	}
	if shortFlash {
		t.MaxPulse = 80 * time.Millisecond
	}
	return t
}

// PulseTimeout is the inter-digit gap that ends a pulse digit.
func (t Timing) PulseTimeout() time.Duration {
	return t.MaxPulse + 50*time.Millisecond
}

// DefaultCadence is used when neither the channel nor its zone has one.
var DefaultCadence = []time.Duration{2 * time.Second, 4 * time.Second}

// samples converts a duration to a sample count.
func samples(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
