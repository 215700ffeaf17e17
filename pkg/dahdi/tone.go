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

package dahdi

import (
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

// DialOp selects how Dial treats an existing dial string.
type DialOp int

const (
	DialReplace DialOp = iota
	DialAppend
	DialCancel
)

// SetToneZone selects the zone for tones and ring cadence. Zone -1 is the default zone.
func (ch *Channel) SetToneZone(id int) error {
	z, err := ch.reg.Zones.Acquire(id)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.stopDialLocked()
	ch.player.Stop()
	if ch.zone != nil {
		ch.reg.Zones.Release(ch.zone)
	}
	ch.zone = z
	if ch.rbs != nil && len(z.RingCadence) != 0 {
		if err := ch.rbs.SetCadence(z.RingCadence, 0); err != nil {
			ch.log.Warnw("bad zone cadence", err, "zone", z.ID)
		}
	}
	return nil
}

func (ch *Channel) ToneZone() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.zone == nil {
		return -1
	}
	return ch.zone.ID
}

func (ch *Channel) ensureZoneLocked() error {
	if ch.zone != nil {
		return nil
	}
	z, err := ch.reg.Zones.Acquire(-1)
	if err != nil {
		return err
	}
	ch.zone = z
	return nil
}

// PlayTone starts tone k, replacing any tone or dial string in progress.
func (ch *Channel) PlayTone(k tones.Kind) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.ensureZoneLocked(); err != nil {
		return err
	}
	t, err := ch.zone.Resolve(k)
	if err != nil {
		return err
	}
	ch.stopDialLocked()
	ch.player.Start(t)
	return nil
}

// StopTone stops the tone in progress.
func (ch *Channel) StopTone() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.stopDialLocked()
	ch.player.Stop()
}

// Dial queues a dial string. Digits of strings prefixed with 'P' are pulse dialed.
func (ch *Channel) Dial(op DialOp, s string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	switch op {
	case DialCancel:
		ch.stopDialLocked()
		return nil
	case DialReplace, DialAppend:
	default:
		return errors.ErrInvalidArgf("dial op %d", int(op))
	}
	if err := ch.ensureZoneLocked(); err != nil {
		return err
	}
	if op == DialReplace {
		ch.stopDialLocked()
		if err := ch.dialer.Replace(s); err != nil {
			return err
		}
	} else if err := ch.dialer.Append(s); err != nil {
		return err
	}
	if !ch.dialing && ch.dialer.Active() {
		ch.dialing = true
		ch.advanceDialLocked()
	}
	return nil
}

// Dialing reports whether a dial string is in progress.
func (ch *Channel) Dialing() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.dialing
}

func (ch *Channel) stopDialLocked() {
	if ch.dialer.Cancel() || ch.dialing {
		ch.player.Stop()
	}
	ch.dialing = false
}

// advanceDialLocked starts the next step of the dial string.
func (ch *Channel) advanceDialLocked() {
	for ch.dialing {
		step, ok, done := ch.dialer.Next()
		if !ok {
			ch.dialing = false
			ch.player.Stop()
			if done {
				ch.queue(event.DialComplete)
			}
			return
		}
		switch step.Op {
		case tones.StepTone:
			t, err := ch.zone.DialTone(step.Kind)
			if err != nil {
				continue
			}
			ch.player.Start(t)
			return
		case tones.StepPause:
			ch.player.Start(tones.Silence(ch.reg.opts.PauseLen))
			return
		case tones.StepPulse:
			if ch.rbs == nil {
				continue
			}
			if err := ch.rbs.DialPulses(step.Pulses); err != nil {
				ch.log.Debugw("cannot pulse dial", "digit", string(step.Digit), "error", err)
				continue
			}
			ch.player.Stop()
			return
		}
	}
}

// toneChunk fills buf from the tone player. It returns false if no tone was playing.
// A tone that ends within or exactly at the end of the chunk advances the dial string.
func (ch *Channel) toneChunk(buf []int16) bool {
	if !ch.player.Playing() {
		return false
	}
	ch.player.Fill(buf)
	if ch.dialing && !ch.player.Playing() {
		ch.advanceDialLocked()
	}
	return true
}
