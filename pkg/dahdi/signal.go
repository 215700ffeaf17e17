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
	"time"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

// SetSig changes the signaling of a span channel and rebuilds its signaling machine.
func (ch *Channel) SetSig(sig rbs.SigType) error {
	if ch.span == nil {
		return errors.ErrInvalidArgf("pseudo channel %s has no signaling", ch.name)
	}
	if c, ok := ch.driver().(ChanConfigurer); ok {
		if err := c.ChanConfig(ch, sig); err != nil {
			return err
		}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.setSigLocked(sig)
	if sig == rbs.Clear {
		ch.disableEchoLocked()
		ch.audio = false
	} else if ch.hdlc == HDLCOff {
		ch.audio = true
	}
	return nil
}

func (ch *Channel) setSigLocked(sig rbs.SigType) {
	ch.sig = sig
	if ch.span == nil || sig == rbs.SigNone || sig == rbs.Clear {
		ch.rbs = nil
		return
	}
	p := rbs.Params{
		Sig:     sig,
		Events:  (*lockedEvents)(ch),
		OnState: ch.onTxState,
		Logger:  ch.log,
	}
	if ch.reg != nil {
		p.Timing = ch.reg.opts.Timing
	}
	if d, ok := ch.driver().(BitsDriver); ok && ch.span.rbs {
		p.Bits = chanBits{ch: ch, drv: d}
	} else if d, ok := ch.driver().(HookDriver); ok {
		p.Hook = chanHook{ch: ch, drv: d}
	}
	ch.rbs = rbs.NewMachine(p)
}

// onTxState runs under the channel lock whenever the signaling state changes.
func (ch *Channel) onTxState(s rbs.TxState) {
	if ch.dialing && s == rbs.Offhook {
		ch.advanceDialLocked()
	}
	ch.wake.wake()
}

func (ch *Channel) Sig() rbs.SigType {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.sig
}

// SetHook asks for a hook state change. Pseudo channels accept and ignore it.
func (ch *Channel) SetHook(h rbs.Hook) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.span == nil {
		return nil
	}
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no hook signaling", ch.name)
	}
	ch.stopDialLocked()
	return ch.rbs.SetHook(h)
}

// SetCadence overrides the ring cadence. Nil restores the zone or default cadence.
func (ch *Channel) SetCadence(c []time.Duration) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no hook signaling", ch.name)
	}
	if c == nil && ch.zone != nil {
		c = ch.zone.RingCadence
	}
	return ch.rbs.SetCadence(c, 0)
}

// SetTxBits sends raw signaling bits on a CAS channel.
func (ch *Channel) SetTxBits(b rbs.Bits) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no signaling", ch.name)
	}
	return ch.rbs.SetTxBits(b)
}

// TxState returns the current transmit signaling state.
func (ch *Channel) TxState() rbs.TxState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return rbs.Onhook
	}
	return ch.rbs.State()
}

// RxBits is called by drivers when new robbed bits arrive.
func (ch *Channel) RxBits(b rbs.Bits) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no signaling", ch.name)
	}
	return ch.rbs.RxBitsChanged(b)
}

// RxHook is called by drivers that decode the far-end hook state themselves.
func (ch *Channel) RxHook(s rbs.RxSig) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no signaling", ch.name)
	}
	ch.rbs.RxHook(s)
	return nil
}

// tickSignaling advances the signaling timers by one chunk.
func (ch *Channel) tickSignaling() {
	if ch.rbs != nil {
		ch.rbs.Tick(ChunkSize)
	}
}
