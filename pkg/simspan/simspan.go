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

// Package simspan provides a software span driver and a tick clock for running the
// engine without telephony hardware.
package simspan

import (
	"sync"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

var (
	_ dahdi.BitsDriver = (*Driver)(nil)
	_ dahdi.HookDriver = (*Driver)(nil)
	_ dahdi.Opener     = (*Driver)(nil)
)

// Driver is a span driver without hardware. With Loopback set, every channel
// receives what it transmitted on the previous tick, signaling included.
type Driver struct {
	Loopback bool

	log logger.Logger

	mu    sync.Mutex
	span  *dahdi.Span
	bits  map[int]rbs.Bits
	hook  map[int]rbs.TxSig
	opens int
}

func NewDriver(log logger.Logger, loopback bool) *Driver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Driver{
		Loopback: loopback,
		log:      log,
		bits:     make(map[int]rbs.Bits),
		hook:     make(map[int]rbs.TxSig),
	}
}

func (d *Driver) Startup(s *dahdi.Span) error {
	d.mu.Lock()
	d.span = s
	d.mu.Unlock()
	d.log.Infow("span started", "span", s.Name, "channels", len(s.Channels()))
	return nil
}

func (d *Driver) Shutdown(s *dahdi.Span) error {
	d.mu.Lock()
	d.span = nil
	d.mu.Unlock()
	d.log.Infow("span stopped", "span", s.Name)
	return nil
}

func (d *Driver) SetRBSBits(ch *dahdi.Channel, b rbs.Bits) error {
	d.mu.Lock()
	d.bits[ch.Pos()] = b
	d.mu.Unlock()
	d.log.Debugw("rbs bits", "channel", ch.Name(), "bits", b)
	return nil
}

func (d *Driver) SetHookState(ch *dahdi.Channel, s rbs.TxSig) error {
	d.mu.Lock()
	d.hook[ch.Pos()] = s
	d.mu.Unlock()
	d.log.Debugw("hook state", "channel", ch.Name(), "state", s)
	return nil
}

func (d *Driver) Open(ch *dahdi.Channel) error {
	d.mu.Lock()
	d.opens++
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close(ch *dahdi.Channel) {
	d.mu.Lock()
	d.opens--
	d.mu.Unlock()
}

// Bits returns the last robbed bits sent on channel position pos.
func (d *Driver) Bits(pos int) (rbs.Bits, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bits[pos]
	return b, ok
}

// HookState returns the last hook state signaled on channel position pos.
func (d *Driver) HookState(pos int) (rbs.TxSig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.hook[pos]
	return s, ok
}

// OpenChannels returns the number of channels currently open on the span.
func (d *Driver) OpenChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// prepare fills the read side of every channel ahead of a tick.
func (d *Driver) prepare() {
	d.mu.Lock()
	s, loop := d.span, d.Loopback
	d.mu.Unlock()
	if s == nil || !loop {
		return
	}
	for _, ch := range s.Channels() {
		copy(ch.ReadChunk(), ch.WriteChunk())
		d.mu.Lock()
		b, hasBits := d.bits[ch.Pos()]
		d.mu.Unlock()
		if hasBits {
			if err := ch.RxBits(b); err != nil {
				d.log.Debugw("cannot loop bits", "channel", ch.Name(), "error", err)
			}
		}
	}
}
