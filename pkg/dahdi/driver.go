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
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/echocan"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

// Driver is the hardware side of a span. The optional interfaces below add
// capabilities; the registry checks for them with type assertions.
type Driver interface {
	Startup(s *Span) error
	Shutdown(s *Span) error
}

// ChanConfigurer is told when a channel's signaling changes.
type ChanConfigurer interface {
	ChanConfig(ch *Channel, sig rbs.SigType) error
}

// BitsDriver carries robbed-bit signaling.
type BitsDriver interface {
	SetRBSBits(ch *Channel, b rbs.Bits) error
}

// HookDriver signals hook state directly, for spans without robbed bits.
type HookDriver interface {
	SetHookState(ch *Channel, s rbs.TxSig) error
}

// DACSDriver cross-connects two channels in hardware. b is nil to disconnect.
type DACSDriver interface {
	DACS(a, b *Channel) error
}

// EchoDriver cancels echo in hardware. Returning errors.ErrNotSupported selects
// a software canceller. Params with zero taps turn it off.
type EchoDriver interface {
	EchoCan(ch *Channel, p echocan.Params) error
}

// HDLCDriver frames HDLC in hardware. HDLCHardXmit is called when a frame is
// queued on an idle channel.
type HDLCDriver interface {
	HDLCHardXmit(ch *Channel)
}

// Opener is told when user space opens and closes a channel.
type Opener interface {
	Open(ch *Channel) error
	Close(ch *Channel)
}

// chanBits adapts a span driver to the channel's signaling machine.
type chanBits struct {
	ch  *Channel
	drv BitsDriver
}

func (c chanBits) SetRBSBits(b rbs.Bits) error {
	return c.drv.SetRBSBits(c.ch, b)
}

type chanHook struct {
	ch  *Channel
	drv HookDriver
}

func (c chanHook) SetHookState(s rbs.TxSig) error {
	return c.drv.SetHookState(c.ch, s)
}
