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
	"context"
	"encoding/binary"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/hdlc"
)

// Read blocks until a block of received data is ready and copies it into p.
// In HDLC mode each read returns one frame; the part that does not fit is lost.
// In linear mode p receives 16-bit little-endian samples.
func (ch *Channel) Read(ctx context.Context, p []byte) (int, error) {
	var (
		n   int
		err error
	)
	werr := waitFor(ctx, &ch.mu, &ch.wake, func() bool {
		n, err = ch.readLocked(p)
		return !errors.Is(err, errors.ErrNoData)
	})
	if werr != nil {
		return 0, werr
	}
	return n, err
}

// TryRead is Read without blocking. It fails with NoData when nothing is ready.
func (ch *Channel) TryRead(p []byte) (int, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.readLocked(p)
}

func (ch *Channel) readLocked(p []byte) (int, error) {
	if !ch.open {
		return 0, errors.ErrInvalidArgf("channel %s not open", ch.name)
	}
	data := ch.rx.OutBlock()
	if len(data) == 0 {
		return 0, errors.ErrNoData
	}
	if ch.linear {
		k := min(len(data), len(p)/2)
		for i, v := range data[:k] {
			binary.LittleEndian.PutUint16(p[2*i:], uint16(ch.law.Decode(v)))
		}
		ch.rx.Consume(k)
		return 2 * k, nil
	}
	n := copy(p, data)
	if ch.hdlc != HDLCOff {
		ch.rx.Consume(len(data))
	} else {
		ch.rx.Consume(n)
	}
	return n, nil
}

// Write blocks until a transmit block is free and queues p as one block.
// In HDLC mode p is one frame. In linear mode p holds 16-bit little-endian samples.
func (ch *Channel) Write(ctx context.Context, p []byte) (int, error) {
	var (
		n   int
		err error
	)
	werr := waitFor(ctx, &ch.mu, &ch.wake, func() bool {
		n, err = ch.writeLocked(p)
		return !errors.Is(err, errors.ErrWouldBlock)
	})
	if werr != nil {
		return 0, werr
	}
	ch.kickHDLC(err)
	return n, err
}

// TryWrite is Write without blocking. It fails with WouldBlock when all blocks are queued.
func (ch *Channel) TryWrite(p []byte) (int, error) {
	ch.mu.Lock()
	n, err := ch.writeLocked(p)
	ch.mu.Unlock()
	ch.kickHDLC(err)
	return n, err
}

func (ch *Channel) kickHDLC(err error) {
	if err != nil || !ch.hwHDLC {
		return
	}
	if d, ok := ch.driver().(HDLCDriver); ok {
		d.HDLCHardXmit(ch)
	}
}

func (ch *Channel) writeLocked(p []byte) (int, error) {
	if !ch.open {
		return 0, errors.ErrInvalidArgf("channel %s not open", ch.name)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if ch.tx.Full() {
		return 0, errors.ErrWouldBlock
	}
	bs := ch.tx.BlockSize()
	switch {
	case ch.hdlc != HDLCOff:
		frame := p
		if ch.hdlc == HDLCFCS {
			frame = hdlc.AppendFCS(append([]byte(nil), p...))
		}
		if len(frame) > bs {
			return 0, errors.ErrInvalidArgf("frame of %d bytes exceeds block size %d", len(p), bs)
		}
		ch.tx.Fill(frame)
		ch.tx.Commit()
		return len(p), nil
	case ch.linear:
		k := min(len(p)/2, bs)
		buf := make([]byte, k)
		for i := range buf {
			buf[i] = ch.law.Encode(int16(binary.LittleEndian.Uint16(p[2*i:])))
		}
		ch.tx.Fill(buf)
		ch.tx.Commit()
		return 2 * k, nil
	default:
		n := ch.tx.Fill(p[:min(len(p), bs)])
		ch.tx.Commit()
		return n, nil
	}
}

// GetEvent pops the oldest pending event, or event.None.
func (ch *Channel) GetEvent() event.Event {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	e, _ := ch.events.TryPop()
	return e
}

// WaitEvent blocks until an event is pending and pops it.
func (ch *Channel) WaitEvent(ctx context.Context) (event.Event, error) {
	var e event.Event
	err := waitFor(ctx, &ch.mu, &ch.wake, func() bool {
		var ok bool
		e, ok = ch.events.TryPop()
		return ok
	})
	return e, err
}

// WaitTxState blocks until the signaling machine reaches a stable state.
func (ch *Channel) WaitTxState(ctx context.Context) error {
	return waitFor(ctx, &ch.mu, &ch.wake, func() bool {
		return ch.rbs == nil || ch.rbs.State().Stable()
	})
}

// Ready is the multiplexed wait condition of a channel.
type Ready struct {
	Read  bool
	Write bool
	Event bool
}

func (ch *Channel) readyLocked() Ready {
	return Ready{
		Read:  !ch.rx.Out().IsEmpty(),
		Write: !ch.tx.Full(),
		Event: ch.events.Len() != 0,
	}
}

// Poll returns the channel's readiness without blocking.
func (ch *Channel) Poll() Ready {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.readyLocked()
}

// Wait blocks until any of the conditions in want is met and returns the full readiness.
func (ch *Channel) Wait(ctx context.Context, want Ready) (Ready, error) {
	var got Ready
	err := waitFor(ctx, &ch.mu, &ch.wake, func() bool {
		got = ch.readyLocked()
		return want.Read && got.Read || want.Write && got.Write || want.Event && got.Event
	})
	return got, err
}
