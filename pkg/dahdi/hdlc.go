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
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
)

// overrun drops the rest of a hardware frame that outgrew its block.
func (ch *Channel) overrun() {
	if ch.rxDrop {
		return
	}
	ch.rxDrop = true
	ch.queue(event.Overrun)
}

// HDLCPutBuf appends bytes of a frame received by HDLC hardware.
func (ch *Channel) HDLCPutBuf(p []byte) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rxDrop {
		return
	}
	if ch.rx.Full() || ch.rx.Fill(p) < len(p) {
		ch.rx.Discard()
		ch.overrun()
	}
}

// HDLCFinish ends a frame received by HDLC hardware. The hardware checks the FCS.
func (ch *Channel) HDLCFinish() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rxDrop {
		ch.rxDrop = false
		ch.rx.Discard()
		return
	}
	ch.finishFrame(false)
}

// HDLCAbort drops the frame in progress and reports ev, usually event.Abort or event.BadFCS.
func (ch *Channel) HDLCAbort(ev event.Event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.rx.Discard()
	ch.rxDrop = false
	ch.queue(ev)
}

// HDLCGetBuf copies the next part of the frame queued for transmit into p.
// end reports that the frame is complete.
func (ch *Channel) HDLCGetBuf(p []byte) (n int, end bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	n, end = ch.tx.Drain(p)
	if end {
		ch.wake.wake()
	}
	return n, end
}
