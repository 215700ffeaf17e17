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

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/echocan"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

// disableToneHold is how long the answer tone must last before cancellation is dropped.
const disableToneHold = 400 * time.Millisecond

// SetEchoCan enables the echo canceller name with p. Zero taps disable it.
// The span driver is asked first; a driver without support falls back to software.
func (ch *Channel) SetEchoCan(name string, p echocan.Params) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if p.Taps == 0 {
		ch.disableEchoLocked()
		return nil
	}
	if !ch.audio {
		return errors.ErrInvalidArgf("echo canceller on data channel %s", ch.name)
	}
	ch.disableEchoLocked()
	if d, ok := ch.driver().(EchoDriver); ok {
		err := d.EchoCan(ch, p)
		if err == nil {
			ch.ecHW = true
			ch.ecName = "hardware"
			ch.ecParams = p
			return nil
		}
		if !errors.Is(err, errors.ErrNotSupported) {
			return err
		}
	}
	a, err := ch.reg.Echo.Attach(name, p)
	if err != nil {
		return err
	}
	ch.ec = a
	ch.ecName = a.Name()
	ch.ecParams = p
	ch.ecDetect = tones.NewDetector(tones.DisableToneFreq, disableToneHold)
	ch.log.Debugw("echo canceller enabled", "name", ch.ecName, "taps", p.Taps)
	return nil
}

// EchoCan returns the active canceller name, empty if none.
func (ch *Channel) EchoCan() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.ecName
}

// TrainEchoCan sets one tap of the software canceller.
func (ch *Channel) TrainEchoCan(pos int, val int16) (bool, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.ec == nil {
		return false, errors.ErrInvalidArgf("no software echo canceller on %s", ch.name)
	}
	if pos < 0 || pos >= ch.ecParams.Taps {
		return false, errors.ErrInvalidArgf("tap %d", pos)
	}
	return ch.ec.TrainTap(pos, val), nil
}

// cancelEcho records rx as the pre-echo signal and runs the software canceller over
// it in place. tx is the reference signal that was transmitted at the same time.
func (ch *Channel) cancelEcho(rx []byte, tx []int16) {
	var lin [ChunkSize]int16
	ch.law.DecodeTo(lin[:], rx)
	copy(ch.lastRxPreEcho[:], lin[:])
	if ch.ec == nil {
		return
	}
	if ch.ecDetect != nil && ch.ecDetect.Process(lin[:]) {
		ch.log.Infow("answer tone detected, disabling echo canceller")
		ch.disableEchoLocked()
		ch.queue(event.EchoCanDisabled)
		return
	}
	ch.ec.Update(tx, lin[:])
	ch.law.EncodeTo(rx, lin[:])
}

// ECChunk runs echo cancellation for a driver that calls it ahead of Receive,
// with the chunk it is transmitting now as reference. Receive then skips it.
func (ch *Channel) ECChunk(rx, tx []byte) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.ec == nil {
		return
	}
	var ref [ChunkSize]int16
	ch.law.DecodeTo(ref[:], tx[:ChunkSize])
	ch.cancelEcho(rx[:ChunkSize], ref[:])
	ch.ecDone = true
}

// ECSpan runs ECChunk over every channel of s with the channels' own chunk buffers.
func ECSpan(s *Span) {
	for _, ch := range s.chans {
		ch.ECChunk(ch.readChunk[:], ch.writeChunk[:])
	}
}
