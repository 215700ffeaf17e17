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

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/hdlc"
)

// Tick runs one full pipeline pass: every non-master span is received, then the master,
// which runs the conference and pseudo channel steps, then every span is transmitted
// and finally user timers advance. Without any span only the master steps run.
func (r *Registry) Tick() {
	start := time.Now()
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.spans {
		if s != nil && s.running && s != r.master {
			r.receiveLocked(s)
		}
	}
	if r.master != nil {
		r.receiveLocked(r.master)
	}
	r.masterTickLocked()
	for _, s := range r.spans {
		if s != nil && s.running {
			r.transmitLocked(s)
		}
	}
	r.tickTimers()
	r.obs.TickDone(time.Since(start))
}

// Receive processes the read chunks of every channel of s. Drivers call it once per
// tick after filling ReadChunk; the master span also drives the conference steps.
func (r *Registry) Receive(s *Span) {
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s.reg != r {
		return
	}
	r.receiveLocked(s)
	if s == r.master {
		r.masterTickLocked()
	}
}

// Transmit fills WriteChunk of every channel of s and advances signaling timers.
// Transmitting the master span also advances user timers.
func (r *Registry) Transmit(s *Span) {
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s.reg != r {
		return
	}
	r.transmitLocked(s)
	if s == r.master {
		r.tickTimers()
	}
}

func (r *Registry) receiveLocked(s *Span) {
	for _, ch := range s.chans {
		if ch.master != nil {
			continue
		}
		r.receiveChan(ch)
	}
	r.obs.SpanReceived(s.Name)
}

// The per-channel steps hold ch.mu with defer so a failing step never leaves it locked.

func (r *Registry) receiveChan(ch *Channel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.receive(r.conf)
}

func (r *Registry) pseudoReceiveChan(ch *Channel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.member.PseudoReceive(r.conf, &ch.loop)
}

func (r *Registry) pseudoTransmitChan(ch *Channel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.pseudoTransmit(r.conf)
}

func (r *Registry) transmitChan(ch *Channel) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.transmit(r.conf)
	ch.tickSignaling()
	for _, sl := range ch.slaves {
		sl.tickSignaling()
	}
}

func (r *Registry) masterTickLocked() {
	r.conf.Rotate()
	for _, ch := range r.pseudo {
		r.pseudoReceiveChan(ch)
	}
	r.conf.ApplyLinks()
	for _, ch := range r.pseudo {
		r.pseudoTransmitChan(ch)
	}
	r.ticks++
}

func (r *Registry) tickTimers() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	for t := range r.timers {
		t.tick(ChunkSize)
	}
}

func (r *Registry) transmitLocked(s *Span) {
	for _, ch := range s.chans {
		if ch.master != nil {
			continue
		}
		r.transmitChan(ch)
	}
}

// receive runs the receive half of the pipeline for a span channel.
func (ch *Channel) receive(e *conf.Engine) {
	if len(ch.slaves) != 0 {
		ch.receiveBonded()
		return
	}
	rx := ch.readChunk
	if !ch.audio {
		ch.lastRawRx = rx
		ch.lastRx = conf.Chunk{}
		ch.pushRx(rx[:])
		return
	}
	if !ch.ecDone {
		ch.cancelEcho(rx[:], ch.lastTx[:])
	}
	ch.ecDone = false
	ch.lastRawRx = rx
	ch.rxGain.Apply(rx[:])
	ch.law.DecodeTo(ch.lastRx[:], rx[:])

	m := &ch.member
	switch {
	case m.UsesConference():
		read := m.RealReceive(e, &ch.lastRx)
		if read != ch.lastRx {
			ch.law.EncodeTo(rx[:], read[:])
		}
	case m.Mode == conf.DigitalMon:
		if src := ch.monitored(); src != nil {
			rx = src.lastRawTx
		}
	}
	ch.pushRx(rx[:])
}

// transmit runs the transmit half of the pipeline for a span channel.
func (ch *Channel) transmit(e *conf.Engine) {
	if len(ch.slaves) != 0 {
		ch.transmitBonded()
		return
	}
	var out [ChunkSize]byte
	if peer := ch.dacs; peer != nil {
		if !ch.dacsHW {
			out = peer.lastRawRx
			ch.emit(out)
		}
		return
	}
	ch.pullTx(out[:])
	if !ch.audio {
		ch.emit(out)
		return
	}

	var tx conf.Chunk
	ch.law.DecodeTo(tx[:], out[:])
	m := &ch.member
	switch {
	case m.IsMonitor() && m.Mode != conf.DigitalMon:
		if src := ch.monitored(); src != nil {
			tx = src.monitorAudio(m.Mode)
			ch.law.EncodeTo(out[:], tx[:])
		}
	case m.Mode == conf.DigitalMon:
		if src := ch.monitored(); src != nil {
			out = src.lastRawRx
		}
	case m.UsesConference():
		orig := tx
		m.RealTransmit(e, &tx)
		if tx != orig {
			ch.law.EncodeTo(out[:], tx[:])
		}
	}
	ch.txGain.Apply(out[:])
	ch.emit(out)
}

// emit records out as this tick's transmitted chunk and hands it to the driver.
func (ch *Channel) emit(out [ChunkSize]byte) {
	ch.lastRawTx = out
	if ch.audio {
		ch.law.DecodeTo(ch.lastTx[:], out[:])
	} else {
		ch.lastTx = conf.Chunk{}
	}
	ch.writeChunk = out
}

// pseudoTransmit runs after links: the user's write data becomes the conference input
// of the next tick, and the pseudo channel reads its conference mix.
func (ch *Channel) pseudoTransmit(e *conf.Engine) {
	var out [ChunkSize]byte
	ch.pullTx(out[:])
	if !ch.audio {
		ch.lastRawTx = out
		ch.lastRawRx = out
		if ch.loopback || ch.member.Mode == conf.Normal {
			ch.pushRx(out[:])
		}
		return
	}
	ch.txGain.Apply(out[:])
	ch.lastRawTx = out
	ch.law.DecodeTo(ch.lastTx[:], out[:])
	ch.loop = ch.lastTx

	read := out
	m := &ch.member
	switch {
	case m.Mode == conf.DigitalMon:
		if src := ch.monitored(); src != nil {
			read = src.lastRawRx
		}
	case m.IsMonitor():
		if src := ch.monitored(); src != nil {
			lin := src.monitorAudio(m.Mode)
			ch.law.EncodeTo(read[:], lin[:])
		}
	case m.UsesConference():
		lin := m.PseudoTransmit(e, &ch.loop)
		ch.law.EncodeTo(read[:], lin[:])
	}
	ch.lastRawRx = read
	ch.rxGain.Apply(read[:])
	ch.law.DecodeTo(ch.lastRx[:], read[:])
	ch.lastRxPreEcho = ch.lastRx
	ch.pushRx(read[:])
}

// monitored returns the channel selected by a monitor mode. The tick lock must be held.
func (ch *Channel) monitored() *Channel {
	r := ch.reg
	n := ch.member.Num
	if r == nil || n < 1 || n > len(r.chans) {
		return nil
	}
	return r.chans[n-1]
}

// monitorAudio returns the audio a monitor in mode m hears from ch.
func (ch *Channel) monitorAudio(m conf.Mode) conf.Chunk {
	var out conf.Chunk
	switch m {
	case conf.MonitorRx:
		out = ch.lastRx
	case conf.MonitorRxPreEcho:
		out = ch.lastRxPreEcho
	case conf.MonitorTx, conf.MonitorTxPreEcho:
		out = ch.lastTx
	case conf.MonitorBoth, conf.MonitorBothPreEcho:
		rx := &ch.lastRx
		if m == conf.MonitorBothPreEcho {
			rx = &ch.lastRxPreEcho
		}
		for i := range out {
			out[i] = conf.Clip(int32(rx[i]) + int32(ch.lastTx[i]))
		}
	}
	return out
}

// receiveBonded interleaves the read chunks of the master and its slaves.
func (ch *Channel) receiveBonded() {
	buf := ch.bondRx[:0]
	for i := 0; i < ChunkSize; i++ {
		buf = append(buf, ch.readChunk[i])
		for _, s := range ch.slaves {
			buf = append(buf, s.readChunk[i])
		}
	}
	ch.lastRawRx = ch.readChunk
	ch.pushRx(buf)
}

// transmitBonded spreads transmit data of the master over itself and its slaves.
func (ch *Channel) transmitBonded() {
	n := 1 + len(ch.slaves)
	buf := ch.bondTx
	ch.pullTx(buf)
	for i := 0; i < ChunkSize; i++ {
		ch.writeChunk[i] = buf[i*n]
		for j, s := range ch.slaves {
			s.writeChunk[i] = buf[i*n+j+1]
		}
	}
	ch.lastRawTx = ch.writeChunk
}

// pushRx hands received bytes to the reader ring, deframing them first in HDLC mode.
func (ch *Channel) pushRx(p []byte) {
	if ch.rx == nil {
		return
	}
	if ch.hdlc != HDLCOff {
		if ch.hwHDLC {
			return
		}
		for _, v := range p {
			ch.dec.Feed(v, ch.onSymbol)
		}
		return
	}
	// Audio arriving while every block waits for the reader is dropped silently.
	for len(p) > 0 && !ch.rx.Full() {
		n := ch.rx.Fill(p)
		p = p[n:]
		if ch.rx.Room() == 0 {
			ch.rx.Commit()
			ch.wake.wake()
		}
	}
}

func (ch *Channel) onSymbol(sym hdlc.Symbol, v byte) {
	switch sym {
	case hdlc.Data:
		// a frame longer than a block is dropped; the decoder hunts for the next flag
		if !ch.rx.Put(v) {
			ch.rx.Discard()
			ch.queue(event.Overrun)
			ch.dec.Reset()
		}
	case hdlc.Frame:
		ch.finishFrame(ch.hdlc == HDLCFCS)
	case hdlc.Abort:
		if len(ch.rx.InBlock()) != 0 {
			ch.rx.Discard()
			ch.queue(event.Abort)
		}
	}
}

// finishFrame commits the frame in the producer block, checking and stripping
// the FCS if asked. Frames with a bad FCS are dropped.
func (ch *Channel) finishFrame(checkFCS bool) {
	frame := ch.rx.InBlock()
	if len(frame) == 0 {
		return
	}
	if checkFCS {
		if len(frame) < hdlc.FCSLen || !hdlc.CheckFCS(frame) {
			ch.rx.Discard()
			ch.queue(event.BadFCS)
			return
		}
		ch.rx.Truncate(len(frame) - hdlc.FCSLen)
		if len(ch.rx.InBlock()) == 0 {
			return
		}
	}
	ch.rx.Commit()
	ch.wake.wake()
}

// pullTx fills out with the next bytes to transmit: user data, then a tone, then
// looped-back receive data, then idle.
func (ch *Channel) pullTx(out []byte) {
	if ch.tx == nil {
		clear(out)
		return
	}
	if ch.hdlc != HDLCOff {
		ch.pullHDLC(out)
		return
	}
	n := 0
	for n < len(out) {
		k, done := ch.tx.Drain(out[n:])
		if k == 0 {
			break
		}
		n += k
		if done {
			ch.wake.wake()
		}
	}
	if n == len(out) {
		return
	}
	rest := out[n:]
	if n == 0 && ch.audio && len(rest) == ChunkSize && ch.player.Playing() {
		var lin [ChunkSize]int16
		if ch.toneChunk(lin[:]) {
			ch.law.EncodeTo(rest, lin[:])
			return
		}
	}
	if n == 0 && ch.loopback && len(out) == ChunkSize {
		copy(out, ch.lastRawRx[:])
		return
	}
	idle := byte(0xFF)
	if ch.audio {
		idle = ch.law.Silence()
	}
	for i := range rest {
		rest[i] = idle
	}
}

// pullHDLC runs the software HDLC encoder, idling with flags between frames.
func (ch *Channel) pullHDLC(out []byte) {
	if ch.hwHDLC {
		for i := range out {
			out[i] = hdlc.Flag
		}
		return
	}
	for i := range out {
		for ch.enc.Pending() < 8 {
			data := ch.tx.OutBlock()
			if len(data) == 0 {
				ch.enc.PutFlag()
				break
			}
			ch.enc.PutByte(data[0])
			if ch.tx.Consume(1) {
				ch.enc.PutFlag()
				ch.wake.wake()
			}
		}
		out[i], _ = ch.enc.GetByte()
	}
}
