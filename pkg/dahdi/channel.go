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
	"fmt"
	"sync"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/echocan"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/hdlc"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/internal/ringbuf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/law"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

const ChunkSize = conf.ChunkSize

// HDLCMode selects framing of the channel's data.
type HDLCMode int

const (
	HDLCOff HDLCMode = iota
	// HDLCRaw frames without checking or adding a frame check sequence.
	HDLCRaw
	// HDLCFCS appends the FCS on transmit and checks it on receive.
	HDLCFCS
)

type Channel struct {
	mu  sync.Mutex
	log logger.Logger

	reg  *Registry
	span *Span
	num  int
	pos  int
	name string

	open     bool
	audio    bool
	linear   bool
	loopback bool
	hdlc     HDLCMode
	hwHDLC   bool

	defLaw law.Law
	law    law.Law
	rxGain *law.GainTable
	txGain *law.GainTable

	// raw chunks exchanged with the driver
	readChunk  [ChunkSize]byte
	writeChunk [ChunkSize]byte

	rx, tx  *ringbuf.Ring[byte]
	enc     hdlc.Encoder
	dec     *hdlc.Decoder
	rxDrop  bool // dropping the rest of an overrun hardware frame

	zone    *tones.Zone
	player  tones.Player
	dialer  tones.Dialer
	dialing bool

	ec       *echocan.Attachment
	ecHW     bool
	ecName   string
	ecParams echocan.Params
	ecDetect *tones.Detector
	ecDone   bool

	sig rbs.SigType
	rbs *rbs.Machine

	member conf.Member

	events *ringbuf.Buffer[event.Event]
	alarms Alarm

	master *Channel
	slaves []*Channel

	// interleave scratch of a bond master, sized by Bond
	bondRx, bondTx []byte

	dacs   *Channel
	dacsHW bool

	wake waker

	// per tick history, written only by the pipeline
	lastRawRx     [ChunkSize]byte
	lastRawTx     [ChunkSize]byte
	lastRx        conf.Chunk
	lastRxPreEcho conf.Chunk
	lastTx        conf.Chunk
	loop          conf.Chunk
}

func newChannel(s *Span, pos int, sig rbs.SigType) *Channel {
	ch := &Channel{
		log:   logger.GetLogger(),
		span:  s,
		pos:   pos,
		sig:   sig,
		audio: sig != rbs.Clear,
		dec:   hdlc.NewDecoder(),
	}
	if s != nil {
		ch.name = fmt.Sprintf("%s/%d", s.Name, pos)
	}
	return ch
}

// attach binds the channel to a registry and allocates its buffers.
func (ch *Channel) attach(r *Registry, num int) error {
	o := r.opts
	rx, err := ringbuf.NewRing[byte](o.BlockSize, o.NumBufs)
	if err != nil {
		return err
	}
	tx, err := ringbuf.NewRing[byte](o.BlockSize, o.NumBufs)
	if err != nil {
		return err
	}
	rx.SetPolicy(o.RxPolicy)
	tx.SetPolicy(o.TxPolicy)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.reg = r
	ch.num = num
	if ch.span == nil {
		ch.name = fmt.Sprintf("pseudo/%d", num)
	}
	ch.log = r.log.WithValues("channel", ch.name, "num", num)
	ch.rx, ch.tx = rx, tx
	ch.events = ringbuf.New[event.Event](o.EventQueueLen)
	ch.law = law.Resolve(law.Default, ch.defLaw, ch.spanLaw())
	ch.enc.Reset()
	ch.enc.PutFlag()
	ch.dec.Reset()
	ch.setSigLocked(ch.sig)
	return nil
}

func (ch *Channel) spanLaw() law.Law {
	if ch.span == nil {
		return law.Default
	}
	return ch.span.law
}

func (ch *Channel) Num() int {
	return ch.num
}

func (ch *Channel) Name() string {
	return ch.name
}

func (ch *Channel) Span() *Span {
	return ch.span
}

// Pos returns the channel position in its span, starting at 1.
func (ch *Channel) Pos() int {
	return ch.pos
}

func (ch *Channel) IsPseudo() bool {
	return ch.span == nil
}

// ReadChunk is the buffer the driver fills before calling Registry.Receive.
func (ch *Channel) ReadChunk() []byte {
	return ch.readChunk[:]
}

// WriteChunk is the buffer the driver sends after Registry.Transmit.
func (ch *Channel) WriteChunk() []byte {
	return ch.writeChunk[:]
}

// Open claims the channel for a user. A second open fails with Busy.
func (ch *Channel) Open() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.open {
		return errors.ErrBusyf("channel %s already open", ch.name)
	}
	if o, ok := ch.driver().(Opener); ok {
		if err := o.Open(ch); err != nil {
			return err
		}
	}
	ch.open = true
	ch.rx.Flush()
	ch.tx.Flush()
	ch.events.Reset()
	return nil
}

// Close releases the channel and returns it to its idle configuration.
func (ch *Channel) Close() error {
	if ch.reg != nil {
		if err := ch.reg.SetConference(ch, conf.Setting{}); err != nil {
			ch.log.Warnw("cannot clear conference", err)
		}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.open {
		return nil
	}
	ch.open = false
	ch.stopDialLocked()
	ch.disableEchoLocked()
	if ch.rbs != nil && ch.sig.HookSignaled() {
		_ = ch.rbs.Hangup()
	}
	if ch.zone != nil {
		ch.reg.Zones.Release(ch.zone)
		ch.zone = nil
	}
	ch.linear = false
	ch.loopback = false
	ch.rxGain, ch.txGain = nil, nil
	if o, ok := ch.driver().(Opener); ok {
		o.Close(ch)
	}
	ch.wake.wake()
	return nil
}

func (ch *Channel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open
}

func (ch *Channel) driver() Driver {
	if ch.span == nil {
		return nil
	}
	return ch.span.drv
}

// SetLaw selects the companding law. law.Default falls back to the channel default,
// then to the span's law, then to mu-law.
func (ch *Channel) SetLaw(l law.Law) law.Law {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.law = law.Resolve(l, ch.defLaw, ch.spanLaw())
	return ch.law
}

// SetDefaultLaw sets the law used when law.Default is requested.
func (ch *Channel) SetDefaultLaw(l law.Law) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.defLaw = l
}

func (ch *Channel) Law() law.Law {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.law
}

// SetGains installs receive and transmit gain tables. Nil means unity.
func (ch *Channel) SetGains(rx, tx *law.GainTable) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if rx != nil && rx.IsIdentity() {
		rx = nil
	}
	if tx != nil && tx.IsIdentity() {
		tx = nil
	}
	ch.rxGain, ch.txGain = rx, tx
}

// Gains returns the active gain tables.
func (ch *Channel) Gains() (rx, tx *law.GainTable) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	rx, tx = law.Identity(), law.Identity()
	if ch.rxGain != nil {
		*rx = *ch.rxGain
	}
	if ch.txGain != nil {
		*tx = *ch.txGain
	}
	return rx, tx
}

// BufInfo is the buffering configuration of a channel.
type BufInfo struct {
	BlockSize int
	NumBufs   int
	TxPolicy  ringbuf.Policy
	RxPolicy  ringbuf.Policy
	// read only
	RxReady int
	TxReady int
}

// SetBufInfo resizes both rings. Buffered data is discarded.
func (ch *Channel) SetBufInfo(bi BufInfo) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	rx, err := ringbuf.NewRing[byte](bi.BlockSize, bi.NumBufs)
	if err != nil {
		return err
	}
	tx, err := ringbuf.NewRing[byte](bi.BlockSize, bi.NumBufs)
	if err != nil {
		return err
	}
	rx.SetPolicy(bi.RxPolicy)
	tx.SetPolicy(bi.TxPolicy)
	ch.rx, ch.tx = rx, tx
	ch.resetFramingLocked()
	ch.wake.wake()
	return nil
}

func (ch *Channel) BufInfo() BufInfo {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return BufInfo{
		BlockSize: ch.rx.BlockSize(),
		NumBufs:   ch.rx.NumBufs(),
		TxPolicy:  ch.tx.Policy(),
		RxPolicy:  ch.rx.Policy(),
		RxReady:   ch.rx.Ready(),
		TxReady:   ch.tx.Ready(),
	}
}

// Flush drops buffered data and, if events is set, pending events.
func (ch *Channel) Flush(read, write, events bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if read {
		ch.rx.Flush()
		ch.dec.Reset()
		ch.rxDrop = false
	}
	if write {
		ch.tx.Flush()
		ch.enc.Reset()
		ch.enc.PutFlag()
	}
	if events {
		ch.events.Reset()
	}
	ch.wake.wake()
}

func (ch *Channel) resetFramingLocked() {
	ch.enc.Reset()
	ch.enc.PutFlag()
	ch.dec.Reset()
	ch.rxDrop = false
}

// SetLinear switches user reads and writes between companded bytes and
// 16-bit little-endian linear samples.
func (ch *Channel) SetLinear(on bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if on && (ch.hdlc != HDLCOff || !ch.audio) {
		return errors.ErrInvalidArgf("linear mode on data channel %s", ch.name)
	}
	ch.linear = on
	return nil
}

// SetAudioMode turns voice processing on or off. Turning it off drops the echo canceller.
func (ch *Channel) SetAudioMode(on bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if on && ch.hdlc != HDLCOff {
		return errors.ErrInvalidArgf("audio mode on HDLC channel %s", ch.name)
	}
	if !on {
		ch.disableEchoLocked()
		ch.linear = false
	}
	ch.audio = on
	return nil
}

// SetHDLC selects HDLC framing. HDLC implies data mode.
func (ch *Channel) SetHDLC(mode HDLCMode) error {
	if mode < HDLCOff || mode > HDLCFCS {
		return errors.ErrInvalidArgf("hdlc mode %d", int(mode))
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.hdlc = mode
	_, ch.hwHDLC = ch.driver().(HDLCDriver)
	ch.hwHDLC = ch.hwHDLC && mode != HDLCOff
	if mode != HDLCOff {
		ch.disableEchoLocked()
		ch.audio = false
		ch.linear = false
	} else {
		ch.audio = ch.sig != rbs.Clear
	}
	ch.rx.Flush()
	ch.tx.Flush()
	ch.resetFramingLocked()
	return nil
}

// SetLoopback makes the channel transmit what it receives when it has nothing else to send.
func (ch *Channel) SetLoopback(on bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.loopback = on
}

// Params is a snapshot of channel configuration.
type Params struct {
	Num      int
	Name     string
	Span     int
	Pos      int
	Sig      rbs.SigType
	Law      law.Law
	Audio    bool
	Linear   bool
	Loopback bool
	HDLC     HDLCMode
	Open     bool
	Zone     int
	EchoCan  string
	Alarms   Alarm
	TxState  rbs.TxState
	RxState  rbs.RxSig
	TxBits   rbs.Bits
	RxBits   rbs.Bits
	Timing   rbs.Timing
	Conf     conf.Setting
}

func (ch *Channel) Params() Params {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	p := Params{
		Num:      ch.num,
		Name:     ch.name,
		Pos:      ch.pos,
		Sig:      ch.sig,
		Law:      ch.law,
		Audio:    ch.audio,
		Linear:   ch.linear,
		Loopback: ch.loopback,
		HDLC:     ch.hdlc,
		Open:     ch.open,
		Zone:     -1,
		EchoCan:  ch.ecName,
		Alarms:   ch.alarms,
		Conf:     ch.member.Setting,
	}
	if ch.span != nil {
		p.Span = ch.span.id
	}
	if ch.zone != nil {
		p.Zone = ch.zone.ID
	}
	if m := ch.rbs; m != nil {
		p.TxState = m.State()
		p.RxState = m.RxState()
		p.TxBits = m.TxBits()
		p.RxBits = m.RxBits()
		p.Timing = m.Timing()
	}
	return p
}

// SetTiming replaces the signaling hold times.
func (ch *Channel) SetTiming(t rbs.Timing) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.rbs == nil {
		return errors.ErrInvalidArgf("channel %s has no signaling", ch.name)
	}
	ch.rbs.SetTiming(t)
	return nil
}

// disableEchoLocked drops the canceller, hardware or software.
func (ch *Channel) disableEchoLocked() {
	if ch.ec != nil {
		ch.ec.Close()
		ch.ec = nil
	}
	// the span's canceller is switched off even when it was never the active one
	if d, ok := ch.driver().(EchoDriver); ok {
		if err := d.EchoCan(ch, echocan.Params{}); err != nil && !errors.Is(err, errors.ErrNotSupported) {
			ch.log.Debugw("cannot disable hardware echo canceller", "error", err)
		}
	}
	ch.ecHW = false
	ch.ecName = ""
	ch.ecDetect = nil
}

// queue adds an event. The channel lock must be held.
func (ch *Channel) queue(e event.Event) {
	if ch.events == nil {
		return
	}
	obs := ch.observer()
	if !ch.events.TryPush(e) {
		obs.EventDropped(e)
		return
	}
	obs.EventQueued(e)
	ch.wake.wake()
}

func (ch *Channel) observer() Observer {
	if ch.reg == nil {
		return nopObserver{}
	}
	return ch.reg.obs
}

// QueueEvent adds an event on behalf of a driver. Events are dropped when the queue is full.
func (ch *Channel) QueueEvent(e event.Event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.queue(e)
}

// lockedEvents queues events for code already running under the channel lock.
type lockedEvents Channel

func (e *lockedEvents) QueueEvent(ev event.Event) {
	(*Channel)(e).queue(ev)
}

func (ch *Channel) String() string {
	return ch.name
}
