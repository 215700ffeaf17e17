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

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

// TxState is the transmit signaling state of a channel.
type TxState int

const (
	Onhook TxState = iota
	Offhook
	Start
	PreWink
	Wink
	PreFlash
	Flash
	Debounce
	AfterStart
	RingOn
	RingOff
	Kewl
	AfterKewl
	PulseBreak
	PulseMake
	PulseAfter
)

var stateNames = [...]string{
	"onhook", "offhook", "start", "prewink", "wink", "preflash", "flash", "debounce",
	"afterstart", "ringon", "ringoff", "kewl", "afterkewl", "pulsebreak", "pulsemake", "pulseafter",
}

func (s TxState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

// Stable reports whether no timer will move the state on its own.
func (s TxState) Stable() bool {
	return s == Onhook || s == Offhook
}

// Hook is a user hook request.
type Hook int

const (
	HookOnhook Hook = iota
	HookOffhook
	HookWink
	HookFlash
	HookStart
	HookRing
	HookRingOff
)

func (h Hook) String() string {
	switch h {
	case HookOnhook:
		return "onhook"
	case HookOffhook:
		return "offhook"
	case HookWink:
		return "wink"
	case HookFlash:
		return "flash"
	case HookStart:
		return "start"
	case HookRing:
		return "ring"
	case HookRingOff:
		return "ringoff"
	}
	return fmt.Sprintf("Hook(%d)", int(h))
}

// BitSignaler is implemented by spans that carry robbed-bit signaling.
type BitSignaler interface {
	SetRBSBits(b Bits) error
}

// HookSignaler is implemented by spans that signal hook state directly.
type HookSignaler interface {
	SetHookState(s TxSig) error
}

type Params struct {
	Sig    SigType
	Timing Timing
	// Exactly one of Bits and Hook is used; Bits wins if both are set.
	Bits   BitSignaler
	Hook   HookSignaler
	Events event.Sink
	// OnState is called after every transmit state change.
	OnState func(TxState)
	Logger  logger.Logger
}

// Machine runs the transmit and receive signaling of one channel. It is driven under
// the channel lock and is not safe for concurrent use.
type Machine struct {
	p   Params
	log logger.Logger

	tx     TxState
	txSig  TxSig
	txBits Bits
	sent   bool
	otimer int

	cadence      []time.Duration
	cadencePos   int
	firstCadence int
	pulses       int

	rxBits      Bits
	rx          RxSig
	itimer      int
	itimerSet   int
	pulseTimer  int
	pulseCount  int
	ringDeb     int
	offReported bool
	kewlOnhook  bool
}

func NewMachine(p Params) *Machine {
	log := p.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	if p.Timing == (Timing{}) {
		p.Timing = DefaultTiming(false)
	}
	return &Machine{p: p, log: log, rx: RxUnknown}
}

func (m *Machine) Sig() SigType { return m.p.Sig }
func (m *Machine) State() TxState { return m.tx }
func (m *Machine) TxSig() TxSig { return m.txSig }
func (m *Machine) TxBits() Bits { return m.txBits }
func (m *Machine) RxBits() Bits { return m.rxBits }
func (m *Machine) RxState() RxSig { return m.rx }
func (m *Machine) Timing() Timing { return m.p.Timing }
func (m *Machine) SetTiming(t Timing) { m.p.Timing = t }

// SetCadence sets the ring cadence as alternating on/off times. Ringing loops back to
// first after the last entry.
func (m *Machine) SetCadence(c []time.Duration, first int) error {
	if len(c)%2 != 0 || first < 0 || (len(c) > 0 && first >= len(c)) {
		return errors.ErrInvalidArgf("ring cadence of %d entries from %d", len(c), first)
	}
	for _, d := range c {
		if d <= 0 {
			return errors.ErrInvalidArgf("ring cadence entry %v", d)
		}
	}
	m.cadence = append(m.cadence[:0], c...)
	m.firstCadence = first &^ 1
	return nil
}

func (m *Machine) supported() error {
	if !m.p.Sig.HookSignaled() {
		return errors.ErrInvalidArgf("hook request on %v channel", m.p.Sig)
	}
	if m.p.Bits == nil && m.p.Hook == nil {
		return errors.ErrNotSupported
	}
	return nil
}

// SetHook applies a hook request from the user.
func (m *Machine) SetHook(h Hook) error {
	if err := m.supported(); err != nil {
		return err
	}
	switch h {
	case HookOnhook:
		return m.Hangup()
	case HookOffhook:
		if m.tx == Kewl || m.tx == AfterKewl {
			return errors.ErrBusyf("offhook during %v", m.tx)
		}
		return m.set(TxOffhook, Debounce, m.p.Timing.Debounce)
	case HookRing, HookStart:
		if m.tx != Onhook {
			return errors.ErrBusyf("%v during %v", h, m.tx)
		}
		if m.p.Sig.IsFXO() {
			m.cadencePos = 0
			return m.set(TxStart, RingOn, m.cadenceAt(0))
		}
		return m.set(TxStart, Start, m.p.Timing.Start)
	case HookWink:
		if m.tx != Onhook {
			return errors.ErrBusyf("wink during %v", m.tx)
		}
		return m.set(TxOnhook, PreWink, m.p.Timing.PreWink)
	case HookFlash:
		if m.tx != Offhook {
			return errors.ErrBusyf("flash during %v", m.tx)
		}
		return m.set(TxOffhook, PreFlash, m.p.Timing.PreFlash)
	case HookRingOff:
		return m.set(TxOnhook, Onhook, 0)
	}
	return errors.ErrInvalidArgf("hook request %d", int(h))
}

// Hangup puts the line on hook. Kewlstart lines drop battery first unless the far end
// already hung up.
func (m *Machine) Hangup() error {
	if err := m.supported(); err != nil {
		return err
	}
	m.kewlOnhook = false
	if m.p.Sig.IsFXO() {
		m.ringDeb = samples(m.p.Timing.RingDebounce)
	}
	if m.p.Sig == FXOKS && m.tx != Onhook && !(m.rx == RxOnhook && m.itimer <= 0) {
		return m.set(TxKewl, Kewl, m.p.Timing.Kewl)
	}
	return m.set(TxOnhook, Onhook, 0)
}

// DialPulses starts sending n pulses. The line must be off hook.
func (m *Machine) DialPulses(n int) error {
	if err := m.supported(); err != nil {
		return err
	}
	if n <= 0 {
		return errors.ErrInvalidArgf("pulse count %d", n)
	}
	if m.tx != Offhook {
		return errors.ErrBusyf("pulse dial during %v", m.tx)
	}
	m.pulses = n
	return m.set(TxOnhook, PulseBreak, m.p.Timing.PulseBreak)
}

// Pulsing reports whether a pulse digit is in progress.
func (m *Machine) Pulsing() bool {
	switch m.tx {
	case PulseBreak, PulseMake, PulseAfter:
		return true
	}
	return false
}

func (m *Machine) cadenceAt(pos int) time.Duration {
	c := m.cadence
	if len(c) == 0 {
		c = DefaultCadence
	}
	return c[pos%len(c)]
}

func (m *Machine) cadenceLen() int {
	if len(m.cadence) == 0 {
		return len(DefaultCadence)
	}
	return len(m.cadence)
}

// set moves to state with the line condition tx and arms the transmit timer.
func (m *Machine) set(tx TxSig, state TxState, hold time.Duration) error {
	err := m.signal(tx)
	m.setState(state)
	m.otimer = samples(hold)
	return err
}

func (m *Machine) setState(s TxState) {
	if m.tx == s {
		return
	}
	m.log.Debugw("tx state", "from", m.tx, "to", s, "sig", m.p.Sig)
	m.tx = s
	if m.p.OnState != nil {
		m.p.OnState(s)
	}
}

func (m *Machine) signal(tx TxSig) error {
	prev := m.txSig
	m.txSig = tx
	if m.p.Bits != nil {
		b, err := TxBits(m.p.Sig, tx)
		if err != nil {
			m.log.Warnw("cannot signal", err, "sig", m.p.Sig, "tx", tx)
			return err
		}
		if m.sent && b == m.txBits {
			return nil
		}
		m.txBits, m.sent = b, true
		return m.p.Bits.SetRBSBits(b)
	}
	if m.p.Hook != nil && (!m.sent || prev != tx) {
		m.sent = true
		return m.p.Hook.SetHookState(tx)
	}
	return nil
}

// SetTxBits sends raw bits on a CAS channel.
func (m *Machine) SetTxBits(b Bits) error {
	if b > AllBits {
		err := errors.ErrInvalidArgf("signaling bits %#x", uint8(b))
		m.log.Warnw("bad tx bits", err)
		return err
	}
	if m.p.Sig != CAS {
		return errors.ErrInvalidArgf("raw bits on %v channel", m.p.Sig)
	}
	if m.p.Bits == nil {
		return errors.ErrNotSupported
	}
	m.txBits, m.sent = b, true
	return m.p.Bits.SetRBSBits(b)
}

func (m *Machine) emit(e event.Event) {
	if m.p.Events != nil {
		m.p.Events.QueueEvent(e)
	}
}

// Tick advances all timers by n samples and runs expiry inline.
func (m *Machine) Tick(n int) {
	if m.otimer > 0 {
		m.otimer -= n
		if m.otimer <= 0 {
			m.otimer = 0
			m.expire()
		}
	}
	if m.itimer > 0 {
		m.itimer -= n
		if m.itimer <= 0 {
			m.itimer = 0
			m.rxTimeout()
		}
	}
	if m.pulseTimer > 0 {
		m.pulseTimer -= n
		if m.pulseTimer <= 0 {
			m.pulseTimer = 0
			m.pulseDigit()
		}
	}
	if m.ringDeb > 0 {
		m.ringDeb -= n
		if m.ringDeb < 0 {
			m.ringDeb = 0
		}
	}
}

// Idle reports whether no timer is armed.
func (m *Machine) Idle() bool {
	return m.otimer == 0 && m.itimer == 0 && m.pulseTimer == 0
}

func (m *Machine) expire() {
	t := m.p.Timing
	switch m.tx {
	case RingOn:
		m.cadencePos++
		if m.cadencePos >= m.cadenceLen() {
			m.cadencePos = 0
		}
		_ = m.set(TxOffhook, RingOff, m.cadenceAt(m.cadencePos))
		m.emit(event.RingerOff)
	case RingOff:
		m.cadencePos++
		if m.cadencePos >= m.cadenceLen() {
			m.cadencePos = m.firstCadence
		}
		_ = m.set(TxStart, RingOn, m.cadenceAt(m.cadencePos))
		m.emit(event.RingerOn)
	case Start:
		_ = m.set(TxOffhook, AfterStart, t.AfterStart)
	case AfterStart:
		_ = m.set(TxOffhook, Offhook, 0)
		m.emit(event.HookComplete)
	case PreWink:
		_ = m.set(TxOffhook, Wink, t.Wink)
	case Wink:
		_ = m.set(TxOnhook, Onhook, 0)
		m.emit(event.HookComplete)
	case PreFlash:
		_ = m.set(TxOnhook, Flash, t.Flash)
	case Flash:
		_ = m.set(TxOffhook, Offhook, 0)
		m.emit(event.HookComplete)
	case Debounce:
		_ = m.set(TxOffhook, Offhook, 0)
		if m.rx == RxOnhook && t.RxFlash > 2*time.Millisecond {
			m.itimerSet = samples(t.RxFlash)
			m.itimer = m.itimerSet
		}
	case Kewl:
		_ = m.set(TxOnhook, AfterKewl, t.AfterKewl)
		m.emit(event.HookComplete)
	case AfterKewl:
		if m.kewlOnhook {
			m.emit(event.OnHook)
		}
		m.setState(Onhook)
	case PulseBreak:
		_ = m.set(TxOffhook, PulseMake, t.PulseMake)
	case PulseMake:
		if m.pulses > 0 {
			m.pulses--
		}
		if m.pulses > 0 {
			_ = m.set(TxOnhook, PulseBreak, t.PulseBreak)
			return
		}
		m.setState(PulseAfter)
		m.otimer = samples(t.PulseAfter)
	case PulseAfter:
		m.setState(Offhook)
	}
}

// RxBitsChanged handles new robbed bits from the span.
func (m *Machine) RxBitsChanged(b Bits) error {
	if b > AllBits {
		err := errors.ErrInvalidArgf("signaling bits %#x", uint8(b))
		m.log.Warnw("bad rx bits", err)
		return err
	}
	if m.p.Sig == CAS {
		if b != m.rxBits {
			m.rxBits = b
			m.emit(event.BitsChanged)
		}
		return nil
	}
	m.rxBits = b
	s, err := DecodeBits(m.p.Sig, b)
	if err != nil {
		return err
	}
	m.RxHook(s)
	return nil
}

// RxHook handles a decoded far-end line condition.
func (m *Machine) RxHook(s RxSig) {
	if s == m.rx {
		return
	}
	m.rx = s
	sig := m.p.Sig
	switch {
	case sig.IsFXO():
		m.rxFXO(s)
	case sig.IsFXS():
		m.rxFXS(s)
	case sig == EM || sig == EME1 || sig == SF:
		m.rxEM(s)
	}
}

func (m *Machine) settling() bool {
	return m.tx == Debounce || m.tx == Kewl || m.tx == AfterKewl
}

// rxFXO watches the phone hook: breaks shorter than MaxPulse count as dial pulses,
// longer ones up to RxFlash as a flash and anything longer as a hangup.
func (m *Machine) rxFXO(s RxSig) {
	t := m.p.Timing
	switch s {
	case RxOnhook:
		if !m.settling() {
			m.itimerSet = samples(t.RxFlash)
			m.itimer = m.itimerSet
		}
		if m.tx == Kewl {
			m.kewlOnhook = true
		}
	case RxOffhook:
		if m.tx == RingOn || m.tx == RingOff {
			_ = m.set(TxOffhook, Offhook, 0)
		}
		if m.itimer > 0 {
			elapsed := m.itimerSet - m.itimer
			m.itimer = 0
			switch {
			case elapsed < samples(t.MaxPulse):
				if elapsed > samples(t.MinPulse) {
					m.pulseCount++
					m.pulseTimer = samples(t.PulseTimeout())
					if m.pulseCount == 1 {
						m.emit(event.PulseStart)
					}
				}
			default:
				m.emit(event.WinkFlash)
			}
			return
		}
		if !m.settling() && !m.offReported {
			m.offReported = true
			m.emit(event.RingOffHook)
		}
	}
}

func (m *Machine) rxFXS(s RxSig) {
	switch s {
	case RxRing:
		m.emit(event.RingBegin)
		if m.ringDeb == 0 {
			m.emit(event.RingOffHook)
		}
		m.ringDeb = samples(m.p.Timing.RingDebounce)
	case RxOnhook:
		if m.tx != Onhook && !m.settling() {
			m.emit(event.OnHook)
		}
	}
}

func (m *Machine) rxEM(s RxSig) {
	switch s {
	case RxOffhook:
		m.itimerSet = samples(m.p.Timing.RxWink)
		m.itimer = m.itimerSet
	case RxOnhook:
		if m.itimer > 0 {
			m.emit(event.WinkFlash)
		} else if m.offReported {
			m.emit(event.OnHook)
		}
		m.offReported = false
		m.itimer = 0
	}
}

func (m *Machine) rxTimeout() {
	switch {
	case m.p.Sig.IsFXO():
		if m.rx == RxOnhook {
			m.pulseCount, m.pulseTimer = 0, 0
			if m.offReported {
				m.offReported = false
				m.emit(event.OnHook)
			}
		}
	case m.p.Sig == EM || m.p.Sig == EME1 || m.p.Sig == SF:
		if m.rx == RxOffhook && !m.offReported {
			m.offReported = true
			m.emit(event.RingOffHook)
		}
	}
}

func (m *Machine) pulseDigit() {
	n := m.pulseCount
	m.pulseCount = 0
	if n == 0 {
		return
	}
	c := tones.PulseDigit(n)
	if c == 0 {
		m.log.Debugw("bad pulse count", "count", n)
		return
	}
	m.emit(event.Pulse(c))
}
