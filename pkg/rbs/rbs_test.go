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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
)

type recorder struct {
	bits   []Bits
	hooks  []TxSig
	events []event.Event
	states []TxState
}

func (r *recorder) SetRBSBits(b Bits) error {
	r.bits = append(r.bits, b)
	return nil
}

func (r *recorder) SetHookState(s TxSig) error {
	r.hooks = append(r.hooks, s)
	return nil
}

func (r *recorder) QueueEvent(e event.Event) {
	r.events = append(r.events, e)
}

func newBitMachine(sig SigType, t Timing) (*Machine, *recorder) {
	r := &recorder{}
	m := NewMachine(Params{
		Sig:     sig,
		Timing:  t,
		Bits:    r,
		Events:  r,
		OnState: func(s TxState) { r.states = append(r.states, s) },
	})
	return m, r
}

func advance(m *Machine, d time.Duration) {
	for n := samples(d); n > 0; n -= ChunkSize {
		m.Tick(ChunkSize)
	}
}

func TestFXOLSOffhook(t *testing.T) {
	m, r := newBitMachine(FXOLS, DefaultTiming(false))
	require.NoError(t, m.SetHook(HookOffhook))
	require.Equal(t, Debounce, m.State())

	advance(m, m.Timing().Debounce)
	require.Equal(t, Offhook, m.State())
	require.Equal(t, []Bits{BBit | DBit}, r.bits)
}

func TestHookValidation(t *testing.T) {
	m, _ := newBitMachine(FXSLS, DefaultTiming(false))
	require.ErrorIs(t, m.SetHook(HookFlash), errors.ErrBusy)

	require.NoError(t, m.SetHook(HookOffhook))
	require.ErrorIs(t, m.SetHook(HookWink), errors.ErrBusy)
	require.ErrorIs(t, m.SetHook(HookStart), errors.ErrBusy)
	require.ErrorIs(t, m.SetHook(HookRing), errors.ErrBusy)
	require.ErrorIs(t, m.SetHook(Hook(42)), errors.ErrInvalidArgument)

	t.Run("no signaler", func(t *testing.T) {
		m := NewMachine(Params{Sig: FXSKS})
		require.ErrorIs(t, m.SetHook(HookOffhook), errors.ErrNotSupported)
	})
	t.Run("cas", func(t *testing.T) {
		m, r := newBitMachine(CAS, DefaultTiming(false))
		require.ErrorIs(t, m.SetHook(HookOffhook), errors.ErrInvalidArgument)
		require.ErrorIs(t, m.SetTxBits(0x10), errors.ErrInvalidArgument)
		require.NoError(t, m.SetTxBits(ABit|DBit))
		require.Equal(t, []Bits{ABit | DBit}, r.bits)

		require.NoError(t, m.RxBitsChanged(BBit))
		require.NoError(t, m.RxBitsChanged(BBit))
		require.Equal(t, []event.Event{event.BitsChanged}, r.events)
	})
	t.Run("raw bits refused", func(t *testing.T) {
		m, _ := newBitMachine(EM, DefaultTiming(false))
		require.ErrorIs(t, m.SetTxBits(ABit), errors.ErrInvalidArgument)
		require.ErrorIs(t, m.RxBitsChanged(0xff), errors.ErrInvalidArgument)
	})
}

func TestWink(t *testing.T) {
	m, r := newBitMachine(EM, DefaultTiming(false))
	require.NoError(t, m.SetHook(HookWink))
	tm := m.Timing()
	advance(m, tm.PreWink)
	require.Equal(t, Wink, m.State())
	advance(m, tm.Wink)
	require.Equal(t, Onhook, m.State())
	require.Equal(t, []Bits{0, AllBits, 0}, r.bits)
	require.Equal(t, []TxState{PreWink, Wink, Onhook}, r.states)
	require.Equal(t, []event.Event{event.HookComplete}, r.events)
}

func TestFlash(t *testing.T) {
	m, r := newBitMachine(FXSLS, DefaultTiming(false))
	require.NoError(t, m.SetHook(HookOffhook))
	tm := m.Timing()
	advance(m, tm.Debounce)
	require.NoError(t, m.SetHook(HookFlash))
	advance(m, tm.PreFlash)
	require.Equal(t, Flash, m.State())
	advance(m, tm.Flash)
	require.Equal(t, Offhook, m.State())
	require.Equal(t, []Bits{AllBits, BBit | DBit, AllBits}, r.bits)
}

func TestStart(t *testing.T) {
	m, _ := newBitMachine(FXSGS, DefaultTiming(false))
	require.NoError(t, m.SetHook(HookStart))
	require.Equal(t, Start, m.State())
	require.Equal(t, ABit|CBit, m.TxBits())
	tm := m.Timing()
	advance(m, tm.Start)
	require.Equal(t, AfterStart, m.State())
	advance(m, tm.AfterStart)
	require.Equal(t, Offhook, m.State())
}

func TestRingCadence(t *testing.T) {
	m, r := newBitMachine(FXOLS, DefaultTiming(false))
	ms := time.Millisecond
	require.NoError(t, m.SetCadence([]time.Duration{100 * ms, 200 * ms, 300 * ms, 400 * ms}, 2))
	require.ErrorIs(t, m.SetCadence([]time.Duration{100 * ms}, 0), errors.ErrInvalidArgument)

	require.NoError(t, m.SetHook(HookRing))
	require.Equal(t, RingOn, m.State())
	require.Equal(t, Bits(0), m.TxBits())

	steps := []struct {
		d     time.Duration
		state TxState
	}{
		{100 * ms, RingOff},
		{200 * ms, RingOn},
		{300 * ms, RingOff},
		{400 * ms, RingOn},
		{300 * ms, RingOff},
		{400 * ms, RingOn},
	}
	for i, s := range steps {
		advance(m, s.d)
		require.Equal(t, s.state, m.State(), "step %d", i)
	}
	require.Equal(t, []event.Event{
		event.RingerOff, event.RingerOn, event.RingerOff, event.RingerOn, event.RingerOff, event.RingerOn,
	}, r.events)

	// the phone answers
	r.events = nil
	require.NoError(t, m.RxBitsChanged(ABit|BBit))
	require.Equal(t, Offhook, m.State())
	require.Equal(t, []event.Event{event.RingOffHook}, r.events)
}

func TestRingOff(t *testing.T) {
	m, _ := newBitMachine(FXOKS, DefaultTiming(false))
	require.NoError(t, m.SetHook(HookRing))
	require.NoError(t, m.SetHook(HookRingOff))
	require.Equal(t, Onhook, m.State())
	require.True(t, m.Idle())
}

func TestPulseDial(t *testing.T) {
	m, r := newBitMachine(FXSLS, DefaultTiming(false))
	require.ErrorIs(t, m.DialPulses(3), errors.ErrBusy)
	require.NoError(t, m.SetHook(HookOffhook))
	tm := m.Timing()
	advance(m, tm.Debounce)
	r.bits, r.states = nil, nil

	require.NoError(t, m.DialPulses(3))
	require.True(t, m.Pulsing())
	advance(m, 3*(tm.PulseBreak+tm.PulseMake))
	require.Equal(t, PulseAfter, m.State())
	advance(m, tm.PulseAfter)
	require.Equal(t, Offhook, m.State())
	require.False(t, m.Pulsing())

	var breaks int
	for _, s := range r.states {
		if s == PulseBreak {
			breaks++
		}
	}
	require.Equal(t, 3, breaks)
	require.Len(t, r.bits, 6)
}

func TestKewl(t *testing.T) {
	m, r := newBitMachine(FXOKS, DefaultTiming(false))
	tm := m.Timing()
	require.NoError(t, m.SetHook(HookOffhook))
	advance(m, tm.Debounce)
	require.NoError(t, m.RxBitsChanged(ABit|BBit))

	require.NoError(t, m.Hangup())
	require.Equal(t, Kewl, m.State())
	require.Equal(t, AllBits, m.TxBits())
	require.ErrorIs(t, m.SetHook(HookOffhook), errors.ErrBusy)

	r.events = nil
	require.NoError(t, m.RxBitsChanged(BBit))
	advance(m, tm.Kewl)
	require.Equal(t, AfterKewl, m.State())
	advance(m, tm.AfterKewl)
	require.Equal(t, Onhook, m.State())
	require.Equal(t, []event.Event{event.HookComplete, event.OnHook}, r.events)
}

func TestHookSignaler(t *testing.T) {
	r := &recorder{}
	m := NewMachine(Params{Sig: FXSKS, Hook: r})
	require.NoError(t, m.SetHook(HookOffhook))
	advance(m, m.Timing().Debounce)
	require.Equal(t, Offhook, m.State())
	require.NoError(t, m.Hangup())
	require.Equal(t, []TxSig{TxOffhook, TxOnhook}, r.hooks)
}

// breakLine sends one hook break of length d on an FXO-signaled channel.
func breakLine(t *testing.T, m *Machine, d time.Duration) {
	require.NoError(t, m.RxBitsChanged(BBit|DBit))
	advance(m, d)
	require.NoError(t, m.RxBitsChanged(ABit|BBit|CBit|DBit))
}

func TestRxFXO(t *testing.T) {
	ms := time.Millisecond
	t.Run("pulse digit", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		require.Equal(t, []event.Event{event.RingOffHook}, r.events)
		r.events = nil

		for i := 0; i < 3; i++ {
			breakLine(t, m, 60*ms)
			advance(m, 40*ms)
		}
		advance(m, m.Timing().PulseTimeout())
		require.Equal(t, []event.Event{event.PulseStart, event.Pulse('3')}, r.events)
	})
	t.Run("ten pulses", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		r.events = nil
		for i := 0; i < 10; i++ {
			breakLine(t, m, 50*ms)
			advance(m, 50*ms)
		}
		advance(m, m.Timing().PulseTimeout())
		require.Equal(t, []event.Event{event.PulseStart, event.Pulse('0')}, r.events)
	})
	t.Run("glitch", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		r.events = nil
		breakLine(t, m, 8*ms)
		advance(m, time.Second)
		require.Empty(t, r.events)
	})
	t.Run("flash", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		r.events = nil
		breakLine(t, m, 500*ms)
		require.Equal(t, []event.Event{event.WinkFlash}, r.events)
	})
	t.Run("short flash", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(true))
		require.NoError(t, m.RxBitsChanged(AllBits))
		r.events = nil
		breakLine(t, m, 100*ms)
		require.Equal(t, []event.Event{event.WinkFlash}, r.events)

		m, r = newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		r.events = nil
		breakLine(t, m, 100*ms)
		require.Equal(t, []event.Event{event.PulseStart}, r.events)
	})
	t.Run("hangup", func(t *testing.T) {
		m, r := newBitMachine(FXOLS, DefaultTiming(false))
		require.NoError(t, m.RxBitsChanged(AllBits))
		require.NoError(t, m.RxBitsChanged(BBit|DBit))
		advance(m, m.Timing().RxFlash)
		require.Equal(t, []event.Event{event.RingOffHook, event.OnHook}, r.events)
		require.Equal(t, RxOnhook, m.RxState())
	})
}

func TestRxFXS(t *testing.T) {
	m, r := newBitMachine(FXSKS, DefaultTiming(false))
	ring := func() {
		require.NoError(t, m.RxBitsChanged(0))
		advance(m, 500*time.Millisecond)
		require.NoError(t, m.RxBitsChanged(BBit|DBit))
		advance(m, 500*time.Millisecond)
	}
	ring()
	ring()
	require.Equal(t, []event.Event{event.RingBegin, event.RingOffHook, event.RingBegin}, r.events)

	r.events = nil
	require.NoError(t, m.SetHook(HookOffhook))
	advance(m, m.Timing().Debounce)
	require.NoError(t, m.RxBitsChanged(AllBits))
	require.Equal(t, []event.Event{event.OnHook}, r.events)
}

func TestRxEM(t *testing.T) {
	ms := time.Millisecond
	m, r := newBitMachine(EM, DefaultTiming(false))
	require.NoError(t, m.RxBitsChanged(0))
	require.NoError(t, m.RxBitsChanged(AllBits))
	advance(m, 100*ms)
	require.NoError(t, m.RxBitsChanged(0))
	require.Equal(t, []event.Event{event.WinkFlash}, r.events)

	r.events = nil
	require.NoError(t, m.RxBitsChanged(AllBits))
	advance(m, m.Timing().RxWink)
	require.NoError(t, m.RxBitsChanged(0))
	require.Equal(t, []event.Event{event.RingOffHook, event.OnHook}, r.events)
}

func TestBits(t *testing.T) {
	require.Equal(t, "-B-D", (BBit | DBit).String())
	b, err := TxBits(EME1, TxOffhook)
	require.NoError(t, err)
	require.Equal(t, ABit|BBit|DBit, b)
	_, err = TxBits(CAS, TxOnhook)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	s, err := ParseSigType("FXOKS")
	require.NoError(t, err)
	require.Equal(t, FXOKS, s)
	_, err = ParseSigType("bogus")
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestTermination(t *testing.T) {
	sigs := []SigType{FXSLS, FXSGS, FXSKS, FXOLS, FXOGS, FXOKS, EM, EME1, SF}
	rapid.Check(t, func(t *rapid.T) {
		sig := rapid.SampledFrom(sigs).Draw(t, "sig")
		m, _ := newBitMachine(sig, DefaultTiming(rapid.Bool().Draw(t, "short")))
		hooks := []Hook{HookOnhook, HookOffhook, HookWink, HookFlash, HookRingOff}
		if !sig.IsFXO() {
			// FXO ringing follows the cadence until answered or stopped
			hooks = append(hooks, HookStart)
		}
		n := rapid.IntRange(1, 20).Draw(t, "requests")
		for i := 0; i < n; i++ {
			if rapid.IntRange(0, 5).Draw(t, "pulse") == 0 {
				_ = m.DialPulses(rapid.IntRange(1, 12).Draw(t, "pulses"))
			} else {
				_ = m.SetHook(rapid.SampledFrom(hooks).Draw(t, "hook"))
			}
			for k := rapid.IntRange(0, 400).Draw(t, "ticks"); k > 0; k-- {
				m.Tick(ChunkSize)
			}
		}
		// longest chain: 12 pulses plus pulse-after, or start plus after-start
		for k := 0; k < 8000 && !m.State().Stable(); k++ {
			m.Tick(ChunkSize)
		}
		require.True(t, m.State().Stable(), "stuck in %v", m.State())
	})
}
