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

package tones

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/audiotest"
)

func TestPlayer(t *testing.T) {
	t.Run("frequencies", func(t *testing.T) {
		var p Player
		p.Start(Chain(true, NewTone(350, 440, DefaultLevel, time.Second)))
		buf := make([]int16, SampleRate)
		require.True(t, p.Fill(buf))
		peaks := audiotest.FindPeaks(buf, SampleRate, 2)
		require.Len(t, peaks, 2)
		freqs := []float64{peaks[0].Freq, peaks[1].Freq}
		require.ElementsMatch(t, []float64{350, 440}, freqs)
		require.True(t, p.Playing(), "looping tone keeps playing")
	})
	t.Run("segments", func(t *testing.T) {
		on := NewTone(1000, 0, DefaultLevel, 10*time.Millisecond)
		off := Silence(20 * time.Millisecond)
		var p Player
		p.Start(Chain(false, on, off))
		require.Equal(t, on, p.Current())
		buf := make([]int16, 80)
		require.True(t, p.Fill(buf))
		require.NotEqual(t, make([]int16, 80), buf)
		require.Equal(t, off, p.Current())
		buf = make([]int16, 200)
		require.False(t, p.Fill(buf))
		require.Equal(t, make([]int16, 200), buf)
		require.False(t, p.Playing())
		require.Zero(t, p.NextSample())
	})
	t.Run("silence", func(t *testing.T) {
		require.True(t, Silence(time.Millisecond).IsSilent())
		require.False(t, NewTone(425, 0, DefaultLevel, time.Millisecond).IsSilent())
	})
}

func TestKind(t *testing.T) {
	for id := 0; id < MaxToneID; id++ {
		k, err := DecodeID(id)
		require.NoError(t, err)
		require.Equal(t, id, k.ID())
	}
	_, err := DecodeID(-1)
	require.Error(t, err)
	_, err = DecodeID(MaxToneID)
	require.Error(t, err)

	k, err := ParseKind("dtmf:5")
	require.NoError(t, err)
	require.Equal(t, Kind{Class: DTMF, Index: 5}, k)
	require.Equal(t, byte('5'), k.Char())

	k, err = ParseKind("Busy")
	require.NoError(t, err)
	require.Equal(t, RegularTone(ToneBusy), k)

	_, err = ParseKind("dtmf:x")
	require.Error(t, err)

	k, ok := DigitToTone(ModeDTMF, 'a')
	require.True(t, ok)
	require.Equal(t, byte('A'), k.Char())
	_, ok = DigitToTone(ModePulse, '1')
	require.False(t, ok)
	_, ok = DigitToTone(ModeMFR1, 'D')
	require.False(t, ok)
}

func TestDialer(t *testing.T) {
	var d Dialer
	require.NoError(t, d.Replace("1Mw*P20T#x"))
	require.True(t, d.Active())

	type step struct {
		Op     StepOp
		Class  Class
		Digit  byte
		Pulses int
	}
	var got []step
	for {
		s, ok, done := d.Next()
		if !ok {
			require.True(t, done)
			break
		}
		got = append(got, step{Op: s.Op, Class: s.Kind.Class, Digit: s.Digit, Pulses: s.Pulses})
	}
	require.Equal(t, []step{
		{Op: StepTone, Class: DTMF, Digit: '1'},
		{Op: StepPause, Digit: 'w'},
		{Op: StepTone, Class: MFR1, Digit: '*'},
		{Op: StepPulse, Digit: '2', Pulses: 2},
		{Op: StepPulse, Digit: '0', Pulses: 10},
		{Op: StepTone, Class: DTMF, Digit: '#'},
	}, got)
	require.False(t, d.Active())

	_, ok, done := d.Next()
	require.False(t, ok)
	require.False(t, done, "completion is reported once")

	require.NoError(t, d.Append("5"))
	require.True(t, d.Active())
	require.True(t, d.Cancel())
	require.False(t, d.Cancel())

	long := make([]byte, MaxDialString+1)
	require.Error(t, d.Replace(string(long)))
}

func TestPulseDigits(t *testing.T) {
	for _, c := range []byte("0123456789*#") {
		require.Equal(t, c, PulseDigit(PulseCount(c)))
	}
	require.Zero(t, PulseCount('A'))
	require.Zero(t, PulseDigit(13))
}
