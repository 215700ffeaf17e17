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

package conf

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

type refCount map[int]int

func (r refCount) ReferencesConf(n int) bool {
	return r[n] > 0
}

func chunkOf(v int16) *Chunk {
	var c Chunk
	for i := range c {
		c[i] = v + int16(i)
	}
	return &c
}

func join(t require.TestingT, e *Engine, s Setting) *Member {
	s, err := s.Normalize(64)
	require.NoError(t, err)
	m := &Member{Setting: s}
	if s.UsesConference() {
		m.Alias, err = e.Alias(s.Num)
		require.NoError(t, err)
	}
	return m
}

func TestRotate(t *testing.T) {
	e := NewEngine(4, nil)
	a, err := e.Alias(7)
	require.NoError(t, err)
	require.Equal(t, 1, a)

	e.Talk(Next, a, chunkOf(100))
	require.Equal(t, int32(100), e.Sum(Next, a)[0])

	e.Rotate()
	require.Equal(t, int32(100), e.Sum(Current, a)[0])
	require.Equal(t, Sum{}, *e.Sum(Next, a))

	e.Rotate()
	require.Equal(t, int32(100), e.Sum(Prev, a)[0])
	require.Equal(t, Sum{}, *e.Sum(Current, a))

	e.Rotate()
	require.Equal(t, Sum{}, *e.Sum(Prev, a))
}

func TestAlias(t *testing.T) {
	t.Run("lazy", func(t *testing.T) {
		e := NewEngine(2, nil)
		require.Zero(t, e.Lookup(3))
		a, err := e.Alias(3)
		require.NoError(t, err)
		again, err := e.Alias(3)
		require.NoError(t, err)
		require.Equal(t, a, again)
		require.Equal(t, []int{3}, e.Active())
	})
	t.Run("exhausted", func(t *testing.T) {
		e := NewEngine(2, nil)
		_, err := e.Alias(1)
		require.NoError(t, err)
		_, err = e.Alias(2)
		require.NoError(t, err)
		_, err = e.Alias(3)
		require.ErrorIs(t, err, errors.ErrBusy)
	})
	t.Run("range", func(t *testing.T) {
		e := NewEngine(2, nil)
		_, err := e.Alias(0)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
		_, err = e.Alias(MaxConf + 1)
		require.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
	t.Run("check", func(t *testing.T) {
		e := NewEngine(2, nil)
		a, err := e.Alias(9)
		require.NoError(t, err)
		refs := refCount{9: 1}
		require.False(t, e.Check(9, refs))
		refs[9] = 0
		require.True(t, e.Check(9, refs))
		require.Zero(t, e.Lookup(9))
		b, err := e.Alias(10)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestResize(t *testing.T) {
	e := NewEngine(4, nil)
	_, err := e.Alias(1)
	require.NoError(t, err)
	_, err = e.Alias(2)
	require.NoError(t, err)
	a, err := e.Alias(3)
	require.NoError(t, err)
	require.Equal(t, 3, a)

	require.ErrorIs(t, e.Resize(2), errors.ErrBusy)
	require.ErrorIs(t, e.Resize(0), errors.ErrInvalidArgument)

	require.NoError(t, e.Resize(8))
	require.Equal(t, 4, e.MaxActive())
	e.Talk(Next, a, chunkOf(5))
	e.Rotate()
	require.Equal(t, 8, e.MaxActive())
	require.Equal(t, int32(5), e.Sum(Current, a)[0])
	require.Equal(t, []int{1, 2, 3}, e.Active())

	t.Run("shrink pending", func(t *testing.T) {
		e := NewEngine(4, nil)
		a, err := e.Alias(10)
		require.NoError(t, err)
		require.Equal(t, 1, a)
		require.NoError(t, e.Resize(1))

		_, err = e.Alias(20)
		require.ErrorIs(t, err, errors.ErrBusy)

		e.Rotate()
		require.Equal(t, 1, e.MaxActive())
		require.Zero(t, e.Lookup(20))
		e.Talk(Next, a, chunkOf(1))
		require.True(t, e.Check(10, refCount{}))

		e.Rotate()
		a, err = e.Alias(20)
		require.NoError(t, err)
		require.Equal(t, 1, a)
		e.Talk(Next, a, chunkOf(1))
	})

	t.Run("shrink then grow before rotation", func(t *testing.T) {
		e := NewEngine(2, nil)
		require.NoError(t, e.Resize(1))
		require.NoError(t, e.Resize(3))
		for n := 1; n <= 2; n++ {
			_, err := e.Alias(n)
			require.NoError(t, err)
		}
		_, err := e.Alias(3)
		require.ErrorIs(t, err, errors.ErrBusy)

		e.Rotate()
		require.Equal(t, 3, e.MaxActive())
		_, err = e.Alias(3)
		require.NoError(t, err)
		for n := 1; n <= 3; n++ {
			e.Talk(Next, e.Lookup(n), chunkOf(1))
		}
	})
}

func TestSetting(t *testing.T) {
	s, err := Setting{Mode: Conf, Num: 5}.Normalize(10)
	require.NoError(t, err)
	require.Equal(t, Talker|Listener, s.Flags)
	require.True(t, s.UsesConference())
	require.False(t, s.IsMonitor())

	s, err = Setting{Mode: MonitorRx, Num: 3}.Normalize(10)
	require.NoError(t, err)
	require.True(t, s.IsMonitor())

	_, err = Setting{Mode: MonitorTx, Num: 11}.Normalize(10)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = Setting{Mode: ConfAnn}.Normalize(10)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = Setting{Mode: Mode(99)}.Normalize(10)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	s, err = Setting{Mode: Normal, Num: 4, Flags: Talker}.Normalize(10)
	require.NoError(t, err)
	require.Equal(t, Setting{}, s)
	require.Equal(t, "conf-ann-mon", ConfAnnMon.String())
}

func TestConference(t *testing.T) {
	t.Run("real listeners hear others", func(t *testing.T) {
		e := NewEngine(4, nil)
		a := join(t, e, Setting{Mode: Conf, Num: 1})
		b := join(t, e, Setting{Mode: Conf, Num: 1})
		c := join(t, e, Setting{Mode: ConfMon, Num: 1})

		a.RealReceive(e, chunkOf(100))
		b.RealReceive(e, chunkOf(-40))
		c.RealReceive(e, chunkOf(7000))
		e.Rotate()
		e.ApplyLinks()

		var ta, tb, tc Chunk
		a.RealTransmit(e, &ta)
		b.RealTransmit(e, &tb)
		c.RealTransmit(e, &tc)
		require.Equal(t, *chunkOf(-40), ta)
		require.Equal(t, *chunkOf(100), tb)
		require.Equal(t, int16(60), tc[0])
		require.Equal(t, int16(60+2*7), tc[7])
	})
	t.Run("announce does not listen", func(t *testing.T) {
		e := NewEngine(4, nil)
		a := join(t, e, Setting{Mode: ConfAnn, Num: 2})
		b := join(t, e, Setting{Mode: Conf, Num: 2})
		a.RealReceive(e, chunkOf(30))
		b.RealReceive(e, chunkOf(0))
		e.Rotate()
		ta := *chunkOf(1)
		var tb Chunk
		a.RealTransmit(e, &ta)
		b.RealTransmit(e, &tb)
		require.Equal(t, *chunkOf(1), ta)
		require.Equal(t, *chunkOf(30), tb)
	})
	t.Run("announce monitor hears itself", func(t *testing.T) {
		e := NewEngine(4, nil)
		a := join(t, e, Setting{Mode: ConfAnnMon, Num: 2})
		a.RealReceive(e, chunkOf(30))
		e.Rotate()
		var ta Chunk
		a.RealTransmit(e, &ta)
		require.Equal(t, *chunkOf(30), ta)
	})
	t.Run("pseudo", func(t *testing.T) {
		e := NewEngine(4, nil)
		r := join(t, e, Setting{Mode: Conf, Num: 3})
		p := join(t, e, Setting{Mode: Conf, Num: 3})

		r.RealReceive(e, chunkOf(10))
		e.Rotate()
		p.PseudoReceive(e, chunkOf(200))
		e.ApplyLinks()
		read := p.PseudoTransmit(e, chunkOf(555))
		var tr Chunk
		r.RealTransmit(e, &tr)
		require.Equal(t, *chunkOf(10), read)
		require.Equal(t, *chunkOf(200), tr)
	})
	t.Run("pseudo normal loops back", func(t *testing.T) {
		e := NewEngine(4, nil)
		p := join(t, e, Setting{})
		p.PseudoReceive(e, chunkOf(3))
		require.Equal(t, *chunkOf(3), p.PseudoTransmit(e, chunkOf(3)))
	})
	t.Run("clip", func(t *testing.T) {
		e := NewEngine(4, nil)
		a := join(t, e, Setting{Mode: ConfMon, Num: 4})
		b := join(t, e, Setting{Mode: ConfAnn, Num: 4})
		c := join(t, e, Setting{Mode: ConfAnn, Num: 4})
		b.RealReceive(e, &Chunk{30000, -30000})
		c.RealReceive(e, &Chunk{30000, -30000})
		e.Rotate()
		var ta Chunk
		a.RealTransmit(e, &ta)
		require.Equal(t, int16(0x7FFF), ta[0])
		require.Equal(t, int16(-0x7FFF), ta[1])
	})
}

func TestLinks(t *testing.T) {
	e := NewEngine(4, nil)
	a := join(t, e, Setting{Mode: ConfAnn, Num: 1})
	b := join(t, e, Setting{Mode: ConfMon, Num: 2})
	c := join(t, e, Setting{Mode: ConfMon, Num: 3})

	require.NoError(t, e.AddLink(1, 2))
	require.NoError(t, e.AddLink(1, 3))
	require.NoError(t, e.AddLink(1, 3))
	require.Len(t, e.Links(), 2)
	require.ErrorIs(t, e.AddLink(1, 1), errors.ErrInvalidArgument)
	require.NoError(t, e.AddLink(9, 2)) // no alias yet, skipped

	a.RealReceive(e, chunkOf(50))
	e.Rotate()
	e.ApplyLinks()
	var tb, tc Chunk
	b.RealTransmit(e, &tb)
	c.RealTransmit(e, &tc)
	require.Equal(t, *chunkOf(50), tb)
	require.Equal(t, *chunkOf(50), tc)

	require.NoError(t, e.RemoveLink(1, 3))
	require.ErrorIs(t, e.RemoveLink(1, 3), errors.ErrInvalidArgument)
	e.ClearLinks()
	require.Empty(t, e.Links())
}

// The real-and-pseudo reader sees the next sum as built so far this tick, so only
// channels received before it are heard. Transmit uses the completed current sum.
func TestRealAndPseudoOffsets(t *testing.T) {
	t.Run("received after peer", func(t *testing.T) {
		e := NewEngine(4, nil)
		b := join(t, e, Setting{Mode: Conf, Num: 5})
		a := join(t, e, Setting{Mode: RealAndPseudo, Num: 5})
		b.RealReceive(e, chunkOf(20))
		read := a.RealReceive(e, chunkOf(300))
		require.Equal(t, sumChunks(chunkOf(20), chunkOf(300)), read)
	})
	t.Run("received before peer", func(t *testing.T) {
		e := NewEngine(4, nil)
		a := join(t, e, Setting{Mode: RealAndPseudo, Num: 5})
		b := join(t, e, Setting{Mode: Conf, Num: 5})
		read := a.RealReceive(e, chunkOf(300))
		b.RealReceive(e, chunkOf(20))
		require.Equal(t, *chunkOf(300), read)

		e.Rotate()
		e.ApplyLinks()
		ta := *chunkOf(1000)
		var tb Chunk
		a.RealTransmit(e, &ta)
		b.RealTransmit(e, &tb)
		// the line hears the peer and its own pseudo half
		require.Equal(t, sumChunks(chunkOf(20), chunkOf(1000)), ta)
		// the peer transmits later in the same pass and also hears the pseudo half
		require.Equal(t, sumChunks(chunkOf(300), chunkOf(1000)), tb)
	})
}

func sumChunks(cs ...*Chunk) Chunk {
	var out Chunk
	for _, c := range cs {
		for i := range out {
			out[i] += c[i]
		}
	}
	return out
}

func TestConferenceExactness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewEngine(8, nil)
		nReal := rapid.IntRange(1, 5).Draw(t, "real")
		nPseudo := rapid.IntRange(0, 4).Draw(t, "pseudo")
		var members []*Member
		pseudo := make(map[*Member]bool)
		for i := 0; i < nReal+nPseudo; i++ {
			mode := rapid.SampledFrom([]Mode{Conf, ConfAnn, ConfMon}).Draw(t, "mode")
			m := join(t, e, Setting{Mode: mode, Num: 1})
			members = append(members, m)
			pseudo[m] = i >= nReal
		}
		sample := rapid.Int16Range(-1000, 1000)
		for tick := 0; tick < 3; tick++ {
			in := make(map[*Member]*Chunk)
			for _, m := range members {
				var c Chunk
				for i := range c {
					c[i] = sample.Draw(t, "sample")
				}
				in[m] = &c
			}
			for _, m := range members {
				if !pseudo[m] {
					m.RealReceive(e, in[m])
				}
			}
			e.Rotate()
			for _, m := range members {
				if pseudo[m] {
					m.PseudoReceive(e, in[m])
				}
			}
			e.ApplyLinks()
			for _, m := range members {
				var got Chunk
				if pseudo[m] {
					got = m.PseudoTransmit(e, &Chunk{})
				} else {
					m.RealTransmit(e, &got)
				}
				if !m.Has(Listener) {
					continue
				}
				var want Chunk
				for _, o := range members {
					if o == m || !o.Has(Talker) {
						continue
					}
					for i := range want {
						want[i] += in[o][i]
					}
				}
				if got != want {
					t.Fatalf("tick %d: member heard %v, others contributed %v", tick, got, want)
				}
			}
		}
	})
}

func TestAliasLifecycle(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		const channels = 6
		e := NewEngine(4, nil)
		settings := make([]Setting, channels)
		refs := refCount{}

		t.Repeat(map[string]func(*rapid.T){
			"set": func(t *rapid.T) {
				ch := rapid.IntRange(0, channels-1).Draw(t, "chan")
				s := Setting{
					Mode: rapid.SampledFrom([]Mode{Normal, Conf, ConfMon, MonitorRx}).Draw(t, "mode"),
					Num:  rapid.IntRange(1, 5).Draw(t, "num"),
				}
				s, err := s.Normalize(channels)
				require.NoError(t, err)
				if s.UsesConference() && e.Lookup(s.Num) == 0 && len(e.Active()) == e.MaxActive() {
					_, err := e.Alias(s.Num)
					require.ErrorIs(t, err, errors.ErrBusy)
					return
				}
				old := settings[ch]
				if s.UsesConference() {
					_, err := e.Alias(s.Num)
					require.NoError(t, err)
					refs[s.Num]++
				}
				settings[ch] = s
				if old.UsesConference() {
					refs[old.Num]--
					e.Check(old.Num, refs)
				}
			},
			"clear": func(t *rapid.T) {
				ch := rapid.IntRange(0, channels-1).Draw(t, "chan")
				old := settings[ch]
				settings[ch] = Setting{}
				if old.UsesConference() {
					refs[old.Num]--
					e.Check(old.Num, refs)
				}
			},
			"": func(t *rapid.T) {
				for n := 1; n <= 5; n++ {
					live := e.Lookup(n) != 0
					require.Equal(t, refs[n] > 0, live, "conference %d", n)
				}
			},
		})
	})
}
