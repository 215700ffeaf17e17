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

// Member is the conference state of one channel: its setting, its alias and the
// contributions it made this tick.
type Member struct {
	Setting
	Alias int

	last    Chunk // contributed by receive or pseudo receive
	lastTx  Chunk // contributed by transmit (real-and-pseudo only)
	hasLast bool
}

// Reset clears the recorded contributions.
func (m *Member) Reset() {
	m.last, m.lastTx, m.hasLast = Chunk{}, Chunk{}, false
}

func (m *Member) InConference() bool {
	return m.Alias != 0 && m.UsesConference()
}

func (m *Member) talks() bool {
	switch m.Mode {
	case Conf, ConfAnn, ConfAnnMon, RealAndPseudo:
		return m.Has(Talker)
	}
	return false
}

// RealReceive runs on a physical channel before rotation. The line audio rx is added
// into the next accumulator. The returned chunk is what the channel's reader sees.
func (m *Member) RealReceive(e *Engine, rx *Chunk) Chunk {
	m.Reset()
	if !m.InConference() {
		return *rx
	}
	if m.talks() {
		m.last = e.Talk(Next, m.Alias, rx)
		m.hasLast = true
	}
	read := *rx
	if m.Mode == RealAndPseudo && m.Has(PseudoListener) {
		// reads the partial next sum: only channels received earlier this tick are heard
		e.Mix(&read, Next, m.Alias, &m.last)
	}
	return read
}

// RealTransmit runs on a physical channel after rotation and links. tx holds the
// user data for the line and is replaced with what the line hears.
func (m *Member) RealTransmit(e *Engine, tx *Chunk) {
	if !m.InConference() {
		return
	}
	switch m.Mode {
	case Conf, ConfMon:
		if m.Has(Listener) {
			e.Mix(tx, Current, m.Alias, &m.last)
		}
	case ConfAnnMon:
		if m.Has(Listener) {
			e.Mix(tx, Current, m.Alias, nil)
		}
	case RealAndPseudo:
		if m.Has(PseudoTalker) {
			m.lastTx = e.Talk(Current, m.Alias, tx)
		}
		if m.Has(Listener) {
			e.Listen(tx, Current, m.Alias, &m.last)
		}
	}
}

// PseudoReceive runs on a pseudo channel after rotation. in is the data the channel
// transmitted on the previous tick.
func (m *Member) PseudoReceive(e *Engine, in *Chunk) {
	m.Reset()
	if !m.InConference() || m.Mode == RealAndPseudo {
		return
	}
	if m.talks() {
		m.last = e.Talk(Current, m.Alias, in)
		m.hasLast = true
	}
}

// PseudoTransmit runs on a pseudo channel after links and returns the chunk delivered
// to its reader. loop is what the pseudo channel would read without a conference.
func (m *Member) PseudoTransmit(e *Engine, loop *Chunk) Chunk {
	if !m.InConference() {
		return *loop
	}
	var out Chunk
	switch m.Mode {
	case Conf, ConfMon:
		if m.Has(Listener) {
			e.Listen(&out, Current, m.Alias, &m.last)
		}
	case ConfAnnMon:
		if m.Has(Listener) {
			e.Listen(&out, Current, m.Alias, nil)
		}
	}
	return out
}

// LastContribution returns what the member added to a conference this tick.
func (m *Member) LastContribution() (Chunk, bool) {
	return m.last, m.hasLast
}
