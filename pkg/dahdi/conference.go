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
	"slices"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// SetConference changes the conferencing mode of ch. A conference alias is taken for
// conference modes and the previous conference is released when nobody uses it anymore.
func (r *Registry) SetConference(ch *Channel, s conf.Setting) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := s.Normalize(len(r.chans))
	if err != nil {
		return err
	}
	if s.IsMonitor() {
		if _, err := r.channelLocked(s.Num); err != nil {
			return errors.ErrInvalidArgf("monitored channel %d does not exist", s.Num)
		}
	}
	if s.Mode == conf.RealAndPseudo && ch.IsPseudo() {
		return errors.ErrInvalidArgf("real-and-pseudo mode on pseudo channel %s", ch)
	}
	alias := 0
	if s.UsesConference() {
		if alias, err = r.conf.Alias(s.Num); err != nil {
			return err
		}
	}

	ch.mu.Lock()
	old := ch.member.Setting
	ch.member = conf.Member{Setting: s, Alias: alias}
	ch.mu.Unlock()

	if old.UsesConference() && (old.Num != s.Num || !s.UsesConference()) {
		r.conf.Check(old.Num, r)
	}
	return nil
}

// Conference returns the conferencing mode of ch.
func (r *Registry) Conference(ch *Channel) conf.Setting {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.member.Setting
}

// ReferencesConf reports whether any channel is in conference n. The tick lock must be held.
func (r *Registry) ReferencesConf(n int) bool {
	for _, ch := range r.chans {
		if ch != nil && ch.member.UsesConference() && ch.member.Num == n {
			return true
		}
	}
	return false
}

// AddLink makes conference dst hear conference src.
func (r *Registry) AddLink(src, dst int) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	return r.conf.AddLink(src, dst)
}

func (r *Registry) RemoveLink(src, dst int) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	return r.conf.RemoveLink(src, dst)
}

// ResizeConferences changes the number of conferences that can be active at once.
func (r *Registry) ResizeConferences(n int) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	return r.conf.Resize(n)
}

// ConfMember is a channel taking part in a conference.
type ConfMember struct {
	Channel int
	Name    string
	Mode    conf.Mode
	Flags   conf.Flags
}

// ConfInfo describes one active conference.
type ConfInfo struct {
	Num     int
	Alias   int
	Members []ConfMember
}

// ConfDiag lists the active conferences with their members, and the links between them.
func (r *Registry) ConfDiag() ([]ConfInfo, []conf.Link) {
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ConfInfo
	for _, n := range r.conf.Active() {
		ci := ConfInfo{Num: n, Alias: r.conf.Lookup(n)}
		for _, ch := range r.chans {
			if ch == nil || !ch.member.UsesConference() || ch.member.Num != n {
				continue
			}
			ci.Members = append(ci.Members, ConfMember{
				Channel: ch.num,
				Name:    ch.name,
				Mode:    ch.member.Mode,
				Flags:   ch.member.Flags,
			})
		}
		out = append(out, ci)
	}
	slices.SortFunc(out, func(a, b ConfInfo) int { return a.Num - b.Num })
	return out, r.conf.Links()
}
