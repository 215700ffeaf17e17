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

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/law"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

// SpanConfig describes a span and its channels.
type SpanConfig struct {
	Name     string
	Desc     string
	Channels int
	Law      law.Law
	// RBS selects robbed-bit signaling. Otherwise the driver signals hook state.
	RBS bool
	Sig rbs.SigType
}

// Span is a group of channels driven by one hardware timing source.
type Span struct {
	Name string
	Desc string

	id      int
	reg     *Registry
	drv     Driver
	law     law.Law
	rbs     bool
	running bool
	alarms  Alarm
	prefer  bool
	chans   []*Channel
}

// NewSpan creates a span with its channels. It is not usable until registered.
func NewSpan(cfg SpanConfig, drv Driver) (*Span, error) {
	if cfg.Channels <= 0 {
		return nil, errors.ErrInvalidArgf("span %q with %d channels", cfg.Name, cfg.Channels)
	}
	if drv == nil {
		return nil, errors.ErrInvalidArgf("span %q without driver", cfg.Name)
	}
	s := &Span{
		Name: cfg.Name,
		Desc: cfg.Desc,
		drv:  drv,
		law:  cfg.Law,
		rbs:  cfg.RBS,
	}
	if s.law == law.Default {
		s.law = law.MuLaw
	}
	s.chans = make([]*Channel, cfg.Channels)
	for i := range s.chans {
		s.chans[i] = newChannel(s, i+1, cfg.Sig)
	}
	return s, nil
}

func (s *Span) ID() int {
	return s.id
}

func (s *Span) Law() law.Law {
	return s.law
}

func (s *Span) Driver() Driver {
	return s.drv
}

// Channels returns the span's channels in position order.
func (s *Span) Channels() []*Channel {
	return s.chans
}

// Chan returns the channel at position pos, starting at 1.
func (s *Span) Chan(pos int) (*Channel, error) {
	if pos < 1 || pos > len(s.chans) {
		return nil, fmt.Errorf("span %s position %d: %w", s.Name, pos, errors.ErrNoSuchChannel)
	}
	return s.chans[pos-1], nil
}

// SpanStatus is a snapshot of a span.
type SpanStatus struct {
	ID       int
	Name     string
	Desc     string
	Channels int
	Alarms   Alarm
	Running  bool
	Master   bool
	RBS      bool
	Law      law.Law
}

// Status returns a snapshot of the span.
func (s *Span) Status() SpanStatus {
	st := SpanStatus{
		ID:       s.id,
		Name:     s.Name,
		Desc:     s.Desc,
		Channels: len(s.chans),
		RBS:      s.rbs,
		Law:      s.law,
	}
	if r := s.reg; r != nil {
		r.mu.RLock()
		st.Alarms = s.alarms
		st.Running = s.running
		st.Master = r.master == s
		r.mu.RUnlock()
	}
	return st
}
