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
	"context"
	"sync"
	"time"

	"github.com/frostbyte73/core"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

// Timer is a user timer driven by the master span tick.
type Timer struct {
	reg *Registry

	mu      sync.Mutex
	period  int // samples, 0 when stopped
	left    int
	tripped int
	pinged  int
	wake    waker
	closed  core.Fuse
}

// NewTimer creates a stopped timer.
func (r *Registry) NewTimer() *Timer {
	t := &Timer{reg: r}
	r.timerMu.Lock()
	r.timers[t] = struct{}{}
	r.timerMu.Unlock()
	return t
}

// Set starts the timer with the given period, rounded to whole chunks. Zero stops it.
func (t *Timer) Set(d time.Duration) error {
	if d < 0 {
		return errors.ErrInvalidArgf("timer period %v", d)
	}
	n := int(d * rbs.SampleRate / time.Second)
	n -= n % ChunkSize
	if d > 0 && n == 0 {
		n = ChunkSize
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = n
	t.left = n
	return nil
}

// Ping makes the next Wait return with a ping.
func (t *Timer) Ping() {
	t.mu.Lock()
	t.pinged++
	t.mu.Unlock()
	t.wake.wake()
}

// Tripped returns and clears the number of expirations.
func (t *Timer) Tripped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.tripped
	t.tripped = 0
	return n
}

func (t *Timer) tick(samples int) {
	t.mu.Lock()
	fired := false
	if t.period > 0 {
		t.left -= samples
		for t.left <= 0 {
			t.left += t.period
			t.tripped++
			fired = true
		}
	}
	t.mu.Unlock()
	if fired {
		t.wake.wake()
	}
}

// Wait blocks until the timer expires or is pinged. It reports the event by kind,
// consuming one ping before any expiration.
func (t *Timer) Wait(ctx context.Context) (TimerEvent, error) {
	var ev TimerEvent
	err := waitFor(ctx, &t.mu, &t.wake, func() bool {
		switch {
		case t.closed.IsBroken():
			return true
		case t.pinged > 0:
			t.pinged--
			ev = TimerPing
		case t.tripped > 0:
			t.tripped = 0
			ev = TimerExpired
		default:
			return false
		}
		return true
	})
	if err == nil && t.closed.IsBroken() {
		return 0, errors.ErrInterrupted
	}
	return ev, err
}

// Close stops the timer and wakes any waiter.
func (t *Timer) Close() {
	t.closed.Break()
	t.reg.timerMu.Lock()
	delete(t.reg.timers, t)
	t.reg.timerMu.Unlock()
	t.wake.wake()
}

type TimerEvent int

const (
	TimerExpired TimerEvent = iota + 1
	TimerPing
)
