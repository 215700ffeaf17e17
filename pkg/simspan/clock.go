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

package simspan

import (
	"context"
	"time"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
)

// Clock drives a registry from a ticker in place of a hardware interrupt.
type Clock struct {
	log      logger.Logger
	reg      *dahdi.Registry
	obs      dahdi.Observer
	interval time.Duration
	drivers  []*Driver
}

// NewClock creates a clock ticking r every interval. obs is told about missed ticks and may be nil.
func NewClock(r *dahdi.Registry, interval time.Duration, obs dahdi.Observer, log logger.Logger) *Clock {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Clock{log: log, reg: r, obs: obs, interval: interval}
}

// Attach makes the clock feed read chunks of d before each tick.
func (c *Clock) Attach(d *Driver) {
	c.drivers = append(c.drivers, d)
}

// Step runs a single tick.
func (c *Clock) Step() {
	for _, d := range c.drivers {
		d.prepare()
	}
	c.reg.Tick()
}

// Run ticks until ctx is done. When the process falls behind, the missed ticks are
// reported and skipped, not replayed.
func (c *Clock) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if missed := int(now.Sub(last)/c.interval) - 1; missed > 0 {
				c.log.Debugw("ticks missed", "count", missed)
				if c.obs != nil {
					for i := 0; i < missed; i++ {
						c.obs.MissedTick()
					}
				}
			}
			last = now
			c.Step()
		}
	}
}
