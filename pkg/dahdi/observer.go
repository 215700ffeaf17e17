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
	"time"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
)

// Observer receives pipeline counters. It is called from the tick path and must not block.
type Observer interface {
	TickDone(d time.Duration)
	MissedTick()
	SpanReceived(span string)
	EventQueued(e event.Event)
	EventDropped(e event.Event)
	MasterChanged(span string)
}

type nopObserver struct{}

func (nopObserver) TickDone(time.Duration) {}
func (nopObserver) MissedTick() {}
func (nopObserver) SpanReceived(string) {}
func (nopObserver) EventQueued(event.Event) {}
func (nopObserver) EventDropped(event.Event) {}
func (nopObserver) MasterChanged(string) {}
