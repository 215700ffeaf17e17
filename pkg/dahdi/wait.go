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

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// waker lets any number of goroutines wait for the next state change.
type waker struct {
	mu sync.Mutex
	ch chan struct{}
}

// wait returns a channel closed by the next call to wake.
func (w *waker) wait() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch == nil {
		w.ch = make(chan struct{})
	}
	return w.ch
}

func (w *waker) wake() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ch != nil {
		close(w.ch)
		w.ch = nil
	}
}

// waitFor blocks until cond, evaluated under mu, returns true.
func waitFor(ctx context.Context, mu sync.Locker, w *waker, cond func() bool) error {
	for {
		mu.Lock()
		// subscribe while holding mu so no wake between cond and wait is lost
		c := w.wait()
		ok := cond()
		mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.ErrInterrupted
		case <-c:
		}
	}
}
