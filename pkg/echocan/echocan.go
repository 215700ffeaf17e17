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

package echocan

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
)

// MaxTaps bounds the tail length a canceller may be asked for.
const MaxTaps = 1024

// Params configure a canceller instance.
type Params struct {
	Taps int
	// Keyed holds provider specific parameters.
	Keyed map[string]int64
}

// Provider creates canceller instances.
type Provider interface {
	Name() string
	Create(p Params) (Instance, error)
}

// Instance cancels the echo of ref found in sig.
type Instance interface {
	// Update removes echo from sig in place. ref and sig have equal length.
	Update(ref, sig []int16)
	// TrainTap sets tap pos to val. It returns true once training is finished.
	TrainTap(pos int, val int16) bool
	Free()
}

// Loader tries to make the provider called name available, usually by calling Register.
type Loader func(name string) error

type entry struct {
	p    Provider
	refs atomic.Int32
}

// Registry holds the available providers by case-insensitive name.
type Registry struct {
	log    logger.Logger
	loader Loader

	mu        sync.RWMutex
	providers map[string]*entry
	// names the loader could not provide
	missing *lru.Cache[string, struct{}]
}

func NewRegistry(log logger.Logger, loader Loader) *Registry {
	if log == nil {
		log = logger.GetLogger()
	}
	missing, err := lru.New[string, struct{}](64)
	if err != nil {
		panic(err)
	}
	return &Registry{
		log:       log,
		loader:    loader,
		providers: make(map[string]*entry),
		missing:   missing,
	}
}

func key(name string) string {
	return strings.ToLower(name)
}

func (r *Registry) Register(p Provider) error {
	k := key(p.Name())
	if k == "" {
		return errors.ErrInvalidArgf("empty echo canceller name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[k]; ok {
		return errors.ErrBusyf("echo canceller %q already registered", p.Name())
	}
	r.providers[k] = &entry{p: p}
	r.missing.Remove(k)
	r.log.Infow("registered echo canceller", "name", p.Name())
	return nil
}

// Unregister removes a provider. Providers with live instances cannot be removed.
func (r *Registry) Unregister(name string) error {
	k := key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.providers[k]
	if !ok {
		return errors.ErrNoSuchCapability
	}
	if n := e.refs.Load(); n > 0 {
		return errors.ErrBusyf("echo canceller %q has %d users", name, n)
	}
	delete(r.providers, k)
	r.log.Infow("unregistered echo canceller", "name", name)
	return nil
}

// Names lists registered providers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for _, e := range r.providers {
		out = append(out, e.p.Name())
	}
	slices.Sort(out)
	return out
}

func (r *Registry) lookup(k string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[k]
	if !ok {
		return nil
	}
	e.refs.Add(1)
	return e
}

// Find takes a reference on the provider called name. If it is not registered the
// loader gets a single chance to provide it.
func (r *Registry) Find(name string) (*Handle, error) {
	k := key(name)
	if e := r.lookup(k); e != nil {
		return &Handle{r: r, e: e}, nil
	}
	if r.loader == nil || r.missing.Contains(k) {
		return nil, errors.ErrNoSuchCapability
	}
	if err := r.loader(name); err != nil {
		r.log.Debugw("cannot load echo canceller", "name", name, "error", err)
	}
	if e := r.lookup(k); e != nil {
		return &Handle{r: r, e: e}, nil
	}
	r.missing.Add(k, struct{}{})
	return nil, errors.ErrNoSuchCapability
}

// Users returns the number of references on provider name.
func (r *Registry) Users(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.providers[key(name)]; ok {
		return int(e.refs.Load())
	}
	return 0
}

// Handle is a reference on a registered provider.
type Handle struct {
	r    *Registry
	e    *entry
	once sync.Once
}

func (h *Handle) Provider() Provider {
	return h.e.p
}

func (h *Handle) Release() {
	h.once.Do(func() {
		h.e.refs.Add(-1)
	})
}

// Attachment is a live instance together with the provider that created it.
type Attachment struct {
	h    *Handle
	inst Instance
}

// Attach creates an instance of provider name. On failure no reference is kept.
func (r *Registry) Attach(name string, p Params) (*Attachment, error) {
	if p.Taps <= 0 || p.Taps > MaxTaps {
		return nil, errors.ErrInvalidArgf("echo canceller taps %d", p.Taps)
	}
	h, err := r.Find(name)
	if err != nil {
		return nil, err
	}
	inst, err := h.Provider().Create(p)
	if err != nil {
		h.Release()
		return nil, err
	}
	return &Attachment{h: h, inst: inst}, nil
}

func (a *Attachment) Name() string {
	return a.h.Provider().Name()
}

func (a *Attachment) Update(ref, sig []int16) {
	a.inst.Update(ref, sig)
}

func (a *Attachment) TrainTap(pos int, val int16) bool {
	return a.inst.TrainTap(pos, val)
}

// Close frees the instance and drops the provider reference.
func (a *Attachment) Close() {
	if a == nil || a.inst == nil {
		return
	}
	a.inst.Free()
	a.inst = nil
	a.h.Release()
}
