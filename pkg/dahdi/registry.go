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
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/echocan"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/event"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/internal/ringbuf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

const (
	// MaxChannels bounds the channel numbers handed out by a registry.
	MaxChannels = 1024
	MaxSpans    = 128

	DefaultBlockSize     = 160
	DefaultNumBufs       = 2
	DefaultEventQueueLen = 64
	DefaultPauseLen      = 2 * time.Second
)

type Options struct {
	Logger   logger.Logger
	Observer Observer

	// MaxConfs is the number of conferences that can be active at once.
	MaxConfs      int
	EventQueueLen int

	BlockSize int
	NumBufs   int
	TxPolicy  ringbuf.Policy
	RxPolicy  ringbuf.Policy

	Timing   rbs.Timing
	Dial     tones.DialParams
	PauseLen time.Duration

	// EchoLoader is asked for echo canceller providers that are not registered.
	EchoLoader echocan.Loader
}

func DefaultOptions() Options {
	return Options{
		MaxConfs:      conf.DefaultMaxActive,
		EventQueueLen: DefaultEventQueueLen,
		BlockSize:     DefaultBlockSize,
		NumBufs:       DefaultNumBufs,
		TxPolicy:      ringbuf.Immediate,
		RxPolicy:      ringbuf.Immediate,
		Timing:        rbs.DefaultTiming(false),
		Dial:          tones.DefaultDialParams(),
		PauseLen:      DefaultPauseLen,
	}
}

func (o *Options) setDefaults() {
	d := DefaultOptions()
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.MaxConfs <= 0 {
		o.MaxConfs = d.MaxConfs
	}
	if o.EventQueueLen <= 0 {
		o.EventQueueLen = d.EventQueueLen
	}
	if o.BlockSize == 0 {
		o.BlockSize = d.BlockSize
	}
	if o.NumBufs == 0 {
		o.NumBufs = d.NumBufs
	}
	if o.Timing == (rbs.Timing{}) {
		o.Timing = d.Timing
	}
	if o.Dial == (tones.DialParams{}) {
		o.Dial = d.Dial
	}
	if o.PauseLen <= 0 {
		o.PauseLen = d.PauseLen
	}
}

// Registry owns every span and channel and runs the per-tick pipeline.
type Registry struct {
	opts Options
	log  logger.Logger
	obs  Observer

	Zones *tones.ZoneRegistry
	Echo  *echocan.Registry

	// tick serializes the pipeline with conference changes
	tick sync.Mutex
	conf *conf.Engine

	mu     sync.RWMutex
	spans  [MaxSpans]*Span
	chans  []*Channel // by channel number - 1
	pseudo []*Channel
	master *Span
	ticks  uint64

	timerMu sync.Mutex
	timers  map[*Timer]struct{}

	closed core.Fuse
}

func NewRegistry(opts Options) *Registry {
	opts.setDefaults()
	r := &Registry{
		opts:   opts,
		log:    opts.Logger,
		obs:    opts.Observer,
		Zones:  tones.NewZoneRegistry(opts.Logger),
		conf:   conf.NewEngine(opts.MaxConfs, opts.Logger),
		timers: make(map[*Timer]struct{}),
	}
	r.Echo = echocan.NewRegistry(r.log, opts.EchoLoader)
	if err := r.Echo.Register(echocan.NLMS{}); err != nil {
		r.log.Warnw("cannot register echo canceller", err)
	}
	if err := r.Echo.Register(echocan.Null{}); err != nil {
		r.log.Warnw("cannot register echo canceller", err)
	}
	return r
}

func (r *Registry) Options() Options {
	return r.opts
}

// allocNums finds n consecutive free channel numbers. r.mu must be held.
func (r *Registry) allocNums(n int) (int, error) {
	run := 0
	for i := 0; i < MaxChannels; i++ {
		if i < len(r.chans) && r.chans[i] != nil {
			run = 0
			continue
		}
		run++
		if run == n {
			first := i - n + 1
			if need := i + 1; need > len(r.chans) {
				r.chans = append(r.chans, make([]*Channel, need-len(r.chans))...)
			}
			return first + 1, nil
		}
	}
	return 0, errors.ErrBusyf("no room for %d channels", n)
}

// Register adds a span, numbers its channels and starts it.
func (r *Registry) Register(ctx context.Context, s *Span, preferMaster bool) error {
	_, span := Tracer.Start(ctx, "Registry.Register", trace.WithAttributes(
		attribute.String("span", s.Name),
		attribute.Int("channels", len(s.chans)),
	))
	defer span.End()
	if err := r.register(s, preferMaster); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.drv.Startup(s); err != nil {
		r.log.Warnw("span startup failed", err, "span", s.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = r.unregister(s, false)
		return err
	}
	r.mu.Lock()
	s.running = true
	r.electLocked()
	r.mu.Unlock()
	r.log.Infow("span registered", "span", s.Name, "id", s.id, "channels", len(s.chans))
	return nil
}

func (r *Registry) register(s *Span, preferMaster bool) error {
	if r.closed.IsBroken() {
		return errors.ErrBusyf("registry closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.reg != nil {
		return errors.ErrBusyf("span %s already registered", s.Name)
	}
	id := 0
	for i, o := range r.spans {
		if o == nil {
			id = i + 1
			break
		}
	}
	if id == 0 {
		return errors.ErrBusyf("too many spans")
	}
	first, err := r.allocNums(len(s.chans))
	if err != nil {
		return err
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("span%d", id)
	}
	for i, ch := range s.chans {
		ch.name = fmt.Sprintf("%s/%d", s.Name, ch.pos)
		if err := ch.attach(r, first+i); err != nil {
			for _, c := range s.chans[:i] {
				r.chans[c.num-1] = nil
			}
			return err
		}
		r.chans[ch.num-1] = ch
	}
	s.id = id
	s.reg = r
	s.prefer = preferMaster
	r.spans[id-1] = s
	return nil
}

// Unregister stops a span and releases its channels.
func (r *Registry) Unregister(s *Span) error {
	return r.unregister(s, true)
}

func (r *Registry) unregister(s *Span, shutdown bool) error {
	r.mu.RLock()
	ok := s.reg == r
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("span %s: %w", s.Name, errors.ErrNoSuchSpan)
	}
	for _, ch := range s.chans {
		_ = ch.Close()
		ch.QueueEvent(event.Removed)
	}
	if shutdown {
		if err := s.drv.Shutdown(s); err != nil {
			r.log.Warnw("span shutdown failed", err, "span", s.Name)
		}
	}
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range s.chans {
		if ch.num > 0 && ch.num <= len(r.chans) {
			r.chans[ch.num-1] = nil
		}
		ch.mu.Lock()
		ch.disableEchoLocked()
		ch.wake.wake()
		ch.mu.Unlock()
	}
	r.spans[s.id-1] = nil
	s.reg = nil
	s.running = false
	if r.master == s {
		r.master = nil
		r.electLocked()
	}
	r.log.Infow("span unregistered", "span", s.Name)
	return nil
}

// electLocked picks the timing master: the first alarm-free running span that asked for it,
// else the first alarm-free running span, else the first running span.
func (r *Registry) electLocked() {
	var pick, clean, first *Span
	for _, s := range r.spans {
		if s == nil || !s.running {
			continue
		}
		if first == nil {
			first = s
		}
		if s.alarms == 0 {
			if clean == nil {
				clean = s
			}
			if s.prefer && pick == nil {
				pick = s
			}
		}
	}
	if pick == nil {
		pick = clean
	}
	if pick == nil {
		pick = first
	}
	if pick == r.master {
		return
	}
	r.master = pick
	name := ""
	if pick != nil {
		name = pick.Name
	}
	r.log.Infow("timing master changed", "span", name)
	r.obs.MasterChanged(name)
}

// Master returns the span providing timing, or nil.
func (r *Registry) Master() *Span {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.master
}

// AlarmNotify records new span alarms, tells every channel and re-elects the master.
func (r *Registry) AlarmNotify(s *Span, alarms Alarm) {
	r.mu.Lock()
	old := s.alarms
	s.alarms = alarms
	if (old == 0) != (alarms == 0) {
		r.electLocked()
	}
	r.mu.Unlock()
	if old == alarms {
		return
	}
	r.log.Infow("span alarms", "span", s.Name, "alarms", alarms)
	for _, ch := range s.chans {
		r.AlarmChannel(ch, alarms)
	}
}

// AlarmChannel records alarms of a single channel.
func (r *Registry) AlarmChannel(ch *Channel, alarms Alarm) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.alarms == alarms {
		return
	}
	was := ch.alarms
	ch.alarms = alarms
	switch {
	case alarms != 0 && was == 0:
		ch.queue(event.Alarm)
	case alarms == 0:
		ch.queue(event.NoAlarm)
	}
}

// NewPseudo creates a pseudo channel.
func (r *Registry) NewPseudo() (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	num, err := r.allocNums(1)
	if err != nil {
		return nil, err
	}
	ch := newChannel(nil, 0, rbs.SigNone)
	if err := ch.attach(r, num); err != nil {
		return nil, err
	}
	r.chans[num-1] = ch
	r.pseudo = append(r.pseudo, ch)
	return ch, nil
}

// FreePseudo closes and removes a pseudo channel.
func (r *Registry) FreePseudo(ch *Channel) error {
	if !ch.IsPseudo() {
		return errors.ErrInvalidArgf("channel %s is not a pseudo channel", ch.name)
	}
	_ = ch.Close()
	r.tick.Lock()
	defer r.tick.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.pseudo {
		if p == ch {
			r.pseudo = append(r.pseudo[:i], r.pseudo[i+1:]...)
			r.chans[ch.num-1] = nil
			return nil
		}
	}
	return fmt.Errorf("pseudo channel %d: %w", ch.num, errors.ErrNoSuchChannel)
}

// Channel looks up a channel by number.
func (r *Registry) Channel(num int) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channelLocked(num)
}

func (r *Registry) channelLocked(num int) (*Channel, error) {
	if num < 1 || num > len(r.chans) || r.chans[num-1] == nil {
		return nil, fmt.Errorf("channel %d: %w", num, errors.ErrNoSuchChannel)
	}
	return r.chans[num-1], nil
}

// Span looks up a span by id.
func (r *Registry) Span(id int) (*Span, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 1 || id > MaxSpans || r.spans[id-1] == nil {
		return nil, fmt.Errorf("span %d: %w", id, errors.ErrNoSuchSpan)
	}
	return r.spans[id-1], nil
}

// Spans returns the registered spans in id order.
func (r *Registry) Spans() []*Span {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Span
	for _, s := range r.spans {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Ticks returns the number of master ticks run so far.
func (r *Registry) Ticks() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ticks
}

// Dacs cross-connects a and b so each transmits what the other receives.
// Passing a nil b disconnects a.
func (r *Registry) Dacs(a, b *Channel) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	if a.dacs != nil {
		peer := a.dacs
		a.dacs, peer.dacs = nil, nil
		if a.dacsHW {
			if d, ok := a.driver().(DACSDriver); ok {
				_ = d.DACS(a, nil)
			}
		}
		a.dacsHW, peer.dacsHW = false, false
	}
	if b == nil {
		return nil
	}
	if a == b || a.IsPseudo() || b.IsPseudo() {
		return errors.ErrInvalidArgf("cannot cross-connect %s and %s", a, b)
	}
	if b.dacs != nil {
		return errors.ErrBusyf("channel %s already cross-connected", b)
	}
	hw := false
	if a.span == b.span {
		if d, ok := a.driver().(DACSDriver); ok {
			hw = d.DACS(a, b) == nil
		}
	}
	a.dacs, b.dacs = b, a
	a.dacsHW, b.dacsHW = hw, hw
	return nil
}

// Bond makes the slaves carry data for master. All channels must be on the same span.
func (r *Registry) Bond(master *Channel, slaves ...*Channel) error {
	r.tick.Lock()
	defer r.tick.Unlock()
	for _, s := range slaves {
		if s.span == nil || s.span != master.span || s == master {
			return errors.ErrInvalidArgf("cannot bond %s to %s", s, master)
		}
		if s.master != nil || len(s.slaves) != 0 {
			return errors.ErrBusyf("channel %s already bonded", s)
		}
	}
	for _, s := range master.slaves {
		s.master = nil
	}
	master.slaves = append([]*Channel(nil), slaves...)
	for _, s := range slaves {
		s.master = master
	}
	master.bondRx, master.bondTx = nil, nil
	if len(slaves) != 0 {
		n := ChunkSize * (1 + len(slaves))
		master.bondRx = make([]byte, 0, n)
		master.bondTx = make([]byte, n)
	}
	return nil
}

// Shutdown unregisters every span and stops all timers.
func (r *Registry) Shutdown() {
	r.closed.Break()
	for _, s := range r.Spans() {
		if err := r.Unregister(s); err != nil {
			r.log.Warnw("cannot unregister span", err, "span", s.Name)
		}
	}
	r.timerMu.Lock()
	timers := make([]*Timer, 0, len(r.timers))
	for t := range r.timers {
		timers = append(timers, t)
	}
	r.timerMu.Unlock()
	for _, t := range timers {
		t.Close()
	}
}

// LoadZone builds a tone zone from spec with the registry's dial parameters and loads it into slot id.
func (r *Registry) LoadZone(id int, spec tones.ZoneSpec) error {
	z, err := tones.NewZone(spec, r.opts.Dial)
	if err != nil {
		return err
	}
	return r.Zones.Register(id, z)
}
