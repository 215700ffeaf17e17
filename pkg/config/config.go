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

package config

import (
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/internal/ringbuf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/law"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/tones"
)

const DefaultTickInterval = time.Millisecond

type Config struct {
	Logging logger.Config `yaml:"logging"`

	Engine  EngineConfig     `yaml:"engine"`
	Tones   TonesConfig      `yaml:"tones"`
	RBS     RBSConfig        `yaml:"rbs"`
	Buffers BufferConfig     `yaml:"buffers"`
	Spans   []SpanConfig     `yaml:"spans"`
	Zones   []tones.ZoneSpec `yaml:"zones"`
	RTP     *RTPConfig       `yaml:"rtp"`

	PrometheusPort int           `yaml:"prometheus_port"`
	TickInterval   time.Duration `yaml:"tick_interval"`

	// internal
	ServiceName string `yaml:"-"`
	NodeID      string `yaml:"-"` // Do not provide, will be overwritten
}

type EngineConfig struct {
	MaxConfs      int  `yaml:"max_confs"`
	EventQueueLen int  `yaml:"event_queue_len"`
	PrecomputeLaw bool `yaml:"precompute_law"`
}

type TonesConfig struct {
	// DefaultZone is the index into Zones used for channels without a zone.
	DefaultZone int `yaml:"default_zone"`
	DTMFToneLen int `yaml:"dtmf_tonelen_ms"`
	MFR1ToneLen int `yaml:"mfr1_tonelen_ms"`
	MFR2ToneLen int `yaml:"mfr2_tonelen_ms"`
	Pause       int `yaml:"pause_ms"`
}

// RBSConfig overrides signaling hold times, in milliseconds. Zero keeps the default.
type RBSConfig struct {
	ShortFlash   bool `yaml:"short_flash_time"`
	PreWink      int  `yaml:"prewink_ms"`
	Wink         int  `yaml:"wink_ms"`
	PreFlash     int  `yaml:"preflash_ms"`
	Flash        int  `yaml:"flash_ms"`
	Start        int  `yaml:"start_ms"`
	Debounce     int  `yaml:"debounce_ms"`
	AfterStart   int  `yaml:"afterstart_ms"`
	Kewl         int  `yaml:"kewl_ms"`
	AfterKewl    int  `yaml:"afterkewl_ms"`
	PulseBreak   int  `yaml:"pulse_break_ms"`
	PulseMake    int  `yaml:"pulse_make_ms"`
	PulseAfter   int  `yaml:"pulse_after_ms"`
	RxWink       int  `yaml:"rxwink_ms"`
	RxFlash      int  `yaml:"rxflash_ms"`
	RingDebounce int  `yaml:"ringoff_ms"`
	MinPulse     int  `yaml:"min_pulse_ms"`
	MaxPulse     int  `yaml:"max_pulse_ms"`
}

type BufferConfig struct {
	BlockSize int    `yaml:"block_size"`
	NumBufs   int    `yaml:"num_bufs"`
	Policy    string `yaml:"policy"` // immediate or full
}

type SpanConfig struct {
	Name         string `yaml:"name"`
	Desc         string `yaml:"desc"`
	Channels     int    `yaml:"channels"`
	Sig          string `yaml:"sigtype"`
	Law          string `yaml:"law"`
	RBS          bool   `yaml:"rbs"`
	HDLC         []int  `yaml:"hdlc_channels"`
	PreferMaster bool   `yaml:"prefer_master"`
	// Loopback wires the simulated line back to itself.
	Loopback bool `yaml:"loopback"`
}

// RTPConfig exports the audio of one channel as an RTP stream.
type RTPConfig struct {
	Channel     int    `yaml:"channel"`
	Address     string `yaml:"address"`
	PacketMS    int    `yaml:"packet_ms"`
	PayloadType int    `yaml:"payload_type"`
}

func NewConfig(confString string) (*Config, error) {
	c := &Config{
		ServiceName: "dahdi",
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), c); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "cannot read config %q", path)
	}
	return NewConfig(string(data))
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.Engine.MaxConfs == 0 {
		c.Engine.MaxConfs = conf.DefaultMaxActive
	}
	if c.Engine.EventQueueLen == 0 {
		c.Engine.EventQueueLen = dahdi.DefaultEventQueueLen
	}
	if c.Buffers.BlockSize == 0 {
		c.Buffers.BlockSize = dahdi.DefaultBlockSize
	}
	if c.Buffers.NumBufs == 0 {
		c.Buffers.NumBufs = dahdi.DefaultNumBufs
	}
	if c.Buffers.Policy == "" {
		c.Buffers.Policy = "immediate"
	}
	if r := c.RTP; r != nil {
		if r.PacketMS == 0 {
			r.PacketMS = 20
		}
	}
	for i := range c.Spans {
		s := &c.Spans[i]
		if s.Sig == "" {
			s.Sig = rbs.FXSKS.String()
		}
	}
}

func (c *Config) Validate() error {
	if c.Engine.MaxConfs < 1 || c.Engine.MaxConfs > conf.MaxConf {
		return errors.ErrInvalidArgf("engine.max_confs %d out of range [1, %d]", c.Engine.MaxConfs, conf.MaxConf)
	}
	if c.Engine.EventQueueLen < 1 {
		return errors.ErrInvalidArgf("engine.event_queue_len %d", c.Engine.EventQueueLen)
	}
	if c.Buffers.BlockSize < ringbuf.MinBlockSize || c.Buffers.BlockSize > ringbuf.MaxBlockSize {
		return errors.ErrInvalidArgf("buffers.block_size %d out of range [%d, %d]", c.Buffers.BlockSize, ringbuf.MinBlockSize, ringbuf.MaxBlockSize)
	}
	if c.Buffers.NumBufs < ringbuf.MinNumBufs || c.Buffers.NumBufs > ringbuf.MaxNumBufs {
		return errors.ErrInvalidArgf("buffers.num_bufs %d out of range [%d, %d]", c.Buffers.NumBufs, ringbuf.MinNumBufs, ringbuf.MaxNumBufs)
	}
	if _, err := c.policy(); err != nil {
		return err
	}
	if len(c.Zones) != 0 && (c.Tones.DefaultZone < 0 || c.Tones.DefaultZone >= len(c.Zones)) {
		return errors.ErrInvalidArgf("tones.default_zone %d with %d zones", c.Tones.DefaultZone, len(c.Zones))
	}
	if len(c.Zones) > tones.MaxZones {
		return errors.ErrInvalidArgf("%d zones, at most %d", len(c.Zones), tones.MaxZones)
	}
	names := make(map[string]bool)
	for i, s := range c.Spans {
		if s.Channels < 1 {
			return errors.ErrInvalidArgf("span %d: %d channels", i, s.Channels)
		}
		if s.Name != "" {
			if names[s.Name] {
				return errors.ErrInvalidArgf("duplicate span name %q", s.Name)
			}
			names[s.Name] = true
		}
		if _, err := rbs.ParseSigType(s.Sig); err != nil {
			return pkgerrors.Wrapf(err, "span %d", i)
		}
		if s.Law != "" {
			if _, err := law.Parse(s.Law); err != nil {
				return pkgerrors.Wrapf(err, "span %d", i)
			}
		}
		for _, pos := range s.HDLC {
			if pos < 1 || pos > s.Channels {
				return errors.ErrInvalidArgf("span %d: hdlc channel %d", i, pos)
			}
		}
	}
	if r := c.RTP; r != nil {
		if r.Address == "" {
			return errors.ErrInvalidArgf("rtp.address is required")
		}
		if r.PacketMS <= 0 || r.PacketMS > 1000 {
			return errors.ErrInvalidArgf("rtp.packet_ms %d", r.PacketMS)
		}
	}
	return nil
}

func (c *Config) policy() (ringbuf.Policy, error) {
	switch c.Buffers.Policy {
	case "immediate":
		return ringbuf.Immediate, nil
	case "full":
		return ringbuf.WhenFull, nil
	}
	return 0, errors.ErrInvalidArgf("buffers.policy %q", c.Buffers.Policy)
}

func ms(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

// Timing returns the signaling hold times with overrides applied.
func (c *Config) Timing() rbs.Timing {
	r := c.RBS
	t := rbs.DefaultTiming(r.ShortFlash)
	t.PreWink = ms(r.PreWink, t.PreWink)
	t.Wink = ms(r.Wink, t.Wink)
	t.PreFlash = ms(r.PreFlash, t.PreFlash)
	t.Flash = ms(r.Flash, t.Flash)
	t.Start = ms(r.Start, t.Start)
	t.Debounce = ms(r.Debounce, t.Debounce)
	t.AfterStart = ms(r.AfterStart, t.AfterStart)
	t.Kewl = ms(r.Kewl, t.Kewl)
	t.AfterKewl = ms(r.AfterKewl, t.AfterKewl)
	t.PulseBreak = ms(r.PulseBreak, t.PulseBreak)
	t.PulseMake = ms(r.PulseMake, t.PulseMake)
	t.PulseAfter = ms(r.PulseAfter, t.PulseAfter)
	t.RxWink = ms(r.RxWink, t.RxWink)
	t.RxFlash = ms(r.RxFlash, t.RxFlash)
	t.RingDebounce = ms(r.RingDebounce, t.RingDebounce)
	t.MinPulse = ms(r.MinPulse, t.MinPulse)
	t.MaxPulse = ms(r.MaxPulse, t.MaxPulse)
	return t
}

// DialParams returns the digit tone lengths with overrides applied.
func (c *Config) DialParams() tones.DialParams {
	p := tones.DefaultDialParams()
	p.DTMFToneLen = ms(c.Tones.DTMFToneLen, p.DTMFToneLen)
	p.MFR1ToneLen = ms(c.Tones.MFR1ToneLen, p.MFR1ToneLen)
	p.MFR2ToneLen = ms(c.Tones.MFR2ToneLen, p.MFR2ToneLen)
	return p
}

// EngineOptions builds registry options. log and obs may be nil.
func (c *Config) EngineOptions(log logger.Logger, obs dahdi.Observer) dahdi.Options {
	policy, _ := c.policy()
	if c.Engine.PrecomputeLaw {
		law.SetPrecomputed(true)
	}
	return dahdi.Options{
		Logger:        log,
		Observer:      obs,
		MaxConfs:      c.Engine.MaxConfs,
		EventQueueLen: c.Engine.EventQueueLen,
		BlockSize:     c.Buffers.BlockSize,
		NumBufs:       c.Buffers.NumBufs,
		TxPolicy:      policy,
		RxPolicy:      policy,
		Timing:        c.Timing(),
		Dial:          c.DialParams(),
		PauseLen:      ms(c.Tones.Pause, dahdi.DefaultPauseLen),
	}
}

// SpanConfig converts the span definition to the engine's form.
func (s *SpanConfig) SpanConfig() (dahdi.SpanConfig, error) {
	sig, err := rbs.ParseSigType(s.Sig)
	if err != nil {
		return dahdi.SpanConfig{}, err
	}
	l := law.Default
	if s.Law != "" {
		if l, err = law.Parse(s.Law); err != nil {
			return dahdi.SpanConfig{}, err
		}
	}
	return dahdi.SpanConfig{
		Name:     s.Name,
		Desc:     s.Desc,
		Channels: s.Channels,
		Law:      l,
		RBS:      s.RBS,
		Sig:      sig,
	}, nil
}

// LoadZones registers every configured zone with r and selects the default one.
func (c *Config) LoadZones(r *dahdi.Registry) error {
	for i, z := range c.Zones {
		if err := r.LoadZone(i, z); err != nil {
			return pkgerrors.Wrapf(err, "zone %d (%s)", i, z.Name)
		}
	}
	if len(c.Zones) == 0 {
		return nil
	}
	return r.Zones.SetDefault(c.Tones.DefaultZone)
}

func (c *Config) Init() error {
	c.NodeID = utils.NewGuid("NE_")

	if err := c.InitLogger(); err != nil {
		return err
	}

	return nil
}

func (c *Config) InitLogger(values ...interface{}) error {
	zl, err := logger.NewZapLogger(&c.Logging)
	if err != nil {
		return err
	}

	values = append(c.GetLoggerValues(), values...)
	l := zl.WithValues(values...)
	logger.SetLogger(l, c.ServiceName)

	return nil
}

// To use with zap logger
func (c *Config) GetLoggerValues() []interface{} {
	return []interface{}{"nodeID", c.NodeID}
}
