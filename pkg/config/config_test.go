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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/internal/ringbuf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/law"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/rbs"
)

const sample = `
logging:
  level: debug
engine:
  max_confs: 16
buffers:
  block_size: 80
  num_bufs: 4
  policy: full
tones:
  dtmf_tonelen_ms: 50
  pause_ms: 500
rbs:
  wink_ms: 250
spans:
  - name: T1/1
    channels: 24
    sigtype: fxols
    law: ulaw
    rbs: true
    prefer_master: true
  - name: E1/1
    channels: 31
    sigtype: clear
    law: alaw
    hdlc_channels: [16]
zones:
  - name: us
    ring_cadence: [2000, 4000]
    tones:
      - tone: dial
        segments:
          - {freq1: 350, freq2: 440}
prometheus_port: 9100
tick_interval: 2ms
`

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := NewConfig("")
		require.NoError(t, err)
		require.Equal(t, DefaultTickInterval, c.TickInterval)
		require.Equal(t, dahdi.DefaultBlockSize, c.Buffers.BlockSize)
		require.Equal(t, dahdi.DefaultNumBufs, c.Buffers.NumBufs)
		require.Equal(t, "immediate", c.Buffers.Policy)
		require.Equal(t, rbs.DefaultTiming(false), c.Timing())
		require.Nil(t, c.RTP)
	})

	t.Run("sample", func(t *testing.T) {
		c, err := NewConfig(sample)
		require.NoError(t, err)
		require.Equal(t, 2*time.Millisecond, c.TickInterval)
		require.Equal(t, 9100, c.PrometheusPort)
		require.Len(t, c.Spans, 2)
		require.Len(t, c.Zones, 1)
		require.Equal(t, "debug", c.Logging.Level)
		require.Equal(t, 250*time.Millisecond, c.Timing().Wink)
		require.Equal(t, rbs.DefaultTiming(false).Flash, c.Timing().Flash)
		require.Equal(t, 50*time.Millisecond, c.DialParams().DTMFToneLen)

		opts := c.EngineOptions(nil, nil)
		require.Equal(t, 16, opts.MaxConfs)
		require.Equal(t, 80, opts.BlockSize)
		require.Equal(t, 4, opts.NumBufs)
		require.Equal(t, ringbuf.WhenFull, opts.TxPolicy)
		require.Equal(t, 500*time.Millisecond, opts.PauseLen)

		sc, err := c.Spans[0].SpanConfig()
		require.NoError(t, err)
		require.Equal(t, rbs.FXOLS, sc.Sig)
		require.Equal(t, law.MuLaw, sc.Law)
		require.True(t, sc.RBS)
		sc, err = c.Spans[1].SpanConfig()
		require.NoError(t, err)
		require.Equal(t, rbs.Clear, sc.Sig)
		require.Equal(t, law.ALaw, sc.Law)
	})

	t.Run("zones", func(t *testing.T) {
		c, err := NewConfig(sample)
		require.NoError(t, err)
		r := dahdi.NewRegistry(c.EngineOptions(nil, nil))
		require.NoError(t, c.LoadZones(r))
		require.Equal(t, 0, r.Zones.Default())
	})

	t.Run("sample file", func(t *testing.T) {
		c, err := LoadFile("../../config-sample.yaml")
		require.NoError(t, err)
		r := dahdi.NewRegistry(c.EngineOptions(nil, nil))
		require.NoError(t, c.LoadZones(r))
		for _, s := range c.Spans {
			_, err = s.SpanConfig()
			require.NoError(t, err)
		}
	})

	t.Run("parse error", func(t *testing.T) {
		_, err := NewConfig("spans: [")
		require.Error(t, err)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dahdi.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
		c, err := LoadFile(path)
		require.NoError(t, err)
		require.Len(t, c.Spans, 2)

		_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		conf string
	}{
		{"max confs", "engine: {max_confs: 5000}"},
		{"block size", "buffers: {block_size: 4}"},
		{"num bufs", "buffers: {num_bufs: 64}"},
		{"policy", "buffers: {policy: sometimes}"},
		{"no channels", "spans: [{name: a}]"},
		{"duplicate span", "spans: [{name: a, channels: 1}, {name: a, channels: 1}]"},
		{"sigtype", "spans: [{channels: 1, sigtype: smoke}]"},
		{"law", "spans: [{channels: 1, law: mulaw2}]"},
		{"hdlc position", "spans: [{channels: 2, hdlc_channels: [3]}]"},
		{"default zone", "zones: [{name: us}]\ntones: {default_zone: 2}"},
		{"rtp address", "rtp: {channel: 1}"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewConfig(c.conf)
			require.Error(t, err)
		})
	}

	t.Run("invalid argument code", func(t *testing.T) {
		_, err := NewConfig("buffers: {policy: sometimes}")
		require.True(t, errors.Is(err, errors.ErrInvalidArgument))
	})
}

func TestInit(t *testing.T) {
	c, err := NewConfig("")
	require.NoError(t, err)
	require.NoError(t, c.Init())
	require.NotEmpty(t, c.NodeID)
	require.Contains(t, c.GetLoggerValues(), c.NodeID)
}
