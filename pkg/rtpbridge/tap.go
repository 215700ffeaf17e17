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

// Package rtpbridge exports the audio of a channel as an RTP stream.
package rtpbridge

import (
	"context"
	"math/rand/v2"
	"net"
	"time"

	"github.com/frostbyte73/core"
	"github.com/pion/rtp"

	"github.com/livekit/protocol/logger"

	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/conf"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/dahdi"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/errors"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/law"
	"github.com/xrg/dahdi-linux-xrg-sub000/pkg/stats"
)

const (
	PayloadPCMU = 0
	PayloadPCMA = 8

	sampleRate       = 8000
	DefaultPacketDur = 20 * time.Millisecond
)

type Config struct {
	Log       logger.Logger
	PacketDur time.Duration
	// Mode is the monitor mode used on the target. MonitorBoth by default.
	Mode conf.Mode
	SSRC uint32
}

// Tap listens to a channel through a monitoring pseudo channel and writes each block
// it reads as one RTP packet.
type Tap struct {
	log    logger.Logger
	reg    *dahdi.Registry
	ch     *dahdi.Channel
	w      *stats.RtpStats
	p      rtp.Packet
	step   uint32
	buf    []byte
	closed core.Fuse
}

// NewTap starts monitoring channel target. Packets go to w.
func NewTap(r *dahdi.Registry, target int, w stats.PacketWriter, c *Config) (*Tap, error) {
	if c == nil {
		c = &Config{}
	}
	if c.Log == nil {
		c.Log = logger.GetLogger()
	}
	if c.PacketDur <= 0 {
		c.PacketDur = DefaultPacketDur
	}
	if c.Mode == conf.Normal {
		c.Mode = conf.MonitorBoth
	}
	if c.SSRC == 0 {
		c.SSRC = rand.Uint32()
	}
	samples := int(c.PacketDur * sampleRate / time.Second)
	if samples <= 0 || samples%dahdi.ChunkSize != 0 {
		return nil, errors.ErrInvalidArgf("packet duration %v", c.PacketDur)
	}
	if _, err := r.Channel(target); err != nil {
		return nil, err
	}
	ch, err := r.NewPseudo()
	if err != nil {
		return nil, err
	}
	t := &Tap{
		log:  c.Log.WithValues("channel", target),
		reg:  r,
		ch:   ch,
		step: uint32(samples),
		buf:  make([]byte, samples),
	}
	if err = t.setup(target, samples, c.Mode); err != nil {
		_ = r.FreePseudo(ch)
		return nil, err
	}
	pt := uint8(PayloadPCMU)
	if ch.Law() == law.ALaw {
		pt = PayloadPCMA
	}
	t.p = rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SSRC:           c.SSRC,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
		},
	}
	t.w = stats.NewWriterStats(ch.Name(), t.log, nil, w)
	t.log.Infow("rtp tap started", "pseudo", ch.Num(), "payloadType", pt, "packetDur", c.PacketDur)
	return t, nil
}

func (t *Tap) setup(target, samples int, mode conf.Mode) error {
	if err := t.ch.Open(); err != nil {
		return err
	}
	bi := t.ch.BufInfo()
	bi.BlockSize = samples
	if err := t.ch.SetBufInfo(bi); err != nil {
		return err
	}
	return t.reg.SetConference(t.ch, conf.Setting{Mode: mode, Num: target})
}

// Stats returns the counters of the outgoing stream.
func (t *Tap) Stats() *stats.RTPStats {
	return t.w.Data()
}

// Run forwards audio until ctx is done or Close is called.
func (t *Tap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.closed.Watch():
			cancel()
		case <-ctx.Done():
		}
	}()
	for {
		n, err := t.ch.Read(ctx, t.buf)
		if errors.Is(err, errors.ErrInterrupted) || t.closed.IsBroken() {
			return nil
		} else if err != nil {
			return err
		}
		t.p.Payload = t.buf[:n]
		if err = t.w.WritePacket(&t.p); err != nil {
			t.log.Warnw("cannot write rtp packet", err)
			return err
		}
		t.p.Timestamp += t.step
		t.p.SequenceNumber++
	}
}

// Close stops Run and releases the pseudo channel.
func (t *Tap) Close() error {
	if t.closed.IsBroken() {
		return nil
	}
	t.closed.Break()
	t.w.Close()
	return t.reg.FreePseudo(t.ch)
}

// UDPWriter sends packets to a fixed remote address.
type UDPWriter struct {
	conn *net.UDPConn
	buf  []byte
}

func DialUDP(addr string) (*UDPWriter, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &UDPWriter{conn: conn, buf: make([]byte, 1500)}, nil
}

func (w *UDPWriter) LocalAddr() net.Addr {
	return w.conn.LocalAddr()
}

func (w *UDPWriter) WritePacket(p *rtp.Packet) error {
	n, err := p.MarshalTo(w.buf)
	if err != nil {
		return err
	}
	_, err = w.conn.Write(w.buf[:n])
	return err
}

func (w *UDPWriter) Close() error {
	return w.conn.Close()
}
