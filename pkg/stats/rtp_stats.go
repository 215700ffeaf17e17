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

package stats

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"

	"github.com/livekit/protocol/logger"
)

// DiffNN returns the signed difference between cur and prev, accounting for wrap-around in a set integer size

func Diff32(cur, prev uint32) int32 {
	return int32(cur - prev)
}

func Diff16(cur, prev uint16) int16 {
	return int16(cur - prev)
}

// PacketWriter is the sink of an RTP stream.
type PacketWriter interface {
	WritePacket(p *rtp.Packet) error
}

type RTPStats struct {
	packetSize    *Stat // Contains count as well
	deltaMS       *Stat // PACING indicator ; difference in milliseconds between last packet and current
	deltaSeq      *Stat // LOSS / OUT OF ORDER indicator ; positive difference in rtp.sequenceNumber
	deltaTS       *Stat // LOSS / OUT OF ORDER indicator ; positive difference in rtp.Timestamp
	seqOutOfOrder *Stat // OUT OF ORDER indicator ; negative distance from most recent packet, in rtp.sequenceNumber
	tsOutOfOrder  *Stat // OUT OF ORDER indicator ; positive difference in rtp.Timestamp
	packetCount   uint64      // number of packets seen since last reset

	totalPacketCount uint64 // number of total packets seen, persists across resets
	resetCount       uint64 // number of resets detected, persists across resets
}

func NewRTPStats() *RTPStats {
	return &RTPStats{
		packetSize:    NewStat(),
		deltaMS:       NewStat(),
		deltaSeq:      NewStat(),
		deltaTS:       NewStat(),
		seqOutOfOrder: NewStat(),
		tsOutOfOrder:  NewStat(),
	}
}

// TotalPackets returns the number of packets seen since creation.
func (d *RTPStats) TotalPackets() uint64 {
	return atomic.LoadUint64(&d.totalPacketCount)
}

// Resets returns the number of stream resets detected.
func (d *RTPStats) Resets() uint64 {
	return atomic.LoadUint64(&d.resetCount)
}

// RtpStats wraps a PacketWriter and records pacing, loss and reordering of the packets going through it.
type RtpStats struct {
	w    PacketWriter
	name string
	log  logger.Logger

	mu   sync.Mutex
	data *RTPStats

	latest          time.Time // time of latest packet
	latestSSRC      uint32    // SSRC of latest packet
	latestSequence  uint16    // sequence number of latest packet
	latestTimestamp uint32    // timestamp of latest packet
}

func NewWriterStats(name string, log logger.Logger, data *RTPStats, w PacketWriter) *RtpStats {
	if data == nil {
		data = NewRTPStats()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &RtpStats{
		w:    w,
		name: name,
		log:  log,
		data: data,
	}
}

func (s *RtpStats) String() string {
	return "RTPStats"
}

func (s *RtpStats) Data() *RTPStats {
	return s.data
}

func (s *RtpStats) isReset(h *rtp.Header) bool {
	const maxSeqDiff = (math.MaxUint16 / 4) // 16384, about 5.5 minutes at 20ms packets

	if s.latestSSRC != h.SSRC {
		return true
	}
	seqDiff := Diff16(h.SequenceNumber, s.latestSequence)
	if seqDiff < -maxSeqDiff || seqDiff > maxSeqDiff {
		return true
	}
	return false
}

func (s *RtpStats) LogStats(reason string) {
	s.log.Infow("rtp stats",
		"name", s.name,
		"reason", reason,
		"packetSize", s.data.packetSize.Snapshot(),
		"deltaMS", s.data.deltaMS.Snapshot(),
		"deltaSeq", s.data.deltaSeq.Snapshot(),
		"deltaTS", s.data.deltaTS.Snapshot(),
		"seqOutOfOrder", s.data.seqOutOfOrder.Snapshot(),
		"tsOutOfOrder", s.data.tsOutOfOrder.Snapshot(),
		"packetCount", s.data.TotalPackets(),
		"resetCount", s.data.Resets(),
	)
}

func (s *RtpStats) reset() {
	s.data.packetSize = NewStat()
	s.data.deltaMS = NewStat()
	s.data.deltaSeq = NewStat()
	s.data.deltaTS = NewStat()
	s.data.seqOutOfOrder = NewStat()
	s.data.tsOutOfOrder = NewStat()
	s.data.packetCount = 0
	s.latest = time.Time{}
}

func (s *RtpStats) update(h *rtp.Header, payloadSize uint64) {
	newCount := atomic.AddUint64(&s.data.packetCount, 1)
	atomic.AddUint64(&s.data.totalPacketCount, 1)
	s.data.packetSize.Update(payloadSize)
	if newCount != 1 {
		msSinceLast := time.Since(s.latest).Milliseconds()
		s.data.deltaMS.Update(uint64(msSinceLast))

		deltaSeq := Diff16(h.SequenceNumber, s.latestSequence)
		if deltaSeq >= 0 {
			s.data.deltaSeq.Update(uint64(deltaSeq))
		} else {
			s.data.seqOutOfOrder.Update(uint64(-deltaSeq))
		}

		deltaTS := Diff32(h.Timestamp, s.latestTimestamp)
		if deltaTS >= 0 {
			s.data.deltaTS.Update(uint64(deltaTS))
		} else {
			s.data.tsOutOfOrder.Update(uint64(-deltaTS))
		}
	}
	s.latest = time.Now()
	s.latestSSRC = h.SSRC
	s.latestSequence = h.SequenceNumber
	s.latestTimestamp = h.Timestamp
}

func (s *RtpStats) WritePacket(p *rtp.Packet) error {
	s.mu.Lock()
	if s.isReset(&p.Header) && atomic.LoadUint64(&s.data.packetCount) > 0 {
		atomic.AddUint64(&s.data.resetCount, 1)
		s.LogStats("stream reset")
		s.reset()
	}
	s.update(&p.Header, uint64(len(p.Payload)))
	s.mu.Unlock()
	return s.w.WritePacket(p)
}

func (s *RtpStats) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LogStats("stream closing")
}
