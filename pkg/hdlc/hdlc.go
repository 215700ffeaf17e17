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

package hdlc

// Flag delimits frames on the wire.
const Flag = 0x7e

// Encoder is a bit-stuffing HDLC transmitter. Bits go out least significant first.
// Output is only ever taken in whole bytes, so a frame may end mid-byte and the
// next flag or frame continues from that bit position.
type Encoder struct {
	bits  uint64
	nbits uint
	ones  int
}

func (e *Encoder) Reset() {
	*e = Encoder{}
}

// Ready reports whether another byte or flag can be queued.
func (e *Encoder) Ready() bool {
	return e.nbits <= 32
}

// Pending returns the number of queued bits.
func (e *Encoder) Pending() int {
	return int(e.nbits)
}

func (e *Encoder) putBit(b uint64) {
	e.bits |= (b & 1) << e.nbits
	e.nbits++
}

// PutFlag queues a flag sequence, without stuffing.
func (e *Encoder) PutFlag() {
	e.bits |= uint64(Flag) << e.nbits
	e.nbits += 8
	e.ones = 0
}

// PutAbort queues seven consecutive ones, which aborts the current frame.
func (e *Encoder) PutAbort() {
	e.bits |= uint64(0x7f) << e.nbits
	e.nbits += 8
	e.ones = 0
}

// PutByte queues a data byte, inserting a zero after every five consecutive ones.
func (e *Encoder) PutByte(v byte) {
	for i := 0; i < 8; i++ {
		b := uint64(v>>i) & 1
		e.putBit(b)
		if b == 0 {
			e.ones = 0
			continue
		}
		e.ones++
		if e.ones == 5 {
			e.putBit(0)
			e.ones = 0
		}
	}
}

// GetByte returns the next 8 bits on the wire, if that many are queued.
func (e *Encoder) GetByte() (byte, bool) {
	if e.nbits < 8 {
		return 0, false
	}
	v := byte(e.bits)
	e.bits >>= 8
	e.nbits -= 8
	return v, true
}

// Symbol is the outcome of feeding one bit to the Decoder.
type Symbol int

const (
	None Symbol = iota
	// Data means a complete data byte was decoded.
	Data
	// Frame means a closing flag ended a non-empty frame.
	Frame
	// Abort means the current frame was discarded.
	Abort
)

func (s Symbol) String() string {
	switch s {
	case None:
		return "none"
	case Data:
		return "data"
	case Frame:
		return "frame"
	case Abort:
		return "abort"
	}
	return "unknown"
}

// Decoder is a bit-level HDLC receiver.
type Decoder struct {
	ones    int
	data    uint
	nbits   uint
	bytes   int
	hunting bool
}

// NewDecoder returns a decoder waiting for the first flag.
func NewDecoder() *Decoder {
	d := &Decoder{}
	d.Reset()
	return d
}

// Reset discards any partial frame and searches for a flag again.
func (d *Decoder) Reset() {
	*d = Decoder{hunting: true}
}

// Bit feeds a single bit. On Data the decoded byte is returned as well.
func (d *Decoder) Bit(b byte) (Symbol, byte) {
	if b&1 != 0 {
		d.ones++
		if d.ones >= 7 {
			aborted := !d.hunting && (d.bytes != 0 || d.nbits > 7)
			d.Reset()
			if aborted {
				return Abort, 0
			}
			return None, 0
		}
		return d.shift(1)
	}
	ones := d.ones
	d.ones = 0
	switch ones {
	case 5:
		// stuffed zero
		return None, 0
	case 6:
		return d.flag()
	}
	return d.shift(0)
}

func (d *Decoder) shift(b uint) (Symbol, byte) {
	if d.hunting {
		return None, 0
	}
	d.data |= b << d.nbits
	d.nbits++
	if d.nbits < 8 {
		return None, 0
	}
	v := byte(d.data)
	d.data = 0
	d.nbits = 0
	d.bytes++
	return Data, v
}

func (d *Decoder) flag() (Symbol, byte) {
	// six ones of the flag were already shifted in as data bits
	var sym Symbol
	switch {
	case d.hunting:
		sym = None
	case d.bytes == 0 && d.nbits <= 7:
		sym = None
	case d.nbits == 7:
		sym = Frame
	default:
		sym = Abort
	}
	d.data = 0
	d.nbits = 0
	d.bytes = 0
	d.hunting = false
	return sym, 0
}

// Feed runs all bits of v through the decoder, reporting every non-empty symbol.
func (d *Decoder) Feed(v byte, fn func(Symbol, byte)) {
	for i := 0; i < 8; i++ {
		if sym, b := d.Bit(v >> i); sym != None {
			fn(sym, b)
		}
	}
}
