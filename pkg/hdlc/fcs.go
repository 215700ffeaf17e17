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

import (
	"github.com/snksoft/crc"
)

// FCSLen is the size of the frame check sequence appended to every frame.
const FCSLen = 2

// fcsTable computes CRC16 as used by PPP and X.25: reflected, inverted.
var fcsTable = crc.NewTable(crc.X25)

// FCS returns the frame check sequence of data.
func FCS(data []byte) uint16 {
	return uint16(fcsTable.CalculateCRC(data))
}

// AppendFCS appends the FCS of frame, least significant byte first.
func AppendFCS(frame []byte) []byte {
	fcs := FCS(frame)
	return append(frame, byte(fcs), byte(fcs>>8))
}

// CheckFCS reports whether the last two bytes of frame hold a valid FCS for the rest.
func CheckFCS(frame []byte) bool {
	if len(frame) < FCSLen {
		return false
	}
	n := len(frame) - FCSLen
	fcs := FCS(frame[:n])
	return frame[n] == byte(fcs) && frame[n+1] == byte(fcs>>8)
}
