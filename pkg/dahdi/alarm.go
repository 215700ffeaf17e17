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

import "strings"

// Alarm is a bitmask of line alarms.
type Alarm uint32

const (
	AlarmRecover Alarm = 1 << iota
	AlarmLoopback
	AlarmYellow
	AlarmRed
	AlarmBlue
	AlarmNotOpen
)

func (a Alarm) String() string {
	if a == 0 {
		return "ok"
	}
	var parts []string
	for _, n := range []struct {
		a    Alarm
		name string
	}{
		{AlarmRecover, "recover"},
		{AlarmLoopback, "loopback"},
		{AlarmYellow, "yellow"},
		{AlarmRed, "red"},
		{AlarmBlue, "blue"},
		{AlarmNotOpen, "notopen"},
	} {
		if a&n.a != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
