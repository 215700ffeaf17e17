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
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const modulePath = "github.com/xrg/dahdi-linux-xrg-sub000"

func getVersions() []attribute.KeyValue {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	if info.Main.Path == modulePath {
		return []attribute.KeyValue{attribute.String("dahdi.version", info.Main.Version)}
	}
	for _, d := range info.Deps {
		if d.Path == modulePath {
			return []attribute.KeyValue{attribute.String("dahdi.version", d.Version)}
		}
	}
	return nil
}

var Tracer = otel.Tracer(
	modulePath+"/pkg/dahdi",
	trace.WithInstrumentationAttributes(getVersions()...),
)
