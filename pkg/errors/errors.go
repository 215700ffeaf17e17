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

package errors

import (
	"errors"
	"fmt"

	"github.com/livekit/psrpc"
)

var (
	ErrNoConfig = psrpc.NewErrorf(psrpc.InvalidArgument, "missing config")

	ErrInvalidArgument  = psrpc.NewErrorf(psrpc.InvalidArgument, "invalid argument")
	ErrBusy             = psrpc.NewErrorf(psrpc.FailedPrecondition, "busy")
	ErrNotSupported     = psrpc.NewErrorf(psrpc.Unimplemented, "not supported")
	ErrNoSuchCapability = psrpc.NewErrorf(psrpc.NotFound, "no such capability")
	ErrOutOfMemory      = psrpc.NewErrorf(psrpc.ResourceExhausted, "out of memory")
	ErrNoData           = psrpc.NewErrorf(psrpc.Unavailable, "no data available")
	ErrWouldBlock       = psrpc.NewErrorf(psrpc.Unavailable, "operation would block")
	ErrInterrupted      = psrpc.NewErrorf(psrpc.Canceled, "interrupted")
	ErrNoToneZone       = psrpc.NewErrorf(psrpc.NotFound, "no tone zone loaded")
	ErrNoSuchTone       = psrpc.NewErrorf(psrpc.NotFound, "no such tone")
	ErrNoSuchChannel    = psrpc.NewErrorf(psrpc.NotFound, "no such channel")
	ErrNoSuchSpan       = psrpc.NewErrorf(psrpc.NotFound, "no such span")
)

func ErrCouldNotParseConfig(err error) psrpc.Error {
	return psrpc.NewErrorf(psrpc.InvalidArgument, "could not parse config: %v", err)
}

// ErrInvalidArgf returns an error matching ErrInvalidArgument with extra context.
func ErrInvalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ErrBusyf returns an error matching ErrBusy with extra context.
func ErrBusyf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBusy, fmt.Sprintf(format, args...))
}

// Code returns the psrpc error code carried by err, or psrpc.Unknown.
func Code(err error) psrpc.ErrorCode {
	var e psrpc.Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return psrpc.Unknown
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
