// Copyright 2025 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"fmt"
	"time"
)

type VisibilitySource string

const (
	SourceSlate VisibilitySource = "slate"
	SourceLive  VisibilitySource = "live"
)

type State int

const (
	StateShowingSlate State = iota
	StateShowingLive
	StateFreezingLive
)

func (s State) String() string {
	switch s {
	case StateShowingSlate:
		return "showing_slate"
	case StateShowingLive:
		return "showing_live"
	case StateFreezingLive:
		return "freezing_live"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Visible returns the compositor input shown while in state s.
// FreezingLive keeps the live input on screen with its last buffer.
func (s State) Visible() VisibilitySource {
	if s == StateShowingSlate {
		return SourceSlate
	}
	return SourceLive
}

type SignalKind int

const (
	SignalFlowing SignalKind = iota
	SignalBuffering
	SignalError
	SignalEndOfStream
)

func (k SignalKind) String() string {
	switch k {
	case SignalFlowing:
		return "flowing"
	case SignalBuffering:
		return "buffering"
	case SignalError:
		return "error"
	case SignalEndOfStream:
		return "eos"
	default:
		return "unknown"
	}
}

// HealthSignal is the semantic view of an ingest pipeline event.
type HealthSignal struct {
	Kind    SignalKind
	Percent int   // buffering progress, only set for SignalBuffering
	Cause   error // only set for SignalError

	// Generation identifies the ingest instance that produced the signal.
	Generation uint64
}

func Flowing(generation uint64) HealthSignal {
	return HealthSignal{Kind: SignalFlowing, Generation: generation}
}

func Buffering(percent int, generation uint64) HealthSignal {
	return HealthSignal{Kind: SignalBuffering, Percent: percent, Generation: generation}
}

func Error(cause error, generation uint64) HealthSignal {
	return HealthSignal{Kind: SignalError, Cause: cause, Generation: generation}
}

func EndOfStream(generation uint64) HealthSignal {
	return HealthSignal{Kind: SignalEndOfStream, Generation: generation}
}

func (s HealthSignal) String() string {
	switch s.Kind {
	case SignalBuffering:
		return fmt.Sprintf("buffering(%d%%)", s.Percent)
	case SignalError:
		if s.Cause != nil {
			return fmt.Sprintf("error(%v)", s.Cause)
		}
	}
	return s.Kind.String()
}

type RawEventType int

const (
	RawEventUnknown RawEventType = iota
	RawEventBuffering
	RawEventError
	RawEventEOS
	RawEventFrame
	RawEventStateChanged
	RawEventLatency
)

func (t RawEventType) String() string {
	switch t {
	case RawEventBuffering:
		return "buffering"
	case RawEventError:
		return "error"
	case RawEventEOS:
		return "eos"
	case RawEventFrame:
		return "frame"
	case RawEventStateChanged:
		return "state-changed"
	case RawEventLatency:
		return "latency"
	default:
		return "unknown"
	}
}

// RawEvent is a bus-level notification, decoupled from the media engine's message types.
type RawEvent struct {
	Type       RawEventType
	Source     string // name of the element that emitted the event
	Percent    int    // RawEventBuffering
	Message    string // RawEventError
	Debug      string // RawEventError
	Generation uint64
}

// FreezePolicy bounds how long the last live frame may be held once the source stops producing.
// The zero value holds forever.
type FreezePolicy struct {
	discard      bool
	discardAfter time.Duration
}

func HoldForever() FreezePolicy {
	return FreezePolicy{}
}

func DiscardAfter(d time.Duration) FreezePolicy {
	if d < 0 {
		d = 0
	}
	return FreezePolicy{discard: true, discardAfter: d}
}

// Deadline returns the discard delay, or false if the frame is held forever.
func (p FreezePolicy) Deadline() (time.Duration, bool) {
	if p.HoldsForever() {
		return 0, false
	}
	return p.discardAfter, true
}

func (p FreezePolicy) HoldsForever() bool {
	return !p.discard
}

// Immediate reports whether the last frame is discarded without freezing at all.
func (p FreezePolicy) Immediate() bool {
	return p.discard && p.discardAfter == 0
}

func (p FreezePolicy) String() string {
	if p.HoldsForever() {
		return "hold-forever"
	}
	return fmt.Sprintf("discard-after(%s)", p.discardAfter)
}

type RestartPolicy struct {
	RestartOnError bool
	RestartOnEOS   bool
}

func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		RestartOnError: true,
		RestartOnEOS:   true,
	}
}
