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

package gstreamer

import (
	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/fallback/pkg/types"
)

// translateMessage converts a bus message into a raw event tagged with the
// generation of the pipeline that posted it.
func translateMessage(msg *gst.Message, generation uint64) types.RawEvent {
	ev := types.RawEvent{
		Source:     msg.Source(),
		Generation: generation,
	}

	switch msg.Type() {
	case gst.MessageEOS:
		ev.Type = types.RawEventEOS

	case gst.MessageError:
		ev.Type = types.RawEventError
		if gErr := msg.ParseError(); gErr != nil {
			ev.Message = gErr.Error()
			ev.Debug = gErr.DebugString()
		}

	case gst.MessageBuffering:
		ev.Type = types.RawEventBuffering
		ev.Percent = msg.ParseBuffering()

	case gst.MessageStateChanged:
		ev.Type = types.RawEventStateChanged

	case gst.MessageLatency:
		ev.Type = types.RawEventLatency

	default:
		ev.Type = types.RawEventUnknown
	}

	return ev
}
