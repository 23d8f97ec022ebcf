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

package health

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
)

func TestClassify(t *testing.T) {
	for _, test := range []struct {
		name     string
		event    types.RawEvent
		expected types.SignalKind
		percent  int
		ok       bool
	}{
		{name: "buffering", event: types.RawEvent{Type: types.RawEventBuffering, Percent: 10}, expected: types.SignalBuffering, percent: 10, ok: true},
		{name: "buffering zero", event: types.RawEvent{Type: types.RawEventBuffering}, expected: types.SignalBuffering, ok: true},
		{name: "buffering 99", event: types.RawEvent{Type: types.RawEventBuffering, Percent: 99}, expected: types.SignalBuffering, percent: 99, ok: true},
		{name: "buffering done", event: types.RawEvent{Type: types.RawEventBuffering, Percent: 100}, expected: types.SignalFlowing, ok: true},
		{name: "buffering clamped high", event: types.RawEvent{Type: types.RawEventBuffering, Percent: 150}, expected: types.SignalFlowing, ok: true},
		{name: "buffering clamped low", event: types.RawEvent{Type: types.RawEventBuffering, Percent: -5}, expected: types.SignalBuffering, ok: true},
		{name: "frame", event: types.RawEvent{Type: types.RawEventFrame}, expected: types.SignalFlowing, ok: true},
		{name: "error", event: types.RawEvent{Type: types.RawEventError, Message: "boom"}, expected: types.SignalError, ok: true},
		{name: "eos", event: types.RawEvent{Type: types.RawEventEOS}, expected: types.SignalEndOfStream, ok: true},
		{name: "state changed", event: types.RawEvent{Type: types.RawEventStateChanged}},
		{name: "latency", event: types.RawEvent{Type: types.RawEventLatency}},
		{name: "unknown", event: types.RawEvent{}},
	} {
		t.Run(test.name, func(t *testing.T) {
			test.event.Generation = 3
			sig, ok := Classify(test.event)
			require.Equal(t, test.ok, ok)
			if !ok {
				return
			}
			require.Equal(t, test.expected, sig.Kind)
			require.Equal(t, test.percent, sig.Percent)
			require.Equal(t, uint64(3), sig.Generation)
		})
	}
}

func TestClassifyErrorCause(t *testing.T) {
	sig, ok := Classify(types.RawEvent{
		Type:    types.RawEventError,
		Source:  "source",
		Message: "Could not connect",
		Debug:   "rtmp2src.c(42)",
	})
	require.True(t, ok)

	var srcErr *errors.SourceError
	require.True(t, errors.As(sig.Cause, &srcErr))
	require.Equal(t, "source", srcErr.Element)
	require.Equal(t, "Could not connect", srcErr.Message)
	require.Equal(t, "rtmp2src.c(42)", srcErr.Debug)
}

func TestMonitorForwardsInOrder(t *testing.T) {
	var received []types.HealthSignal
	m := NewMonitor(func(sig types.HealthSignal) {
		received = append(received, sig)
	}, stats.NewMonitor("NF_test", prometheus.NewRegistry()))

	for _, ev := range []types.RawEvent{
		{Type: types.RawEventBuffering, Percent: 10},
		{Type: types.RawEventStateChanged},
		{Type: types.RawEventBuffering, Percent: 50},
		{Type: types.RawEventBuffering, Percent: 50},
		{Type: types.RawEventBuffering, Percent: 100},
		{Type: types.RawEventEOS},
	} {
		m.HandleEvent(ev)
	}

	require.Len(t, received, 5)
	require.Equal(t, types.Buffering(10, 0), received[0])
	require.Equal(t, types.Buffering(50, 0), received[1])
	require.Equal(t, types.Buffering(50, 0), received[2])
	require.Equal(t, types.Flowing(0), received[3])
	require.Equal(t, types.EndOfStream(0), received[4])
}
