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

package stats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/livekit/fallback/pkg/types"
)

func TestMonitor(t *testing.T) {
	m := NewMonitor("NF_test", prometheus.NewRegistry())

	require.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("showing_slate")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("showing_live")))

	m.SetState(types.StateFreezingLive)
	require.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("showing_slate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("freezing_live")))

	m.IncSignal(types.SignalBuffering)
	m.IncSignal(types.SignalBuffering)
	require.Equal(t, 2.0, testutil.ToFloat64(m.signals.WithLabelValues("buffering")))

	m.IncSwitch(types.SourceLive)
	require.Equal(t, 1.0, testutil.ToFloat64(m.switches.WithLabelValues("live")))

	m.IncRestart("error")
	require.Equal(t, 1.0, testutil.ToFloat64(m.restarts.WithLabelValues("error")))

	m.IncInjectedFault("eos")
	require.Equal(t, 1.0, testutil.ToFloat64(m.injectedFaults.WithLabelValues("eos")))

	m.ObserveFreeze("recovered", 300*time.Millisecond)
	require.Equal(t, 1, testutil.CollectAndCount(m.freezeDuration))
}

func TestNilMonitor(t *testing.T) {
	var m *Monitor
	require.NotPanics(t, func() {
		m.IncSignal(types.SignalFlowing)
		m.IncSwitch(types.SourceSlate)
		m.IncRestart("eos")
		m.IncInjectedFault("error")
		m.ObserveFreeze("discarded", time.Second)
		m.SetState(types.StateShowingLive)
	})
}
