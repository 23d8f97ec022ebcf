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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/livekit/fallback/pkg/types"
)

// Monitor exports switcher activity. A nil *Monitor is valid and records nothing.
type Monitor struct {
	signals        *prometheus.CounterVec
	switches       *prometheus.CounterVec
	restarts       *prometheus.CounterVec
	state          *prometheus.GaugeVec
	freezeDuration *prometheus.HistogramVec
	injectedFaults *prometheus.CounterVec
}

func NewMonitor(nodeID string, reg prometheus.Registerer) *Monitor {
	constantLabels := prometheus.Labels{"node_id": nodeID}

	m := &Monitor{
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "health_signals",
			Help:        "Health signals classified from ingest pipeline events",
			ConstLabels: constantLabels,
		}, []string{"signal"}),

		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "visibility_switches",
			Help:        "Compositor visibility commands by target source",
			ConstLabels: constantLabels,
		}, []string{"source"}),

		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "ingest_restarts",
			Help:        "Ingest pipeline restarts by reason",
			ConstLabels: constantLabels,
		}, []string{"reason"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "state",
			Help:        "1 for the current controller state, 0 otherwise",
			ConstLabels: constantLabels,
		}, []string{"state"}),

		freezeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "freeze_duration_ms",
			Help:        "How long the last live frame was held, by outcome",
			Buckets:     []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
			ConstLabels: constantLabels,
		}, []string{"outcome"}), // outcome: recovered, discarded, eos

		injectedFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "livekit",
			Subsystem:   "fallback",
			Name:        "injected_faults",
			Help:        "Synthetic faults raised by the fault injector",
			ConstLabels: constantLabels,
		}, []string{"kind"}),
	}

	reg.MustRegister(m.signals, m.switches, m.restarts, m.state, m.freezeDuration, m.injectedFaults)
	m.SetState(types.StateShowingSlate)
	return m
}

func (m *Monitor) IncSignal(kind types.SignalKind) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(kind.String()).Inc()
}

func (m *Monitor) IncSwitch(source types.VisibilitySource) {
	if m == nil {
		return
	}
	m.switches.WithLabelValues(string(source)).Inc()
}

func (m *Monitor) IncRestart(reason string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncInjectedFault(kind string) {
	if m == nil {
		return
	}
	m.injectedFaults.WithLabelValues(kind).Inc()
}

func (m *Monitor) ObserveFreeze(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.freezeDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

func (m *Monitor) SetState(state types.State) {
	if m == nil {
		return
	}
	for _, s := range []types.State{types.StateShowingSlate, types.StateShowingLive, types.StateFreezingLive} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}
