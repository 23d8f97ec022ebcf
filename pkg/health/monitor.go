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
	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

// Classify maps a bus-level event to a health signal. Events that say nothing
// about source health are not classified.
func Classify(ev types.RawEvent) (types.HealthSignal, bool) {
	switch ev.Type {
	case types.RawEventBuffering:
		percent := clampPercent(ev.Percent)
		if percent >= 100 {
			return types.Flowing(ev.Generation), true
		}
		return types.Buffering(percent, ev.Generation), true

	case types.RawEventFrame:
		return types.Flowing(ev.Generation), true

	case types.RawEventError:
		return types.Error(errors.ErrSourceFailure(ev.Source, ev.Message, ev.Debug), ev.Generation), true

	case types.RawEventEOS:
		return types.EndOfStream(ev.Generation), true

	default:
		return types.HealthSignal{}, false
	}
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Monitor forwards classified ingest events to a single consumer, in delivery order.
type Monitor struct {
	submit  func(types.HealthSignal)
	monitor *stats.Monitor
	logger  logger.Logger

	lastPercent int
}

func NewMonitor(submit func(types.HealthSignal), monitor *stats.Monitor) *Monitor {
	return &Monitor{
		submit:      submit,
		monitor:     monitor,
		logger:      logger.GetLogger().WithValues("component", "health"),
		lastPercent: -1,
	}
}

// HandleEvent must be called from a single goroutine, the one delivering bus events.
func (m *Monitor) HandleEvent(ev types.RawEvent) {
	sig, ok := Classify(ev)
	if !ok {
		return
	}

	switch sig.Kind {
	case types.SignalBuffering:
		// buffering messages arrive in bursts, only log progress changes
		if sig.Percent != m.lastPercent {
			m.logger.Debugw("buffering", "percent", sig.Percent, "generation", sig.Generation)
			m.lastPercent = sig.Percent
		}
	case types.SignalError:
		m.logger.Warnw("ingest error", sig.Cause, "generation", sig.Generation)
		m.lastPercent = -1
	case types.SignalEndOfStream:
		m.logger.Infow("ingest end of stream", "generation", sig.Generation)
		m.lastPercent = -1
	case types.SignalFlowing:
		m.lastPercent = -1
	}

	m.monitor.IncSignal(sig.Kind)
	m.submit(sig)
}
