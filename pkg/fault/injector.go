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

package fault

import (
	"go.uber.org/atomic"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

const (
	KindError = "error"
	KindEOS   = "eos"
)

// Injector raises a synthetic error or end of stream once a number of buffers went through
// the ingest pipeline. It is safe to call from streaming threads.
type Injector struct {
	kind    string
	after   uint64
	monitor *stats.Monitor

	count atomic.Uint64
	fired atomic.Bool
}

// New returns nil when no fault is configured. A nil *Injector never fires.
func New(conf *config.FaultConfig, monitor *stats.Monitor) *Injector {
	switch {
	case conf.ErrorAfter != nil:
		return &Injector{kind: KindError, after: *conf.ErrorAfter, monitor: monitor}
	case conf.EOSAfter != nil:
		return &Injector{kind: KindEOS, after: *conf.EOSAfter, monitor: monitor}
	default:
		return nil
	}
}

// OnBuffer counts one buffer. It returns the synthetic event exactly once, on the buffer
// that reaches the threshold.
func (i *Injector) OnBuffer(generation uint64) (types.RawEvent, bool) {
	if i == nil || i.fired.Load() {
		return types.RawEvent{}, false
	}

	n := i.count.Inc()
	if n < i.after || !i.fired.CompareAndSwap(false, true) {
		return types.RawEvent{}, false
	}

	logger.Infow("injecting fault", "kind", i.kind, "buffers", n, "generation", generation)
	i.monitor.IncInjectedFault(i.kind)

	if i.kind == KindEOS {
		return types.RawEvent{
			Type:       types.RawEventEOS,
			Source:     "fault-injector",
			Generation: generation,
		}, true
	}
	return types.RawEvent{
		Type:       types.RawEventError,
		Source:     "fault-injector",
		Message:    errors.ErrInjectedFault(i.kind, n).Error(),
		Generation: generation,
	}, true
}

// Fired reports whether the fault was raised since the last Reset. The ingest pipeline
// drops buffers while this is true, so the source visibly stops producing.
func (i *Injector) Fired() bool {
	return i != nil && i.fired.Load()
}

func (i *Injector) Count() uint64 {
	if i == nil {
		return 0
	}
	return i.count.Load()
}

// Reset rearms the injector for a new ingest instance.
func (i *Injector) Reset() {
	if i == nil {
		return
	}
	i.count.Store(0)
	i.fired.Store(false)
}
