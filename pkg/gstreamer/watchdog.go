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
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// stallWatchdog fires once when no buffer has been seen for timeout. A source that
// simply stops producing posts nothing on the bus, so buffers are the only evidence.
type stallWatchdog struct {
	clock   clock.Clock
	timeout time.Duration
	onStall func()

	armed atomic.Bool
	last  atomic.Int64
}

func newStallWatchdog(clk clock.Clock, timeout time.Duration, onStall func()) *stallWatchdog {
	return &stallWatchdog{
		clock:   clk,
		timeout: timeout,
		onStall: onStall,
	}
}

// Kick records a buffer and re-arms the watchdog.
func (w *stallWatchdog) Kick() {
	if w == nil {
		return
	}
	w.last.Store(w.clock.Now().UnixNano())
	w.armed.Store(true)
}

func (w *stallWatchdog) Run(done <-chan struct{}) {
	if w == nil || w.timeout <= 0 {
		return
	}

	interval := w.timeout / 4
	if interval <= 0 {
		interval = w.timeout
	}
	ticker := w.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *stallWatchdog) check() bool {
	if !w.armed.Load() {
		return false
	}
	if w.clock.Since(time.Unix(0, w.last.Load())) < w.timeout {
		return false
	}
	if !w.armed.CompareAndSwap(true, false) {
		return false
	}

	w.onStall()
	return true
}
