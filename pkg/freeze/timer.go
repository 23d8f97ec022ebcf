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

package freeze

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/livekit/fallback/pkg/types"
)

// Timer decides when a frozen live frame should be discarded.
//
// Timer is not safe for concurrent use. Arm, Cancel and Expired must all be called from
// the goroutine that owns the controller state. The fire callback runs on a clock goroutine
// and only receives the generation it was armed with; the owner hands it back to Expired,
// which rejects anything armed before the latest Arm or Cancel.
type Timer struct {
	clock clock.Clock
	fire  func(generation uint64)

	generation uint64
	pending    *clock.Timer
	deadline   time.Time
}

func NewTimer(clk clock.Clock, fire func(generation uint64)) *Timer {
	return &Timer{
		clock: clk,
		fire:  fire,
	}
}

// Arm schedules an expiry at startedAt plus the policy's discard delay, replacing any pending
// expiry. It returns false when the policy holds forever and nothing was scheduled.
func (t *Timer) Arm(policy types.FreezePolicy, startedAt time.Time) bool {
	t.Cancel()

	d, ok := policy.Deadline()
	if !ok {
		return false
	}

	t.deadline = startedAt.Add(d)
	delay := t.deadline.Sub(t.clock.Now())
	if delay < 0 {
		delay = 0
	}

	generation := t.generation
	fire := t.fire
	t.pending = t.clock.AfterFunc(delay, func() {
		fire(generation)
	})
	return true
}

// Cancel invalidates the pending expiry, including one that has already fired
// but has not yet been handed to Expired.
func (t *Timer) Cancel() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.deadline = time.Time{}
	t.generation++
}

// Expired consumes an expiry. It reports true only for the generation of the current pending arm.
func (t *Timer) Expired(generation uint64) bool {
	if t.pending == nil || generation != t.generation {
		return false
	}
	t.pending = nil
	t.deadline = time.Time{}
	t.generation++
	return true
}

// Deadline returns the scheduled expiry, or the zero time if nothing is pending.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}
