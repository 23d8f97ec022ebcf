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
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/livekit/fallback/pkg/types"
)

func newTestTimer() (*Timer, *clock.Mock, chan uint64) {
	clk := clock.NewMock()
	fired := make(chan uint64, 10)
	return NewTimer(clk, func(generation uint64) { fired <- generation }), clk, fired
}

func waitFired(t *testing.T, fired chan uint64) uint64 {
	select {
	case g := <-fired:
		return g
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
		return 0
	}
}

func requireNotFired(t *testing.T, fired chan uint64) {
	select {
	case g := <-fired:
		t.Fatalf("unexpected expiry for generation %d", g)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArmFires(t *testing.T) {
	timer, clk, fired := newTestTimer()

	require.True(t, timer.Arm(types.DiscardAfter(2*time.Second), clk.Now()))
	require.False(t, timer.Deadline().IsZero())
	require.Equal(t, clk.Now().Add(2*time.Second), timer.Deadline())

	clk.Add(time.Second)
	requireNotFired(t, fired)

	clk.Add(time.Second)
	g := waitFired(t, fired)
	require.True(t, timer.Expired(g))
	require.True(t, timer.Deadline().IsZero())

	// an expiry is consumed once
	require.False(t, timer.Expired(g))
}

func TestHoldForever(t *testing.T) {
	timer, clk, fired := newTestTimer()

	require.False(t, timer.Arm(types.HoldForever(), clk.Now()))
	require.True(t, timer.Deadline().IsZero())

	clk.Add(time.Hour)
	requireNotFired(t, fired)
}

func TestCancel(t *testing.T) {
	timer, clk, fired := newTestTimer()

	timer.Arm(types.DiscardAfter(2*time.Second), clk.Now())
	clk.Add(time.Second)
	timer.Cancel()
	require.True(t, timer.Deadline().IsZero())

	clk.Add(time.Hour)
	requireNotFired(t, fired)
}

func TestCancelWinsAfterFire(t *testing.T) {
	timer, clk, fired := newTestTimer()

	timer.Arm(types.DiscardAfter(time.Second), clk.Now())
	clk.Add(time.Second)
	g := waitFired(t, fired)

	// the expiry was delivered but the owner cancelled before handling it
	timer.Cancel()
	require.False(t, timer.Expired(g))
}

func TestRearm(t *testing.T) {
	timer, clk, fired := newTestTimer()

	start := clk.Now()
	timer.Arm(types.DiscardAfter(time.Second), start)
	timer.Arm(types.DiscardAfter(3*time.Second), start)

	clk.Add(time.Second)
	requireNotFired(t, fired)

	clk.Add(2 * time.Second)
	g := waitFired(t, fired)
	require.True(t, timer.Expired(g))
}

func TestArmInPast(t *testing.T) {
	timer, clk, fired := newTestTimer()

	start := clk.Now()
	clk.Add(5 * time.Second)
	timer.Arm(types.DiscardAfter(2*time.Second), start)

	clk.Add(time.Millisecond)
	g := waitFired(t, fired)
	require.True(t, timer.Expired(g))
}
