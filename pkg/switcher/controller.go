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

package switcher

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/frostbyte73/core"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/freeze"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

const eventQueueSize = 256

// Compositor shows exactly one of the two inputs. SetVisible must be atomic with respect to rendering.
type Compositor interface {
	SetVisible(source types.VisibilitySource) error
}

// Supervisor receives lifecycle decisions. Both calls return the ingest generation that
// subsequent signals will carry, and must not block on pipeline I/O.
type Supervisor interface {
	OnError(cause error) uint64
	OnEOS() uint64
}

type Transition struct {
	From   types.State `json:"from"`
	To     types.State `json:"to"`
	Signal string      `json:"signal"`
	At     time.Time   `json:"at"`
}

type Snapshot struct {
	State       types.State
	Active      types.VisibilitySource
	FrozenSince time.Time // zero unless freezing
	Deadline    time.Time // zero unless a discard is scheduled
	Generation  uint64
}

type eventType int

const (
	eventSignal eventType = iota
	eventExpiry
	eventSnapshot
)

type event struct {
	typ        eventType
	signal     types.HealthSignal
	generation uint64
	reply      chan Snapshot
}

type Params struct {
	FreezePolicy types.FreezePolicy
	Compositor   Compositor
	Supervisor   Supervisor
	Monitor      *stats.Monitor
	Clock        clock.Clock // defaults to the wall clock
}

// Controller decides which input is visible. All state is owned by the goroutine running Run;
// signals, timer expiries and queries reach it through a single FIFO queue.
type Controller struct {
	policy     types.FreezePolicy
	compositor Compositor
	supervisor Supervisor
	monitor    *stats.Monitor
	clock      clock.Clock
	logger     logger.Logger

	events      chan event
	subscribers []func(Transition)
	stopped     core.Fuse

	// owned by the Run goroutine
	state       types.State
	frozenSince time.Time
	generation  uint64
	timer       *freeze.Timer
}

func New(p Params) *Controller {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	c := &Controller{
		policy:     p.FreezePolicy,
		compositor: p.Compositor,
		supervisor: p.Supervisor,
		monitor:    p.Monitor,
		clock:      clk,
		logger:     logger.GetLogger().WithValues("component", "switcher"),
		events:     make(chan event, eventQueueSize),
		state:      types.StateShowingSlate,
	}
	c.timer = freeze.NewTimer(clk, c.onTimerFired)
	return c
}

// Subscribe registers a transition callback. It must be called before Run and is invoked
// on the controller goroutine, so it must not call back into the controller.
func (c *Controller) Subscribe(f func(Transition)) {
	c.subscribers = append(c.subscribers, f)
}

// Submit queues a health signal. Signals are handled in submission order.
func (c *Controller) Submit(sig types.HealthSignal) {
	c.enqueue(event{typ: eventSignal, signal: sig})
}

// Snapshot returns the controller state after every previously submitted signal was handled.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !c.enqueue(event{typ: eventSnapshot, reply: reply}) {
		return Snapshot{}, errors.ErrControllerClosed
	}

	select {
	case s := <-reply:
		return s, nil
	case <-c.stopped.Watch():
		return Snapshot{}, errors.ErrControllerClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (c *Controller) enqueue(ev event) bool {
	select {
	case <-c.stopped.Watch():
		return false
	default:
	}

	select {
	case c.events <- ev:
		return true
	case <-c.stopped.Watch():
		return false
	}
}

func (c *Controller) onTimerFired(generation uint64) {
	c.enqueue(event{typ: eventExpiry, generation: generation})
}

// Run processes events until ctx is done. There is no terminal state before that.
func (c *Controller) Run(ctx context.Context) {
	defer func() {
		c.stopped.Break()
		c.timer.Cancel()
	}()

	c.logger.Infow("switcher running", "freezePolicy", c.policy.String())
	for {
		select {
		case <-ctx.Done():
			c.logger.Debugw("switcher stopped", "state", c.state)
			return
		case ev := <-c.events:
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev event) {
	switch ev.typ {
	case eventSignal:
		c.handleSignal(ev.signal)
	case eventExpiry:
		c.handleExpiry(ev.generation)
	case eventSnapshot:
		ev.reply <- Snapshot{
			State:       c.state,
			Active:      c.state.Visible(),
			FrozenSince: c.frozenSince,
			Deadline:    c.timer.Deadline(),
			Generation:  c.generation,
		}
	}
}

func (c *Controller) handleSignal(sig types.HealthSignal) {
	if sig.Generation < c.generation {
		c.logger.Debugw("dropping signal from stopped ingest",
			"signal", sig.String(),
			"generation", sig.Generation,
			"current", c.generation,
		)
		return
	}
	c.generation = sig.Generation

	switch sig.Kind {
	case types.SignalFlowing:
		c.onFlowing(sig)

	case types.SignalBuffering:
		c.onStalled(sig)

	case types.SignalError:
		c.onStalled(sig)
		c.generation = c.supervisor.OnError(sig.Cause)

	case types.SignalEndOfStream:
		c.onEOS(sig)
		c.generation = c.supervisor.OnEOS()
	}
}

func (c *Controller) onFlowing(sig types.HealthSignal) {
	switch c.state {
	case types.StateShowingSlate:
		c.transition(types.StateShowingLive, sig.String())

	case types.StateFreezingLive:
		c.monitor.ObserveFreeze("recovered", c.clock.Since(c.frozenSince))
		c.timer.Cancel()
		c.frozenSince = time.Time{}
		c.transition(types.StateShowingLive, sig.String())
	}
}

func (c *Controller) onStalled(sig types.HealthSignal) {
	if c.state != types.StateShowingLive {
		// already frozen: the frame has not changed, so the deadline stands
		return
	}

	if c.policy.Immediate() {
		c.transition(types.StateShowingSlate, sig.String())
		return
	}

	now := c.clock.Now()
	c.frozenSince = now
	c.timer.Arm(c.policy, now)
	c.transition(types.StateFreezingLive, sig.String())
}

func (c *Controller) onEOS(sig types.HealthSignal) {
	switch c.state {
	case types.StateShowingLive:
		c.transition(types.StateShowingSlate, sig.String())

	case types.StateFreezingLive:
		c.monitor.ObserveFreeze("eos", c.clock.Since(c.frozenSince))
		c.timer.Cancel()
		c.frozenSince = time.Time{}
		c.transition(types.StateShowingSlate, sig.String())
	}
}

func (c *Controller) handleExpiry(generation uint64) {
	if !c.timer.Expired(generation) {
		// cancelled after it fired
		return
	}
	if c.state != types.StateFreezingLive {
		return
	}

	c.monitor.ObserveFreeze("discarded", c.clock.Since(c.frozenSince))
	c.frozenSince = time.Time{}
	c.transition(types.StateShowingSlate, "freeze-expired")
}

func (c *Controller) transition(to types.State, cause string) {
	from := c.state
	c.state = to

	if from.Visible() != to.Visible() {
		source := to.Visible()
		if err := c.compositor.SetVisible(source); err != nil {
			c.logger.Errorw("failed to set visible source", err, "source", source)
		}
		c.monitor.IncSwitch(source)
	}
	c.monitor.SetState(to)

	c.logger.Infow("state changed", "from", from, "to", to, "cause", cause)

	t := Transition{
		From:   from,
		To:     to,
		Signal: cause,
		At:     c.clock.Now(),
	}
	for _, f := range c.subscribers {
		f(t)
	}
}
