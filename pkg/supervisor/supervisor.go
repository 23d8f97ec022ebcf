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

package supervisor

import (
	"github.com/frostbyte73/core"
	"github.com/linkdata/deadlock"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

const (
	ReasonError = "error"
	ReasonEOS   = "eos"

	commandQueueSize = 64
)

// Ingest is a restartable live source. Stop must not return until the instance
// has stopped emitting events.
type Ingest interface {
	Start(generation uint64) error
	Stop() error
}

type command struct {
	generation uint64
	restart    bool
	reason     string
}

// Supervisor owns the ingest pipeline lifecycle. Every decision bumps the ingest generation,
// so events from a torn-down instance can be told apart from the new one.
type Supervisor struct {
	policy  types.RestartPolicy
	ingest  Ingest
	report  func(types.HealthSignal)
	monitor *stats.Monitor
	logger  logger.Logger

	mu         deadlock.Mutex
	generation uint64
	restarts   uint64
	running    bool

	commands chan command
	closed   core.Fuse
	done     core.Fuse
}

// New creates a supervisor. Restart failures are passed to report as Error signals,
// tagged with the generation that failed to start.
func New(policy types.RestartPolicy, ingest Ingest, report func(types.HealthSignal), monitor *stats.Monitor) *Supervisor {
	return &Supervisor{
		policy:   policy,
		ingest:   ingest,
		report:   report,
		monitor:  monitor,
		logger:   logger.GetLogger().WithValues("component", "supervisor"),
		commands: make(chan command, commandQueueSize),
	}
}

// Start launches the first ingest instance and the lifecycle worker.
func (s *Supervisor) Start() (uint64, error) {
	if s.closed.IsBroken() {
		return 0, errors.ErrSupervisorClosed
	}

	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.running = true
	s.mu.Unlock()

	go s.worker()

	s.logger.Infow("starting ingest", "generation", generation)
	if err := s.ingest.Start(generation); err != nil {
		return generation, err
	}
	return generation, nil
}

// OnError restarts the ingest if the policy allows it, otherwise leaves it stopped.
// It returns the generation subsequent signals must carry.
func (s *Supervisor) OnError(cause error) uint64 {
	s.logger.Debugw("ingest error", "error", cause, "restart", s.policy.RestartOnError)
	return s.enqueue(s.policy.RestartOnError, ReasonError)
}

// OnEOS restarts the ingest if the policy allows it, otherwise leaves it stopped.
func (s *Supervisor) OnEOS() uint64 {
	s.logger.Debugw("ingest end of stream", "restart", s.policy.RestartOnEOS)
	return s.enqueue(s.policy.RestartOnEOS, ReasonEOS)
}

// Restarts returns how many restart commands were issued.
func (s *Supervisor) Restarts() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

func (s *Supervisor) enqueue(restart bool, reason string) uint64 {
	s.mu.Lock()
	s.generation++
	cmd := command{
		generation: s.generation,
		restart:    restart,
		reason:     reason,
	}
	if restart {
		s.restarts++
	}
	s.mu.Unlock()

	if restart {
		s.monitor.IncRestart(reason)
	}

	select {
	case s.commands <- cmd:
	case <-s.closed.Watch():
	}
	return cmd.generation
}

func (s *Supervisor) worker() {
	defer s.done.Break()

	for {
		select {
		case <-s.closed.Watch():
			return
		case cmd := <-s.commands:
			s.handle(cmd)
		}
	}
}

func (s *Supervisor) handle(cmd command) {
	// restart is always a full teardown and rebuild
	if err := s.ingest.Stop(); err != nil {
		s.logger.Warnw("failed to stop ingest", err, "generation", cmd.generation)
	}
	if !cmd.restart {
		s.logger.Infow("ingest stopped", "reason", cmd.reason, "generation", cmd.generation)
		return
	}

	s.logger.Infow("restarting ingest", "reason", cmd.reason, "generation", cmd.generation)
	if err := s.ingest.Start(cmd.generation); err != nil {
		s.logger.Warnw("ingest restart failed", err, "generation", cmd.generation)
		// reported asynchronously, the consumer may be blocked handing us a command
		go s.report(types.Error(errors.ErrRestartFailed(err), cmd.generation))
	}
}

// Close stops the worker and the ingest. Commands still queued are dropped.
func (s *Supervisor) Close() error {
	s.closed.Break()

	s.mu.Lock()
	running := s.running
	s.generation++
	s.mu.Unlock()

	if running {
		<-s.done.Watch()
	}

	return s.ingest.Stop()
}
