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
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/types"
)

type fakeIngest struct {
	mu       sync.Mutex
	starts   []uint64
	stops    int
	startErr error
}

func (f *fakeIngest) Start(generation uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, generation)
	return f.startErr
}

func (f *fakeIngest) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeIngest) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts), f.stops
}

func (f *fakeIngest) lastStart() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[len(f.starts)-1]
}

func newTestSupervisor(t *testing.T, policy types.RestartPolicy, ingest *fakeIngest) (*Supervisor, chan types.HealthSignal) {
	reported := make(chan types.HealthSignal, 10)
	s := New(policy, ingest, func(sig types.HealthSignal) {
		reported <- sig
	}, stats.NewMonitor("NF_test", prometheus.NewRegistry()))
	t.Cleanup(func() { _ = s.Close() })
	return s, reported
}

func TestStart(t *testing.T) {
	ingest := &fakeIngest{}
	s, _ := newTestSupervisor(t, types.DefaultRestartPolicy(), ingest)

	generation, err := s.Start()
	require.NoError(t, err)
	require.Equal(t, uint64(1), generation)

	starts, stops := ingest.counts()
	require.Equal(t, 1, starts)
	require.Zero(t, stops)
}

func TestRestartOnError(t *testing.T) {
	ingest := &fakeIngest{}
	s, _ := newTestSupervisor(t, types.DefaultRestartPolicy(), ingest)
	_, err := s.Start()
	require.NoError(t, err)

	const errorCount = 5
	var generation uint64
	for i := 0; i < errorCount; i++ {
		next := s.OnError(errors.New("boom"))
		require.Greater(t, next, generation)
		generation = next
	}
	require.Equal(t, uint64(errorCount), s.Restarts())

	// one restart per error, each with a fresh generation
	require.Eventually(t, func() bool {
		starts, stops := ingest.counts()
		return starts == errorCount+1 && stops == errorCount
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, generation, ingest.lastStart())
}

func TestNoRestartOnError(t *testing.T) {
	ingest := &fakeIngest{}
	s, _ := newTestSupervisor(t, types.RestartPolicy{RestartOnError: false, RestartOnEOS: true}, ingest)
	_, err := s.Start()
	require.NoError(t, err)

	generation := s.OnError(errors.New("boom"))
	require.Equal(t, uint64(2), generation)
	require.Zero(t, s.Restarts())

	require.Eventually(t, func() bool {
		_, stops := ingest.counts()
		return stops == 1
	}, time.Second, 10*time.Millisecond)
	starts, _ := ingest.counts()
	require.Equal(t, 1, starts)
}

func TestEOSPolicy(t *testing.T) {
	t.Run("restart", func(t *testing.T) {
		ingest := &fakeIngest{}
		s, _ := newTestSupervisor(t, types.DefaultRestartPolicy(), ingest)
		_, err := s.Start()
		require.NoError(t, err)

		s.OnEOS()
		require.Equal(t, uint64(1), s.Restarts())
		require.Eventually(t, func() bool {
			starts, stops := ingest.counts()
			return starts == 2 && stops == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stop", func(t *testing.T) {
		ingest := &fakeIngest{}
		s, _ := newTestSupervisor(t, types.RestartPolicy{RestartOnError: true, RestartOnEOS: false}, ingest)
		_, err := s.Start()
		require.NoError(t, err)

		s.OnEOS()
		require.Zero(t, s.Restarts())
		require.Eventually(t, func() bool {
			starts, stops := ingest.counts()
			return starts == 1 && stops == 1
		}, time.Second, 10*time.Millisecond)
	})
}

func TestRestartFailureReported(t *testing.T) {
	ingest := &fakeIngest{}
	s, reported := newTestSupervisor(t, types.DefaultRestartPolicy(), ingest)
	_, err := s.Start()
	require.NoError(t, err)

	ingest.mu.Lock()
	ingest.startErr = errors.New("connection refused")
	ingest.mu.Unlock()

	generation := s.OnError(errors.New("boom"))

	select {
	case sig := <-reported:
		require.Equal(t, types.SignalError, sig.Kind)
		require.Equal(t, generation, sig.Generation)
		require.Contains(t, sig.Cause.Error(), "connection refused")
	case <-time.After(time.Second):
		t.Fatal("restart failure not reported")
	}
}

func TestClose(t *testing.T) {
	ingest := &fakeIngest{}
	s := New(types.DefaultRestartPolicy(), ingest, func(types.HealthSignal) {}, nil)
	_, err := s.Start()
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, stops := ingest.counts()
	require.Equal(t, 1, stops)

	// commands after close do not block, close took generation 2
	require.Equal(t, uint64(3), s.OnError(errors.New("late")))

	_, err = s.Start()
	require.ErrorIs(t, err, errors.ErrSupervisorClosed)
}
