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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/health"
	"github.com/livekit/fallback/pkg/types"
)

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func TestNoFault(t *testing.T) {
	i := New(&config.FaultConfig{}, nil)
	require.Nil(t, i)

	_, ok := i.OnBuffer(1)
	require.False(t, ok)
	require.False(t, i.Fired())
	require.Zero(t, i.Count())
	i.Reset()
}

func TestErrorAfter(t *testing.T) {
	i := New(&config.FaultConfig{ErrorAfter: uint64Ptr(3)}, nil)

	for n := 0; n < 2; n++ {
		_, ok := i.OnBuffer(1)
		require.False(t, ok)
	}
	require.False(t, i.Fired())

	ev, ok := i.OnBuffer(1)
	require.True(t, ok)
	require.Equal(t, types.RawEventError, ev.Type)
	require.Equal(t, uint64(1), ev.Generation)
	require.True(t, i.Fired())

	sig, ok := health.Classify(ev)
	require.True(t, ok)
	require.Equal(t, types.SignalError, sig.Kind)
	require.Contains(t, sig.Cause.Error(), "injected error after 3 buffers")

	// fires once per run
	_, ok = i.OnBuffer(1)
	require.False(t, ok)

	i.Reset()
	require.False(t, i.Fired())
	require.Zero(t, i.Count())
	for n := 0; n < 2; n++ {
		_, ok = i.OnBuffer(2)
		require.False(t, ok)
	}
	ev, ok = i.OnBuffer(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), ev.Generation)
}

func TestEOSAfter(t *testing.T) {
	i := New(&config.FaultConfig{EOSAfter: uint64Ptr(1)}, nil)

	ev, ok := i.OnBuffer(5)
	require.True(t, ok)
	require.Equal(t, types.RawEventEOS, ev.Type)

	sig, ok := health.Classify(ev)
	require.True(t, ok)
	require.Equal(t, types.SignalEndOfStream, sig.Kind)
}

func TestFiresOnceConcurrently(t *testing.T) {
	i := New(&config.FaultConfig{ErrorAfter: uint64Ptr(50)}, nil)

	var mu sync.Mutex
	fired := 0
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 100; n++ {
				if _, ok := i.OnBuffer(1); ok {
					mu.Lock()
					fired++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, fired)
}
