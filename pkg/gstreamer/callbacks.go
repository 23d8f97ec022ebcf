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
	"github.com/linkdata/deadlock"

	"github.com/livekit/fallback/pkg/types"
)

// Callbacks fans pipeline events out to their consumers. Bus watches and streaming
// threads both emit, OnEvent serializes them so consumers see a single ordered stream.
type Callbacks struct {
	mu     deadlock.RWMutex
	emitMu deadlock.Mutex

	onEvent func(types.RawEvent)
}

func (c *Callbacks) SetOnEvent(f func(types.RawEvent)) {
	c.mu.Lock()
	c.onEvent = f
	c.mu.Unlock()
}

func (c *Callbacks) OnEvent(ev types.RawEvent) {
	c.mu.RLock()
	onEvent := c.onEvent
	c.mu.RUnlock()
	if onEvent == nil {
		return
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	onEvent(ev)
}
