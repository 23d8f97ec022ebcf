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
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/frostbyte73/core"
	"github.com/go-gst/go-gst/gst"
	"github.com/linkdata/deadlock"
	"go.uber.org/atomic"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/fault"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

const identityName = "ingest_identity"

// IngestPipeline pulls the live source through playbin3 and publishes its video on
// an interpipesink. Every Start builds a fresh pipeline tagged with a generation.
type IngestPipeline struct {
	*Callbacks

	conf     config.IngestConfig
	dotDir   string
	injector *fault.Injector
	clock    clock.Clock
	logger   logger.Logger

	mu       deadlock.Mutex
	instance *ingestInstance
}

type ingestInstance struct {
	*Pipeline

	generation uint64
	watchdog   *stallWatchdog
	flowing    atomic.Bool
	probed     atomic.Bool
	closed     core.Fuse
}

type watchAction int

const (
	actionNone watchAction = iota
	actionPause
	actionPlay
	actionRecalculateLatency
	actionStateChanged
)

func NewIngestPipeline(conf *config.Config, injector *fault.Injector, onEvent func(types.RawEvent)) *IngestPipeline {
	callbacks := &Callbacks{}
	callbacks.SetOnEvent(onEvent)

	return &IngestPipeline{
		Callbacks: callbacks,
		conf:      conf.Ingest,
		dotDir:    conf.Debug.DotDir,
		injector:  injector,
		clock:     clock.New(),
		logger:    logger.GetLogger().WithValues("component", "ingest"),
	}
}

func (i *IngestPipeline) description() string {
	return fmt.Sprintf(
		`playbin3 uri="%s" video-sink="identity name=%s ! interpipesink name=%s forward-eos=true drop=false sync=true" audio-sink=fakesink`,
		i.conf.URI, identityName, i.conf.InterpipeName,
	)
}

func (i *IngestPipeline) Start(generation uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.instance != nil {
		i.stopInstance()
	}
	i.injector.Reset()

	p, err := NewPipeline(fmt.Sprintf("ingest-%d", generation), i.description(), i.dotDir, i.Callbacks)
	if err != nil {
		return err
	}

	inst := i.newInstance(p, generation)
	p.SetWatch(func(msg *gst.Message) bool {
		return i.watch(inst, msg)
	})

	i.logger.Debugw("starting ingest pipeline", "generation", generation)
	if err = p.Play(); err != nil {
		inst.closed.Break()
		_ = p.Stop()
		return err
	}

	go inst.watchdog.Run(inst.closed.Watch())
	i.instance = inst
	return nil
}

func (i *IngestPipeline) newInstance(p *Pipeline, generation uint64) *ingestInstance {
	inst := &ingestInstance{
		Pipeline:   p,
		generation: generation,
	}
	inst.watchdog = newStallWatchdog(i.clock, time.Duration(i.conf.StallTimeout), func() {
		i.onStall(inst)
	})
	return inst
}

// Stop returns once the current instance reached NULL. Nothing it emits afterwards
// is delivered.
func (i *IngestPipeline) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.stopInstance()
}

func (i *IngestPipeline) stopInstance() error {
	inst := i.instance
	if inst == nil {
		return nil
	}
	i.instance = nil

	inst.closed.Break()
	i.logger.Debugw("stopping ingest pipeline", "generation", inst.generation)
	return inst.Stop()
}

func (i *IngestPipeline) watch(inst *ingestInstance, msg *gst.Message) bool {
	if inst.closed.IsBroken() {
		return false
	}

	ev := translateMessage(msg, inst.generation)
	switch i.handleEvent(inst, ev) {
	case actionPause:
		if err := inst.Pause(); err != nil {
			i.logger.Warnw("failed to pause ingest", err)
		}

	case actionPlay:
		if err := inst.Play(); err != nil {
			i.logger.Warnw("failed to resume ingest", err)
		}

	case actionRecalculateLatency:
		inst.RecalculateLatency()

	case actionStateChanged:
		i.attachProbe(inst)
		if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying && inst.IsSource(msg) {
			i.logger.Debugw("ingest playing", "generation", inst.generation)
			inst.WriteDotFile("playing")
		}

	default:
		if ev.Type == types.RawEventUnknown {
			i.logger.Debugw(msg.String())
		}
	}

	return true
}

// handleEvent updates the instance flow state, forwards health events and tells the
// bus watch what to do with the pipeline.
func (i *IngestPipeline) handleEvent(inst *ingestInstance, ev types.RawEvent) watchAction {
	switch ev.Type {
	case types.RawEventBuffering:
		i.OnEvent(ev)
		// hold playback until the queue refills
		if ev.Percent < 100 {
			inst.flowing.Store(false)
			return actionPause
		}
		inst.flowing.Store(true)
		inst.watchdog.Kick()
		return actionPlay

	case types.RawEventError, types.RawEventEOS:
		inst.flowing.Store(false)
		i.OnEvent(ev)
		return actionNone

	case types.RawEventLatency:
		return actionRecalculateLatency

	case types.RawEventStateChanged:
		return actionStateChanged

	default:
		return actionNone
	}
}

// attachProbe hooks the identity element once playbin3 has plugged the video sink.
func (i *IngestPipeline) attachProbe(inst *ingestInstance) {
	if inst.probed.Load() {
		return
	}

	identity, err := inst.GetElementByName(identityName)
	if err != nil {
		return
	}
	pad := identity.GetStaticPad("src")
	if pad == nil || !inst.probed.CompareAndSwap(false, true) {
		return
	}

	pad.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, _ *gst.PadProbeInfo) gst.PadProbeReturn {
		return i.onBuffer(inst)
	})
}

// onBuffer runs on the streaming thread.
func (i *IngestPipeline) onBuffer(inst *ingestInstance) gst.PadProbeReturn {
	if inst.closed.IsBroken() || i.injector.Fired() {
		return gst.PadProbeDrop
	}

	if ev, ok := i.injector.OnBuffer(inst.generation); ok {
		inst.flowing.Store(false)
		i.OnEvent(ev)
		return gst.PadProbeDrop
	}

	inst.watchdog.Kick()

	// first frame after a stall
	if !inst.flowing.Swap(true) {
		i.OnEvent(types.RawEvent{
			Type:       types.RawEventFrame,
			Source:     identityName,
			Generation: inst.generation,
		})
	}
	return gst.PadProbeOK
}

// onStall reports a source that stopped producing without telling the bus.
func (i *IngestPipeline) onStall(inst *ingestInstance) {
	if inst.closed.IsBroken() || !inst.flowing.Swap(false) {
		return
	}

	i.logger.Infow("ingest stalled", "generation", inst.generation, "timeout", time.Duration(i.conf.StallTimeout))
	i.OnEvent(types.RawEvent{
		Type:       types.RawEventBuffering,
		Percent:    0,
		Source:     identityName,
		Generation: inst.generation,
	})
}

// Generation returns the generation of the running instance, or 0.
func (i *IngestPipeline) Generation() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.instance == nil {
		return 0
	}
	return i.instance.generation
}
