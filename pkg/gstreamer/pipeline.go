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
	"os"
	"path"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/protocol/logger"
)

// Pipeline wraps a parsed gst pipeline with the operations both the ingest and
// the compositor need.
type Pipeline struct {
	*Callbacks
	*StateManager

	name     string
	pipeline *gst.Pipeline
	dotDir   string
	logger   logger.Logger
}

func NewPipeline(name, description, dotDir string, callbacks *Callbacks) (*Pipeline, error) {
	pipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, errors.ErrGstPipelineError(err)
	}

	return &Pipeline{
		Callbacks:    callbacks,
		StateManager: &StateManager{},
		name:         name,
		pipeline:     pipeline,
		dotDir:       dotDir,
		logger:       logger.GetLogger().WithValues("pipeline", name),
	}, nil
}

func (p *Pipeline) SetWatch(watch func(msg *gst.Message) bool) {
	p.pipeline.GetPipelineBus().AddWatch(watch)
}

// IsSource reports whether msg was posted by the pipeline itself rather than a child.
func (p *Pipeline) IsSource(msg *gst.Message) bool {
	return msg.Source() == p.pipeline.GetName()
}

func (p *Pipeline) GetElementByName(name string) (*gst.Element, error) {
	e, err := p.pipeline.GetElementByName(name)
	if err != nil || e == nil {
		return nil, errors.ErrElementNotFound(name)
	}
	return e, nil
}

func (p *Pipeline) Play() error {
	p.logger.Debugw("setting state to playing")
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	p.UpgradeState(StateRunning)
	return nil
}

func (p *Pipeline) Pause() error {
	if err := p.pipeline.SetState(gst.StatePaused); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return nil
}

// Reset takes the pipeline down to NULL and back to PLAYING, in place.
func (p *Pipeline) Reset() error {
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return p.Play()
}

func (p *Pipeline) Stop() error {
	if _, ok := p.UpgradeState(StateStopping); !ok {
		return nil
	}

	p.logger.Debugw("setting state to null")
	err := p.pipeline.SetState(gst.StateNull)
	p.UpgradeState(StateStopped)
	if err != nil {
		return errors.ErrGstPipelineError(err)
	}
	return nil
}

func (p *Pipeline) RecalculateLatency() {
	if !p.pipeline.RecalculateLatency() {
		p.logger.Debugw("latency recalculation failed")
	}
}

func (p *Pipeline) DebugBinToDotData(details gst.DebugGraphDetails) string {
	return p.pipeline.DebugBinToDotData(details)
}

// WriteDotFile dumps the pipeline graph into the debug directory, if one is configured.
func (p *Pipeline) WriteDotFile(suffix string) {
	if p.dotDir == "" {
		return
	}

	filename := path.Join(p.dotDir, fmt.Sprintf("%s-%s-%d.dot", p.name, suffix, time.Now().UnixMilli()))
	if err := os.WriteFile(filename, []byte(p.DebugBinToDotData(gst.DebugGraphShowAll)), 0644); err != nil {
		p.logger.Warnw("failed to write dot file", err, "filename", filename)
		return
	}
	p.logger.Debugw("dot file written", "filename", filename)
}
