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
	"strings"

	"github.com/go-gst/go-gst/gst"
	"go.uber.org/atomic"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
)

const (
	compositorName = "fallback_compositor"
	livePadName    = "sink_0"
	slatePadName   = "sink_1"
	liveSrcName    = "live_src"
)

// CompositorPipeline renders the live input stacked over the slate. The live pad sits on
// top, so its alpha alone decides which input is shown.
type CompositorPipeline struct {
	*Pipeline

	livePad *gst.Pad
	visible atomic.String
	logger  logger.Logger
}

func compositorDescription(conf *config.Config) string {
	c := conf.Compositor
	return strings.Join([]string{
		fmt.Sprintf("compositor name=%s", compositorName),
		fmt.Sprintf("%s::zorder=1 %s::alpha=0 %s::width=%d %s::height=%d", livePadName, livePadName, livePadName, c.Width, livePadName, c.Height),
		fmt.Sprintf("%s::zorder=0 %s::width=%d %s::height=%d", slatePadName, slatePadName, c.Width, slatePadName, c.Height),
		fmt.Sprintf("! videoconvert ! %s", c.VideoSink),

		fmt.Sprintf("interpipesrc name=%s listen-to=%s format=time is-live=true stream-sync=compensate-ts", liveSrcName, conf.Ingest.InterpipeName),
		fmt.Sprintf("! queue ! videoconvert ! %s.%s", compositorName, livePadName),

		fmt.Sprintf("videotestsrc is-live=true pattern=%s", c.SlatePattern),
		fmt.Sprintf(`! queue ! capsfilter caps="video/x-raw,width=%d,height=%d"`, c.SlateWidth, c.SlateHeight),
		fmt.Sprintf("! videoconvert ! %s.%s", compositorName, slatePadName),
	}, " ")
}

func NewCompositorPipeline(conf *config.Config) (*CompositorPipeline, error) {
	p, err := NewPipeline("compositor", compositorDescription(conf), conf.Debug.DotDir, &Callbacks{})
	if err != nil {
		return nil, err
	}

	compositor, err := p.GetElementByName(compositorName)
	if err != nil {
		return nil, err
	}
	livePad := compositor.GetStaticPad(livePadName)
	if livePad == nil {
		return nil, errors.ErrCompositorPadMissing
	}

	c := &CompositorPipeline{
		Pipeline: p,
		livePad:  livePad,
		logger:   logger.GetLogger().WithValues("component", "compositor"),
	}
	c.visible.Store(string(types.SourceSlate))
	p.SetWatch(c.watch)
	return c, nil
}

// SetVisible flips the live pad alpha. The compositor picks it up on its next
// output frame, so both inputs are never blended.
func (c *CompositorPipeline) SetVisible(source types.VisibilitySource) error {
	if c.GetState() >= StateStopping {
		return errors.ErrPipelineNotRunning
	}

	alpha := 0.0
	if source == types.SourceLive {
		alpha = 1.0
	}

	if err := c.livePad.SetProperty("alpha", alpha); err != nil {
		return errors.ErrGstPipelineError(err)
	}
	c.visible.Store(string(source))
	c.logger.Debugw("visible source set", "source", source)
	return nil
}

func (c *CompositorPipeline) Visible() types.VisibilitySource {
	return types.VisibilitySource(c.visible.Load())
}

func (c *CompositorPipeline) watch(msg *gst.Message) bool {
	if c.GetState() >= StateStopping {
		return false
	}

	ev := translateMessage(msg, 0)
	switch ev.Type {
	case types.RawEventError:
		// output failures are not ingest health, restart in place
		c.logger.Warnw("compositor error", errors.ErrSourceFailure(ev.Source, ev.Message, ev.Debug))
		if err := c.Reset(); err != nil {
			c.logger.Errorw("failed to restart compositor", err)
		}

	case types.RawEventLatency:
		c.RecalculateLatency()

	case types.RawEventStateChanged:
		if _, newState := msg.ParseStateChanged(); newState == gst.StatePlaying && c.IsSource(msg) {
			c.logger.Debugw("compositor playing")
			c.WriteDotFile("playing")
		}

	case types.RawEventEOS:
		c.logger.Debugw("compositor end of stream")
	}

	return true
}
