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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/frostbyte73/core"
	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
	"github.com/linkdata/deadlock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/fault"
	"github.com/livekit/fallback/pkg/gstreamer"
	"github.com/livekit/fallback/pkg/health"
	"github.com/livekit/fallback/pkg/stats"
	"github.com/livekit/fallback/pkg/supervisor"
	"github.com/livekit/fallback/pkg/switcher"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/fallback/version"
	"github.com/livekit/protocol/logger"
)

const statusTimeout = 2 * time.Second

type Server struct {
	conf    *config.Config
	monitor *stats.Monitor

	controller *switcher.Controller
	supervisor *supervisor.Supervisor
	health     *health.Monitor
	injector   *fault.Injector
	ingest     *gstreamer.IngestPipeline
	compositor *gstreamer.CompositorPipeline

	loop       *glib.MainLoop
	promServer *http.Server

	mu             deadlock.Mutex
	lastTransition *switcher.Transition

	shutdown core.Fuse
}

type Status struct {
	NodeID            string               `json:"node_id"`
	Version           string               `json:"version"`
	State             string               `json:"state"`
	Visible           string               `json:"visible"`
	CompositorVisible string               `json:"compositor_visible"` // last source the compositor applied
	FreezePolicy      string               `json:"freeze_policy"`
	FrozenSince       *time.Time           `json:"frozen_since,omitempty"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	Generation        uint64               `json:"generation"`
	IngestGeneration  uint64               `json:"ingest_generation"` // 0 while no ingest pipeline runs
	Restarts          uint64               `json:"restarts"`
	InjectedFault     bool                 `json:"injected_fault"`
	FaultBuffers      uint64               `json:"fault_buffers"`
	LastTransition    *switcher.Transition `json:"last_transition,omitempty"`
}

// pipelineStatus is read from the pipelines, outside the controller loop.
type pipelineStatus struct {
	compositorVisible types.VisibilitySource
	ingestGeneration  uint64
	restarts          uint64
	injectedFault     bool
	faultBuffers      uint64
}

func NewServer(conf *config.Config) (*Server, error) {
	gst.Init(nil)

	s := &Server{
		conf:    conf,
		monitor: stats.NewMonitor(conf.NodeID, prometheus.DefaultRegisterer),
		loop:    glib.NewMainLoop(glib.MainContextDefault(), false),
	}

	compositor, err := gstreamer.NewCompositorPipeline(conf)
	if err != nil {
		return nil, err
	}
	s.compositor = compositor

	s.health = health.NewMonitor(s.submit, s.monitor)
	s.injector = fault.New(&conf.Fault, s.monitor)
	s.ingest = gstreamer.NewIngestPipeline(conf, s.injector, s.health.HandleEvent)
	s.supervisor = supervisor.New(conf.RestartPolicy(), s.ingest, s.submit, s.monitor)
	s.controller = switcher.New(switcher.Params{
		FreezePolicy: conf.FreezePolicy(),
		Compositor:   compositor,
		Supervisor:   s.supervisor,
		Monitor:      s.monitor,
	})
	s.controller.Subscribe(s.onTransition)

	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}

		promListener, err := net.Listen("tcp", s.promServer.Addr)
		if err != nil {
			return nil, err
		}
		go func() {
			_ = s.promServer.Serve(promListener)
		}()
	}

	return s, nil
}

func (s *Server) submit(sig types.HealthSignal) {
	s.controller.Submit(sig)
}

func (s *Server) onTransition(t switcher.Transition) {
	s.mu.Lock()
	s.lastTransition = &t
	s.mu.Unlock()
}

func (s *Server) Run() error {
	logger.Debugw("starting service", "version", version.Version)

	ctx, cancel := context.WithCancel(context.Background())
	controllerDone := core.Fuse{}
	go func() {
		s.controller.Run(ctx)
		controllerDone.Break()
	}()
	go s.loop.Run()

	defer func() {
		errArray := &errors.ErrArray{}
		errArray.Check(s.supervisor.Close())
		cancel()
		<-controllerDone.Watch()
		errArray.Check(s.compositor.Stop())
		if err := errArray.ToError(); err != nil {
			logger.Warnw("failed to stop pipelines", err)
		}
		s.loop.Quit()
		if s.promServer != nil {
			_ = s.promServer.Close()
		}
		logger.Infow("service stopped")
	}()

	// the slate is up before the ingest connects
	if err := s.compositor.Play(); err != nil {
		return err
	}

	generation, err := s.supervisor.Start()
	if err != nil {
		// handled like any other ingest failure
		logger.Warnw("failed to start ingest", err, "generation", generation)
		s.submit(types.Error(err, generation))
	}

	logger.Infow("service ready",
		"uri", s.conf.Ingest.URI,
		"freezePolicy", s.conf.FreezePolicy().String(),
	)
	<-s.shutdown.Watch()
	return nil
}

func (s *Server) Status() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	snapshot, err := s.controller.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	status := newStatus(s.conf, snapshot, pipelineStatus{
		compositorVisible: s.compositor.Visible(),
		ingestGeneration:  s.ingest.Generation(),
		restarts:          s.supervisor.Restarts(),
		injectedFault:     s.injector.Fired(),
		faultBuffers:      s.injector.Count(),
	})
	s.mu.Lock()
	status.LastTransition = s.lastTransition
	s.mu.Unlock()

	return json.Marshal(status)
}

func newStatus(conf *config.Config, snapshot switcher.Snapshot, pipelines pipelineStatus) *Status {
	status := &Status{
		NodeID:            conf.NodeID,
		Version:           version.Version,
		State:             snapshot.State.String(),
		Visible:           string(snapshot.Active),
		CompositorVisible: string(pipelines.compositorVisible),
		FreezePolicy:      conf.FreezePolicy().String(),
		Generation:        snapshot.Generation,
		IngestGeneration:  pipelines.ingestGeneration,
		Restarts:          pipelines.restarts,
		InjectedFault:     pipelines.injectedFault,
		FaultBuffers:      pipelines.faultBuffers,
	}
	if !snapshot.FrozenSince.IsZero() {
		status.FrozenSince = &snapshot.FrozenSince
	}
	if !snapshot.Deadline.IsZero() {
		status.Deadline = &snapshot.Deadline
	}
	return status
}

// GetPipelineDebugInfo returns the compositor graph in dot format.
func (s *Server) GetPipelineDebugInfo() []byte {
	return []byte(s.compositor.DebugBinToDotData(gst.DebugGraphShowAll))
}

func (s *Server) Shutdown() {
	s.shutdown.Once(func() {
		logger.Infow("shutting down")
	})
}
