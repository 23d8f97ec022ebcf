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

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/types"
	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"
)

const (
	defaultInterpipeName = "rtmp"
	defaultWidth         = 1280
	defaultHeight        = 720
	defaultSlateWidth    = 800
	defaultSlateHeight   = 448
	defaultSlatePattern  = "smpte"
	defaultVideoSink     = "autovideosink"
	defaultStallTimeout  = time.Second
)

type Config struct {
	NodeID string // do not supply - will be overwritten

	// required
	Ingest IngestConfig `yaml:"ingest"` // live source

	// optional
	Logging        *logger.Config   `yaml:"logging"`          // logging config
	DiscardAfter   *Duration        `yaml:"discard_after"`    // absent holds the last frame forever, 0 discards immediately
	RestartOnError *bool            `yaml:"restart_on_error"` // rebuild the ingest pipeline on error (default true)
	RestartOnEOS   *bool            `yaml:"restart_on_eos"`   // rebuild the ingest pipeline on end of stream (default true)
	Fault          FaultConfig      `yaml:"fault_injection"`  // synthetic faults, for testing
	Compositor     CompositorConfig `yaml:"compositor"`       // output settings
	HealthPort     int              `yaml:"health_port"`      // status handler port
	PrometheusPort int              `yaml:"prometheus_port"`  // prometheus handler port
	Debug          DebugConfig      `yaml:"debug"`
}

type IngestConfig struct {
	URI           string   `yaml:"uri"`            // anything playbin3 accepts, usually rtmp://
	InterpipeName string   `yaml:"interpipe_name"` // interpipesink name the compositor listens to
	StallTimeout  Duration `yaml:"stall_timeout"`  // report a stall when no buffer arrives for this long
}

type FaultConfig struct {
	ErrorAfter  *uint64   `yaml:"error_after"`  // raise an error after N buffers
	EOSAfter    *uint64   `yaml:"eos_after"`    // raise end of stream after N buffers
	FreezeLimit *Duration `yaml:"freeze_limit"` // truncate the freeze window
}

// Duration accepts "2s"-style strings or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if seconds, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}

	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

type CompositorConfig struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	SlateWidth   int    `yaml:"slate_width"`
	SlateHeight  int    `yaml:"slate_height"`
	SlatePattern string `yaml:"slate_pattern"` // videotestsrc pattern
	VideoSink    string `yaml:"video_sink"`
}

type DebugConfig struct {
	DotDir string `yaml:"dot_dir"` // write pipeline graphs here when they reach PLAYING
}

func NewConfig(confString string) (*Config, error) {
	conf := &Config{
		Logging: &logger.Config{
			Level: "info",
		},
	}
	if confString != "" {
		if err := yaml.Unmarshal([]byte(confString), conf); err != nil {
			return nil, errors.ErrCouldNotParseConfig(err)
		}
	}

	// always create a new node ID
	conf.NodeID = utils.NewGuid("NF_")

	conf.applyDefaults()
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Logging == nil {
		c.Logging = &logger.Config{Level: "info"}
	}
	if c.Ingest.InterpipeName == "" {
		c.Ingest.InterpipeName = defaultInterpipeName
	}
	if c.Ingest.StallTimeout == 0 {
		c.Ingest.StallTimeout = Duration(defaultStallTimeout)
	}
	if c.RestartOnError == nil {
		c.RestartOnError = boolPtr(true)
	}
	if c.RestartOnEOS == nil {
		c.RestartOnEOS = boolPtr(true)
	}
	if c.Compositor.Width <= 0 {
		c.Compositor.Width = defaultWidth
	}
	if c.Compositor.Height <= 0 {
		c.Compositor.Height = defaultHeight
	}
	if c.Compositor.SlateWidth <= 0 {
		c.Compositor.SlateWidth = defaultSlateWidth
	}
	if c.Compositor.SlateHeight <= 0 {
		c.Compositor.SlateHeight = defaultSlateHeight
	}
	if c.Compositor.SlatePattern == "" {
		c.Compositor.SlatePattern = defaultSlatePattern
	}
	if c.Compositor.VideoSink == "" {
		c.Compositor.VideoSink = defaultVideoSink
	}
}

func (c *Config) Validate() error {
	if c.Ingest.URI == "" {
		return errors.ErrNoIngestURI
	}
	if c.Fault.ErrorAfter != nil && c.Fault.EOSAfter != nil {
		return errors.ErrFaultConflict
	}
	if c.DiscardAfter != nil && *c.DiscardAfter < 0 {
		return errors.ErrInvalidConfig("discard_after", "must not be negative")
	}
	if c.Fault.FreezeLimit != nil && *c.Fault.FreezeLimit < 0 {
		return errors.ErrInvalidConfig("fault_injection.freeze_limit", "must not be negative")
	}
	if c.Ingest.StallTimeout < 0 {
		return errors.ErrInvalidConfig("ingest.stall_timeout", "must not be negative")
	}
	return nil
}

// FreezePolicy returns the effective policy, with the freeze limit applied.
func (c *Config) FreezePolicy() types.FreezePolicy {
	limit := c.Fault.FreezeLimit
	switch {
	case c.DiscardAfter == nil && limit == nil:
		return types.HoldForever()
	case c.DiscardAfter == nil:
		return types.DiscardAfter(time.Duration(*limit))
	case limit != nil && *limit < *c.DiscardAfter:
		return types.DiscardAfter(time.Duration(*limit))
	default:
		return types.DiscardAfter(time.Duration(*c.DiscardAfter))
	}
}

func (c *Config) RestartPolicy() types.RestartPolicy {
	p := types.DefaultRestartPolicy()
	if c.RestartOnError != nil {
		p.RestartOnError = *c.RestartOnError
	}
	if c.RestartOnEOS != nil {
		p.RestartOnEOS = *c.RestartOnEOS
	}
	return p
}

func (c *Config) InitLogger(values ...interface{}) error {
	_, exists := os.LookupEnv("GST_DEBUG")

	// If GST_DEBUG is not set, use pre-defined values based on logging level
	if !exists {
		var gstDebug []string
		switch c.Logging.Level {
		case "debug":
			gstDebug = []string{"3"}
		case "info", "warn":
			gstDebug = []string{"2"}
		case "error":
			gstDebug = []string{"1"}
		}
		gstDebug = append(gstDebug,
			"rtmp2src:4",
			"interpipe:2",
		)

		if err := os.Setenv("GST_DEBUG", strings.Join(gstDebug, ",")); err != nil {
			return err
		}
	}

	zl, err := logger.NewZapLogger(c.Logging)
	if err != nil {
		return err
	}

	values = append([]interface{}{"nodeID", c.NodeID}, values...)
	logger.SetLogger(zl.WithValues(values...), "fallback")
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
