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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/livekit/fallback/pkg/config"
	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/server"
	"github.com/livekit/fallback/version"
	"github.com/livekit/protocol/logger"
)

func main() {
	cmd := &cli.Command{
		Name:        "fallback",
		Usage:       "LiveKit Fallback",
		Version:     version.Version,
		Description: "shows a live input, falling back to a slate when it stalls",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "LiveKit Fallback yaml config file",
				Sources: cli.EnvVars("FALLBACK_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "LiveKit Fallback yaml config body",
				Sources: cli.EnvVars("FALLBACK_CONFIG_BODY"),
			},
			&cli.StringFlag{
				Name:  "live-rtmp-uri",
				Usage: "live source uri, overrides ingest.uri",
			},
			&cli.Uint64Flag{
				Name:  "eos-after",
				Usage: "inject an end of stream after this many buffers",
			},
			&cli.Uint64Flag{
				Name:  "error-after",
				Usage: "inject an error after this many buffers",
			},
			&cli.DurationFlag{
				Name:  "discard-after",
				Usage: "show the slate once the live input has been frozen this long",
			},
			&cli.BoolFlag{
				Name:  "hold-forever",
				Usage: "keep the last live frame until the source recovers",
			},
		},
		Action: runService,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runService(_ context.Context, c *cli.Command) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	if err = conf.InitLogger(); err != nil {
		return err
	}

	svc, err := server.NewServer(conf)
	if err != nil {
		return err
	}

	if conf.HealthPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/", &httpHandler{svc: svc})
		mux.Handle("/debug/dot", &debugHandler{svc: svc})
		mux.Handle("/debug/pprof/", &pprofHandler{})
		go func() {
			_ = http.ListenAndServe(fmt.Sprintf(":%d", conf.HealthPort), mux)
		}()
	}

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)

	go func() {
		sig := <-stopChan
		logger.Infow("exit requested, shutting down", "signal", sig)
		svc.Shutdown()
	}()

	return svc.Run()
}

func getConfig(c *cli.Command) (*config.Config, error) {
	configFile := c.String("config")
	configBody := c.String("config-body")
	if configBody == "" && configFile == "" && !c.IsSet("live-rtmp-uri") {
		return nil, errors.ErrNoConfig
	}
	if configBody == "" && configFile != "" {
		content, err := os.ReadFile(configFile)
		if err != nil {
			return nil, err
		}
		configBody = string(content)
	}

	conf, err := config.NewConfig(configBody)
	if err != nil {
		return nil, err
	}

	// command line overrides
	if uri := c.String("live-rtmp-uri"); uri != "" {
		conf.Ingest.URI = uri
	}
	if c.IsSet("eos-after") {
		eosAfter := c.Uint64("eos-after")
		conf.Fault.EOSAfter = &eosAfter
	}
	if c.IsSet("error-after") {
		errorAfter := c.Uint64("error-after")
		conf.Fault.ErrorAfter = &errorAfter
	}
	if c.Bool("hold-forever") {
		conf.DiscardAfter = nil
	} else if c.IsSet("discard-after") {
		discardAfter := config.Duration(c.Duration("discard-after"))
		conf.DiscardAfter = &discardAfter
	}

	if err = conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}
