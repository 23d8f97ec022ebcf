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
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/livekit/fallback/pkg/errors"
	"github.com/livekit/fallback/pkg/pprof"
	"github.com/livekit/fallback/pkg/server"
	"github.com/livekit/protocol/logger"
)

type httpHandler struct {
	svc *server.Server
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	info, err := h.svc.Status()
	if err != nil {
		logger.Errorw("failed to read status", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(info)
}

type debugHandler struct {
	svc *server.Server
}

func (d *debugHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(d.svc.GetPipelineDebugInfo())
}

type pprofHandler struct{}

// ServeHTTP serves /debug/pprof/<profile>?seconds=N&debug=N
func (p *pprofHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	profileName := path.Base(r.URL.Path)
	seconds, _ := strconv.Atoi(r.URL.Query().Get("seconds"))
	debug, _ := strconv.Atoi(r.URL.Query().Get("debug"))

	b, err := pprof.GetProfileData(r.Context(), profileName, time.Duration(seconds)*time.Second, debug)
	if err != nil {
		if errors.Is(err, errors.ErrProfileNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			logger.Warnw("failed to read profile", err, "profile", profileName)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}
