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

//go:build mage

package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/livekit/fallback/version"
	"github.com/livekit/mageutil"
)

const defaultDotDir = "debug"

func Build() error {
	fmt.Println("building fallback", version.Version)
	return mageutil.Run(context.Background(), "go build -o bin/fallback ./cmd/server")
}

func Test() error {
	return mageutil.Run(context.Background(), "go test -race ./pkg/...")
}

// Dotfiles converts pipeline graphs written to dir into png.
func Dotfiles(dir string) error {
	if dir == "" {
		dir = defaultDotDir
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	dots := make(map[string]bool)
	pngs := make(map[string]bool)
	for _, file := range files {
		name := file.Name()
		if strings.HasSuffix(name, ".dot") {
			dots[name[:len(name)-4]] = true
		} else if strings.HasSuffix(name, ".png") {
			pngs[name[:len(name)-4]] = true
		}
	}

	for name := range dots {
		if !pngs[name] {
			if err := mageutil.Run(context.Background(), fmt.Sprintf(
				"dot -Tpng %s.dot -o %s.png",
				path.Join(dir, name), path.Join(dir, name),
			)); err != nil {
				return err
			}
		}
	}

	return nil
}
