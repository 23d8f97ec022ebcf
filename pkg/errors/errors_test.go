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

package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrArray(t *testing.T) {
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")

	errArray := &ErrArray{}
	assert.Nil(t, errArray.ToError())

	errArray.Check(nil)
	assert.Nil(t, errArray.ToError())

	errArray.AppendErr(err1)
	assert.Equal(t, err1, errArray.ToError())

	errArray.Check(err2)
	err := errArray.ToError()
	assert.Equal(t, 2, len(strings.Split(err.Error(), "\n")))
	assert.True(t, Is(err, err1))
	assert.True(t, Is(err, err2))
}

func TestSourceError(t *testing.T) {
	err := ErrSourceFailure("rtmpsrc0", "Could not open resource", "gstrtmp2src.c(123)")
	assert.Equal(t, "rtmpsrc0: Could not open resource", err.Error())

	var srcErr *SourceError
	assert.True(t, As(ErrRestartFailed(err), &srcErr))
	assert.Equal(t, "gstrtmp2src.c(123)", srcErr.Debug)

	assert.Equal(t, "boom", ErrSourceFailure("", "boom", "").Error())
}
