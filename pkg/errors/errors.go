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
	"fmt"
	"strings"
)

var (
	ErrNoConfig             = errors.New("missing config")
	ErrNoIngestURI          = errors.New("missing ingest uri")
	ErrFaultConflict        = errors.New("error_after and eos_after are mutually exclusive")
	ErrControllerClosed     = errors.New("controller closed")
	ErrSupervisorClosed     = errors.New("supervisor closed")
	ErrPipelineNotRunning   = errors.New("pipeline not running")
	ErrCompositorPadMissing = errors.New("compositor pad not found")
	ErrProfileNotFound      = errors.New("profile not found")
)

func New(err string) error {
	return errors.New(err)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func ErrCouldNotParseConfig(err error) error {
	return fmt.Errorf("could not parse config: %v", err)
}

func ErrInvalidConfig(field string, reason string) error {
	return fmt.Errorf("invalid config field %s: %s", field, reason)
}

func ErrGstPipelineError(err error) error {
	return fmt.Errorf("gstreamer pipeline error: %w", err)
}

func ErrElementNotFound(name string) error {
	return fmt.Errorf("element %s not found", name)
}

// SourceError is the cause attached to an Error health signal.
type SourceError struct {
	Element string
	Message string
	Debug   string
}

func (e *SourceError) Error() string {
	if e.Element == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Element, e.Message)
}

func ErrSourceFailure(element, message, debug string) error {
	return &SourceError{Element: element, Message: message, Debug: debug}
}

func ErrRestartFailed(err error) error {
	return fmt.Errorf("ingest restart failed: %w", err)
}

func ErrInjectedFault(kind string, buffers uint64) error {
	return fmt.Errorf("injected %s after %d buffers", kind, buffers)
}

type ErrArray struct {
	errs []error
}

func (e *ErrArray) AppendErr(err error) {
	e.errs = append(e.errs, err)
}

func (e *ErrArray) Check(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

func (e *ErrArray) ToError() error {
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	}

	msg := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		msg = append(msg, err.Error())
	}
	return &joinedError{msg: strings.Join(msg, "\n"), errs: e.errs}
}

type joinedError struct {
	msg  string
	errs []error
}

func (e *joinedError) Error() string {
	return e.msg
}

func (e *joinedError) Unwrap() []error {
	return e.errs
}
