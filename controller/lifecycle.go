// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"time"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/dbgerr"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
)

// LaunchAndWait instantiates an adapter from the selected type,
// forwards the launch config, and on success enters the initial stop,
// returning once the session is paused at entry. Grounded on
// DebuggerController::Launch.
func (c *Controller) LaunchAndWait() error {
	if c.Settings().SafeMode {
		err := dbgerr.New(dbgerr.LaunchFailure, "safe mode",
			"launch blocked: safe mode is enabled")
		c.postError(err)
		return err
	}

	c.bus.Post(event.Event{Kind: event.Launch})

	adp, err := c.createAdapter()
	if err != nil {
		c.log.WithError(err).Warn("launch: failed to create adapter")
		c.postError(err)
		return err
	}

	c.mu.Lock()
	c.adp = adp
	cfg := c.cfg
	c.mu.Unlock()
	c.caches.MarkDirty()

	err = adp.Execute(adapter.LaunchConfig{
		Path:                    cfg.ExecutablePath,
		Args:                    cfg.CommandLineArguments,
		WorkDir:                 cfg.WorkingDirectory,
		RequestTerminalEmulator: cfg.RequestTerminalEmulator,
	})
	if err != nil {
		c.log.WithError(err).Warn("launch: execute failed")
		c.mu.Lock()
		c.adp = nil
		c.mu.Unlock()
		c.postError(err)
		return err
	}

	c.setStatus(debugmodel.Connected, debugmodel.Paused)
	return c.handleInitialStop()
}

// Launch starts a launch without waiting for the initial stop,
// reporting whether it was started.
func (c *Controller) Launch() (bool, error) {
	go c.LaunchAndWait()
	return true, nil
}

// AttachAndWait instantiates an adapter and attaches it to pid,
// returning once the session is paused at the initial stop.
func (c *Controller) AttachAndWait(pid int) error {
	c.bus.Post(event.Event{Kind: event.Attach})

	adp, err := c.createAdapter()
	if err != nil {
		c.postError(err)
		return err
	}

	c.mu.Lock()
	c.adp = adp
	c.cfg.PIDAttach = pid
	c.mu.Unlock()
	c.caches.MarkDirty()

	if err := adp.Attach(pid); err != nil {
		c.log.WithError(err).Warn("attach failed")
		c.mu.Lock()
		c.adp = nil
		c.mu.Unlock()
		c.postError(err)
		return err
	}

	c.setStatus(debugmodel.Connected, debugmodel.Paused)
	return c.handleInitialStop()
}

// Attach starts an attach without waiting for the initial stop.
func (c *Controller) Attach(pid int) (bool, error) {
	go c.AttachAndWait(pid)
	return true, nil
}

// ConnectAndWait instantiates an adapter and connects it to a remote
// stub, returning once the session is paused at the initial stop.
func (c *Controller) ConnectAndWait() error {
	if c.IsConnected() {
		return nil
	}

	adp, err := c.createAdapter()
	if err != nil {
		c.postError(err)
		return err
	}

	c.mu.Lock()
	c.adp = adp
	host, port := c.cfg.RemoteHost, c.cfg.RemotePort
	c.mu.Unlock()
	c.caches.MarkDirty()
	c.setStatus(debugmodel.Connecting, debugmodel.Invalid)

	c.bus.Post(event.Event{Kind: event.Connect})

	if err := adp.Connect(host, port); err != nil {
		c.log.WithError(err).Warn("connect failed")
		c.mu.Lock()
		c.adp = nil
		c.mu.Unlock()
		c.setStatus(debugmodel.NotConnected, debugmodel.Invalid)
		return err
	}

	c.caches.MarkDirty()
	c.setStatus(debugmodel.Connected, debugmodel.Paused)
	return c.handleInitialStop()
}

// Connect starts a connect without waiting for the initial stop.
func (c *Controller) Connect() (bool, error) {
	if c.IsConnected() {
		return false, nil
	}
	go c.ConnectAndWait()
	return true, nil
}

// LaunchOrConnect picks LaunchAndWait or ConnectAndWait based on what
// the configured adapter type supports for this image, and blocks
// until the initial stop either way; it has no non-blocking pair of
// its own (spec.md §6 lists it as a single standalone operation).
func (c *Controller) LaunchOrConnect() error {
	c.mu.Lock()
	name := c.cfg.AdapterType
	img := c.image
	c.mu.Unlock()

	t, ok := c.types.ByName(name)
	if !ok {
		return dbgerrUnknownAdapterType(name)
	}
	aimg := img.toAdapterType()
	if t.CanExecute(aimg) {
		return c.LaunchAndWait()
	}
	if t.CanConnect(aimg) {
		return c.ConnectAndWait()
	}
	return dbgerrUnknownAdapterType(name)
}

// handleInitialStop realizes spec.md §4.F's handle_initial_stop:
// refresh caches, apply breakpoints, rebase if needed, snapshot, and
// post the InitialBreakpoint stop. Grounded on
// DebuggerController::HandleInitialBreakpoint.
func (c *Controller) handleInitialStop() error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}

	if err := c.caches.Update(adp); err != nil {
		c.log.WithError(err).Warn("handleInitialStop: cache update failed")
		return err
	}
	if err := c.breakpoints.ApplyAll(c.caches.Modules, adp); err != nil {
		c.log.WithError(err).Warn("handleInitialStop: apply breakpoints failed")
		return err
	}

	if c.view != nil {
		remoteBase, ok := c.caches.Modules.RemoteBase(c.view.MainModuleName())
		if ok && remoteBase != c.view.StaticBase() {
			c.main.RunAndWait(func() {
				if err := c.view.RebaseTo(remoteBase); err != nil {
					c.log.WithError(err).Warn("rebase failed")
				}
			})
		}
		c.main.RunAndWait(func() {
			if err := c.view.CreateSnapshotView(); err != nil {
				c.log.WithError(err).Warn("create snapshot view failed")
			}
		})
		c.bus.Post(event.Event{Kind: event.InitialViewRebased})
	}

	c.refreshIPLocked(adp)
	c.bus.Post(event.Event{Kind: event.TargetStopped, StopReason: debugmodel.InitialBreakpoint})
	return nil
}

// Detach disconnects without killing the target. Does not break in;
// callers are expected to detach only while paused (or accept
// whatever the adapter does if called while running). Has no
// _and_wait pair: it never resumes the target, so it never blocks
// on one (spec.md §6).
func (c *Controller) Detach() error {
	if !c.IsConnected() {
		return nil
	}
	c.bus.Post(event.Event{Kind: event.Detach})

	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.Detach(); err != nil {
		c.log.WithError(err).Warn("detach failed")
	}

	c.caches.MarkDirty()
	c.mu.Lock()
	c.adp = nil
	c.mu.Unlock()
	c.setStatus(debugmodel.NotConnected, debugmodel.Invalid)
	return nil
}

// QuitAndWait breaks in if running, quits the adapter, and tears down
// the session, returning once torn down. The breakpoint registry
// survives (spec.md §3 Lifecycle).
func (c *Controller) QuitAndWait() error {
	if !c.IsConnected() {
		return nil
	}

	if c.IsRunning() {
		c.pauseInternal()
	}

	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.Quit(); err != nil {
		c.log.WithError(err).Warn("quit failed")
	}

	c.caches.MarkDirty()
	c.mu.Lock()
	c.adp = nil
	c.mu.Unlock()
	c.setStatus(debugmodel.NotConnected, debugmodel.Invalid)
	c.bus.Post(event.Event{Kind: event.QuitDebugging})
	return nil
}

// Quit starts tearing down the session without waiting for it to
// finish.
func (c *Controller) Quit() (bool, error) {
	if !c.IsConnected() {
		return false, nil
	}
	go c.QuitAndWait()
	return true, nil
}

// RestartAndWait quits then relaunches, after a short delay to let OS
// resources (pipes, the old process's pid slot) settle -- grounded on
// DebuggerController::Restart's std::this_thread::sleep_for -- and
// returns once the new session has reached its initial stop.
func (c *Controller) RestartAndWait() error {
	if err := c.QuitAndWait(); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return c.LaunchAndWait()
}

// Restart starts a quit-then-relaunch without waiting for it to
// finish.
func (c *Controller) Restart() (bool, error) {
	go c.RestartAndWait()
	return true, nil
}

func (c *Controller) postError(err error) {
	c.bus.Post(event.Event{Kind: event.Error, Text: err.Error(), ShortText: "error"})
}
