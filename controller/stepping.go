// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/dbgerr"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
)

// Every execution operation below comes in a pair: the blocking
// "AndWait" form does the work and returns a StopReason; the
// non-blocking form checks preconditions synchronously, spawns a
// goroutine that calls the AndWait form and discards its result, and
// reports only whether the operation started. The non-blocking form
// never duplicates the AndWait form's logic (spec.md §9).

// GoAndWait resumes the target until the next breakpoint, exit, or signal,
// and returns once it stops again. Grounded on
// DebuggerController::Go/GoInternal.
func (c *Controller) GoAndWait() (debugmodel.StopReason, error) {
	return c.goInternal(event.Resume)
}

// Go starts a resume without waiting for it to stop again, reporting
// whether it was started.
func (c *Controller) Go() (bool, error) {
	if !c.CanResume() {
		return false, dbgerr.InvalidOp("go")
	}
	go c.GoAndWait()
	return true, nil
}

func (c *Controller) goInternal(kind event.Kind) (debugmodel.StopReason, error) {
	if !c.CanResume() {
		return debugmodel.InvalidStatusOrOperation, dbgerr.InvalidOp("go")
	}
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.InternalError, err
	}

	// Elide the breakpoint currently under IP, unless the adapter does
	// this itself (original source: gated on an adapter-type string
	// compare; here, an explicit capability).
	if !adp.Supports(adapter.CapAutoBreakpointElision) {
		if err := c.elideCurrentBreakpoint(adp); err != nil {
			return debugmodel.InternalError, err
		}
	}

	c.bus.Post(event.Event{Kind: kind})
	c.beginRunLocked()
	reason, err := adp.Go()
	if err != nil {
		c.handleStop(debugmodel.InternalError)
		return debugmodel.InternalError, err
	}
	c.handleStop(reason)
	return reason, nil
}

// elideCurrentBreakpoint temporarily removes a breakpoint installed at
// the current IP, single-steps past it, and reinstalls it, so that Go
// does not immediately re-trap on the instruction it just stopped at.
func (c *Controller) elideCurrentBreakpoint(adp adapter.Adapter) error {
	ip := c.IP()
	if !c.breakpoints.ContainsAbsolute(ip) {
		return nil
	}
	if err := adp.RemoveBreakpoint(ip); err != nil {
		return err
	}
	if _, err := adp.StepInto(); err != nil {
		adp.AddBreakpoint(ip)
		return err
	}
	return adp.AddBreakpoint(ip)
}

// StepIntoAndWait single-steps at the instruction level, or, when the
// host view is available, through IL instructions sharing one address,
// capped at maxILStepIterations. Grounded on
// DebuggerController::StepInto/StepIntoInternal/StepIntoIL.
func (c *Controller) StepIntoAndWait() (debugmodel.StopReason, error) {
	if !c.CanResume() {
		return debugmodel.InvalidStatusOrOperation, dbgerr.InvalidOp("step_into")
	}
	if c.view == nil {
		return c.stepIntoInternal()
	}
	return c.stepIntoIL(debugmodel.LLIL)
}

// StepInto starts a single step without waiting for it to complete.
func (c *Controller) StepInto() (bool, error) {
	if !c.CanResume() {
		return false, dbgerr.InvalidOp("step_into")
	}
	go c.StepIntoAndWait()
	return true, nil
}

func (c *Controller) stepIntoInternal() (debugmodel.StopReason, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.InternalError, err
	}
	c.bus.Post(event.Event{Kind: event.StepInto})
	c.beginRunLocked()
	reason, err := adp.StepInto()
	if err != nil {
		c.handleStop(debugmodel.InternalError)
		return debugmodel.InternalError, err
	}
	c.handleStop(reason)
	return reason, nil
}

// stepIntoIL repeats single-instruction steps while the resulting
// address still maps onto the same IL instruction's address range, so
// that one IL-level StepInto returns one stop reason to its caller.
// Each underlying machine step still runs through stepIntoInternal and
// handleStop, so subscribers see a StepInto and a TargetStopped event
// per machine instruction stepped, not one pair per IL step. Capped at maxILStepIterations; the original's loop carries a comment
// that it "might cause infinite loop" for IL levels with no neat
// address boundary, which this cap turns into an InternalError instead
// of a hang (spec.md §9).
func (c *Controller) stepIntoIL(il debugmodel.IL) (debugmodel.StopReason, error) {
	startIP := c.IP()
	fns, err := c.view.FunctionsContainingAddress(startIP)
	if err != nil || len(fns) == 0 {
		return c.stepIntoInternal()
	}
	insns, err := c.view.ILInstructionsOf(fns[0], il)
	if err != nil {
		return c.stepIntoInternal()
	}
	boundary := map[uint64]bool{}
	for _, ins := range insns {
		boundary[ins.Address] = true
	}

	for i := 0; i < maxILStepIterations; i++ {
		reason, err := c.stepIntoInternal()
		if err != nil || !debugmodel.IsStepOrBreakpoint(reason) {
			return reason, err
		}
		if !c.CanResume() || (c.IP() != startIP && boundary[c.IP()]) {
			return reason, nil
		}
	}
	err = dbgerr.Internal("step_into: exceeded IL step iteration cap")
	c.bus.Post(event.Event{Kind: event.InternalError, Text: err.Error()})
	return debugmodel.InternalError, err
}

// StepOverAndWait steps over a call instruction at the current IP,
// using the adapter's native support if present, otherwise
// disassembling to find the call's length and placing a temporary
// breakpoint at the return address, otherwise falling back to
// StepIntoAndWait. Grounded on
// DebuggerController::StepOver/StepOverInternal/StepOverIL.
func (c *Controller) StepOverAndWait() (debugmodel.StopReason, error) {
	if !c.CanResume() {
		return debugmodel.InvalidStatusOrOperation, dbgerr.InvalidOp("step_over")
	}
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.InternalError, err
	}
	if adp.Supports(adapter.CapStepOver) {
		c.bus.Post(event.Event{Kind: event.StepOver})
		c.beginRunLocked()
		reason, err := adp.StepOver()
		if err != nil {
			c.handleStop(debugmodel.InternalError)
			return debugmodel.InternalError, err
		}
		c.handleStop(reason)
		return reason, nil
	}
	if c.view == nil {
		return c.stepIntoInternal()
	}
	return c.stepOverIL()
}

// StepOver starts a step-over without waiting for it to complete.
func (c *Controller) StepOver() (bool, error) {
	if !c.CanResume() {
		return false, dbgerr.InvalidOp("step_over")
	}
	go c.StepOverAndWait()
	return true, nil
}

func (c *Controller) stepOverIL() (debugmodel.StopReason, error) {
	ip := c.IP()
	info, err := c.view.GetInstructionInfo(ip)
	if err != nil {
		return c.stepIntoInternal()
	}
	if !info.IsCall {
		return c.stepIntoInternal()
	}
	return c.stepToInternal(ip + uint64(info.Length))
}

// StepReturnAndWait runs until the current function returns, by
// enumerating every return/tail-call address in the function
// containing IP and placing temporary breakpoints at all of them.
// Grounded on DebuggerController::StepReturn/StepReturnInternal.
func (c *Controller) StepReturnAndWait() (debugmodel.StopReason, error) {
	if !c.CanResume() {
		return debugmodel.InvalidStatusOrOperation, dbgerr.InvalidOp("step_return")
	}
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.InternalError, err
	}
	if adp.Supports(adapter.CapStepReturn) {
		c.bus.Post(event.Event{Kind: event.StepReturn})
		c.beginRunLocked()
		reason, err := adp.StepReturn()
		if err != nil {
			c.handleStop(debugmodel.InternalError)
			return debugmodel.InternalError, err
		}
		c.handleStop(reason)
		return reason, nil
	}
	if c.view == nil {
		return debugmodel.InternalError, dbgerr.Internal("step_return: no host view available to locate return addresses")
	}
	fns, err := c.view.FunctionsContainingAddress(c.IP())
	if err != nil || len(fns) == 0 {
		return debugmodel.InternalError, dbgerr.Internal("step_return: no function contains the current address")
	}
	addrs, err := c.view.ReturnAddressesOf(fns[0])
	if err != nil || len(addrs) == 0 {
		return debugmodel.InternalError, dbgerr.Internal("step_return: function has no return addresses")
	}
	return c.stepToAnyInternal(addrs)
}

// StepReturn starts a step-return without waiting for it to complete.
func (c *Controller) StepReturn() (bool, error) {
	if !c.CanResume() {
		return false, dbgerr.InvalidOp("step_return")
	}
	go c.StepReturnAndWait()
	return true, nil
}

// StepToAndWait runs until addr is reached, by installing a temporary
// breakpoint there (in addition to any user breakpoints already
// installed), then removing it once hit. Grounded on
// DebuggerController::StepTo/StepToInternal.
func (c *Controller) StepToAndWait(addr uint64) (debugmodel.StopReason, error) {
	if !c.CanResume() {
		return debugmodel.InvalidStatusOrOperation, dbgerr.InvalidOp("step_to")
	}
	return c.stepToInternal(addr)
}

// StepTo starts a run-to-address without waiting for it to complete.
func (c *Controller) StepTo(addr uint64) (bool, error) {
	if !c.CanResume() {
		return false, dbgerr.InvalidOp("step_to")
	}
	go c.StepToAndWait(addr)
	return true, nil
}

func (c *Controller) stepToInternal(addr uint64) (debugmodel.StopReason, error) {
	return c.stepToAnyInternal([]uint64{addr})
}

// stepToAnyInternal installs temporary breakpoints at every address in
// addrs (skipping ones already installed by the user), resumes, and
// removes the temporary ones again once stopped.
func (c *Controller) stepToAnyInternal(addrs []uint64) (debugmodel.StopReason, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.InternalError, err
	}

	var installed []uint64
	for _, a := range addrs {
		if c.breakpoints.ContainsAbsolute(a) {
			continue
		}
		if err := adp.AddBreakpoint(a); err != nil {
			for _, done := range installed {
				adp.RemoveBreakpoint(done)
			}
			return debugmodel.InternalError, err
		}
		installed = append(installed, a)
	}

	reason, err := c.goInternal(event.Resume)

	for _, a := range installed {
		adp.RemoveBreakpoint(a)
	}
	return reason, err
}

// handleStop is the common post-resume path for Go/Step*, and for an
// asynchronous stop reported by the adapter's event callback. Grounded
// on DebuggerController::HandleTargetStop. A user-requested break
// (Pause/PauseAndWait) still refreshes caches and posts its own
// TargetStopped{UserRequestedBreak} below, per spec.md §4.F's
// break-in sequence: mark caches dirty, flip status Invalid while
// refreshing, then report Paused and the event.
func (c *Controller) handleStop(reason debugmodel.StopReason) {
	defer c.signalStopped()

	if c.userRequestedBreak.CompareAndSwap(true, false) {
		c.setStatus(debugmodel.Connected, debugmodel.Invalid)
		adp, err := c.adapterLocked()
		if err != nil {
			c.setStatus(debugmodel.Connected, debugmodel.Paused)
			return
		}
		c.caches.MarkDirty()
		if err := c.caches.Update(adp); err != nil {
			c.log.WithError(err).Warn("handleStop: cache update failed")
		}
		if err := c.breakpoints.ApplyAll(c.caches.Modules, adp); err != nil {
			c.log.WithError(err).Warn("handleStop: apply breakpoints failed")
		}
		c.refreshIPLocked(adp)
		c.setStatus(debugmodel.Connected, debugmodel.Paused)
		c.bus.Post(event.Event{Kind: event.TargetStopped, StopReason: debugmodel.UserRequestedBreak})
		return
	}

	switch reason {
	case debugmodel.ProcessExited:
		code := c.readExitCodeLocked()
		c.mu.Lock()
		if c.adp != nil {
			c.exitCode = code
		}
		c.adp = nil
		c.mu.Unlock()
		c.caches.MarkDirty()
		c.setStatus(debugmodel.NotConnected, debugmodel.Invalid)
		c.bus.Post(event.Event{Kind: event.TargetExited, ExitCode: c.ExitCode()})
		return
	case debugmodel.InternalError:
		c.setStatus(debugmodel.Connected, debugmodel.Paused)
		c.bus.Post(event.Event{Kind: event.InternalError})
		return
	case debugmodel.InvalidStatusOrOperation:
		c.bus.Post(event.Event{Kind: event.InvalidOperation})
		return
	default:
		c.setStatus(debugmodel.Connected, debugmodel.Paused)
		adp, err := c.adapterLocked()
		if err != nil {
			return
		}
		c.caches.MarkDirty()
		if err := c.caches.Update(adp); err != nil {
			c.log.WithError(err).Warn("handleStop: cache update failed")
		}
		if err := c.breakpoints.ApplyAll(c.caches.Modules, adp); err != nil {
			c.log.WithError(err).Warn("handleStop: apply breakpoints failed")
		}
		c.refreshIPLocked(adp)
		c.bus.Post(event.Event{Kind: event.TargetStopped, StopReason: reason})
	}
}

func (c *Controller) readExitCodeLocked() int64 {
	adp, err := c.adapterLocked()
	if err != nil {
		return 0
	}
	code, err := adp.ExitCode()
	if err != nil {
		return 0
	}
	return code
}

// refreshIPLocked re-reads the active thread's instruction pointer and
// shifts currentIP into lastIP, the same bookkeeping the original
// source's EventHandler does on every TargetStoppedEventType.
func (c *Controller) refreshIPLocked(adp adapter.Adapter) {
	th, err := adp.ActiveThread()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.lastIP = c.currentIP
	c.currentIP = th.InstructionPointer
	c.mu.Unlock()
}

// beginRunLocked marks the target running and arms a fresh stop
// signal before issuing a blocking Go/Step* call to the adapter.
func (c *Controller) beginRunLocked() {
	c.setStatus(debugmodel.Connected, debugmodel.Running)
	c.stoppedMu.Lock()
	c.stopped = make(chan struct{})
	c.stoppedMu.Unlock()
}

// signalStopped wakes up any goroutine blocked in PauseAndWait's wait.
func (c *Controller) signalStopped() {
	c.stoppedMu.Lock()
	select {
	case <-c.stopped:
	default:
		close(c.stopped)
	}
	c.stoppedMu.Unlock()
}

// PauseAndWait requests the running target break into the debugger
// and blocks until it has. Grounded on
// DebuggerController::Pause/PauseInternal, which the original source
// implements with a tight sleep loop (while (IsRunning())
// sleep(1ms)); here the wait is a blocking receive on a channel that
// handleStop closes, so PauseAndWait blocks without spinning
// (spec.md §9).
func (c *Controller) PauseAndWait() error {
	return c.pauseInternal()
}

// Pause requests a break-in without waiting for the target to
// actually stop, reporting whether a break-in was started. A no-op
// (started=false) when the target is not connected or not running.
func (c *Controller) Pause() (bool, error) {
	if !c.IsConnected() || !c.IsRunning() {
		return false, nil
	}
	go c.PauseAndWait()
	return true, nil
}

func (c *Controller) pauseInternal() error {
	if !c.IsConnected() {
		return nil
	}
	if !c.IsRunning() {
		return nil
	}

	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}

	c.stoppedMu.Lock()
	wait := c.stopped
	c.stoppedMu.Unlock()

	c.userRequestedBreak.Store(true)
	if err := adp.BreakIn(); err != nil {
		c.userRequestedBreak.Store(false)
		return err
	}
	<-wait
	return nil
}

func dbgerrUnknownAdapterType(name string) error {
	return dbgerr.New(dbgerr.LaunchFailure, "launch failed",
		"no adapter type registered under \""+name+"\"")
}
