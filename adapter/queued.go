// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package adapter

import (
	"runtime"

	"github.com/nativedbg/nativedbg/debugmodel"
)

// task is one unit of work handed to the worker goroutine.
type task func() error

// QueuedAdapter wraps any Adapter and serializes every call except
// BreakIn onto one dedicated worker goroutine, because some OS debug
// APIs (notably Win32's WaitForDebugEvent/ContinueDebugEvent) must be
// driven from the single thread that created the debuggee. Grounded
// on golang.org/x/debug's ptraceRun(fc, ec) (program/server/ptrace.go)
// generalized from "one channel pair per call site" to one queue
// serving every call, and on BinaryNinjaDebugger::QueuedAdapter's
// Worker()/per-call std::queue<std::function<void()>> design.
//
// Ordering is strict FIFO; there is no priority queue. BreakIn
// bypasses the queue entirely (it is the only way to unblock a
// worker that is currently blocked inside a Go/Step* call on the
// wrapped adapter), avoiding the self-deadlock that would occur if it
// queued behind the very call it is meant to interrupt.
type QueuedAdapter struct {
	inner Adapter
	tasks chan task
	done  chan struct{}
}

// NewQueued wraps inner in a QueuedAdapter and starts its worker
// goroutine. The task channel is unbuffered, so a caller blocks until
// the worker takes its task; each call's result comes back on its own
// per-call channel (see run), so it always reaches the goroutine that
// submitted it.
func NewQueued(inner Adapter) *QueuedAdapter {
	q := &QueuedAdapter{
		inner: inner,
		tasks: make(chan task),
		done:  make(chan struct{}),
	}
	go q.worker()
	return q
}

// worker runs every queued task on one OS thread, in submission
// order, for as long as the wrapped adapter may depend on thread
// affinity.
func (q *QueuedAdapter) worker() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case t := <-q.tasks:
			t()
		case <-q.done:
			return
		}
	}
}

// Close stops the worker goroutine. The QueuedAdapter must not be used
// afterwards.
func (q *QueuedAdapter) Close() {
	close(q.done)
}

// run submits f to the worker and blocks until it completes,
// returning its error.
func run(q *QueuedAdapter, f func() error) error {
	result := make(chan error, 1)
	q.tasks <- func() error {
		err := f()
		result <- err
		return err
	}
	return <-result
}

func (q *QueuedAdapter) Execute(cfg LaunchConfig) error {
	return run(q, func() error { return q.inner.Execute(cfg) })
}

func (q *QueuedAdapter) Attach(pid int) error {
	return run(q, func() error { return q.inner.Attach(pid) })
}

func (q *QueuedAdapter) Connect(host string, port int) error {
	return run(q, func() error { return q.inner.Connect(host, port) })
}

func (q *QueuedAdapter) Detach() error {
	return run(q, func() error { return q.inner.Detach() })
}

func (q *QueuedAdapter) Quit() error {
	return run(q, func() error { return q.inner.Quit() })
}

func (q *QueuedAdapter) Go() (reason debugmodel.StopReason, err error) {
	err = run(q, func() error {
		reason, err = q.inner.Go()
		return err
	})
	return
}

func (q *QueuedAdapter) StepInto() (reason debugmodel.StopReason, err error) {
	err = run(q, func() error {
		reason, err = q.inner.StepInto()
		return err
	})
	return
}

func (q *QueuedAdapter) StepOver() (reason debugmodel.StopReason, err error) {
	err = run(q, func() error {
		reason, err = q.inner.StepOver()
		return err
	})
	return
}

func (q *QueuedAdapter) StepReturn() (reason debugmodel.StopReason, err error) {
	err = run(q, func() error {
		reason, err = q.inner.StepReturn()
		return err
	})
	return
}

// BreakIn bypasses the queue: the worker may currently be blocked
// inside Go/Step* on the wrapped adapter, and queueing BreakIn behind
// that call would deadlock.
func (q *QueuedAdapter) BreakIn() error {
	return q.inner.BreakIn()
}

func (q *QueuedAdapter) ReadMemory(addr uint64, size int) (data []byte, err error) {
	err = run(q, func() error {
		data, err = q.inner.ReadMemory(addr, size)
		return err
	})
	return
}

func (q *QueuedAdapter) WriteMemory(addr uint64, data []byte) error {
	return run(q, func() error { return q.inner.WriteMemory(addr, data) })
}

func (q *QueuedAdapter) ReadAllRegisters() (regs map[string]debugmodel.Register, err error) {
	err = run(q, func() error {
		regs, err = q.inner.ReadAllRegisters()
		return err
	})
	return
}

func (q *QueuedAdapter) ReadRegister(name string) (reg debugmodel.Register, err error) {
	err = run(q, func() error {
		reg, err = q.inner.ReadRegister(name)
		return err
	})
	return
}

func (q *QueuedAdapter) WriteRegister(name string, value uint64) error {
	return run(q, func() error { return q.inner.WriteRegister(name, value) })
}

func (q *QueuedAdapter) AddBreakpoint(addr uint64) error {
	return run(q, func() error { return q.inner.AddBreakpoint(addr) })
}

func (q *QueuedAdapter) RemoveBreakpoint(addr uint64) error {
	return run(q, func() error { return q.inner.RemoveBreakpoint(addr) })
}

func (q *QueuedAdapter) ListBreakpoints() (addrs []uint64, err error) {
	err = run(q, func() error {
		addrs, err = q.inner.ListBreakpoints()
		return err
	})
	return
}

func (q *QueuedAdapter) Threads() (threads []debugmodel.Thread, err error) {
	err = run(q, func() error {
		threads, err = q.inner.Threads()
		return err
	})
	return
}

func (q *QueuedAdapter) ActiveThread() (thread debugmodel.Thread, err error) {
	err = run(q, func() error {
		thread, err = q.inner.ActiveThread()
		return err
	})
	return
}

func (q *QueuedAdapter) SetActiveThread(tid uint64) error {
	return run(q, func() error { return q.inner.SetActiveThread(tid) })
}

func (q *QueuedAdapter) FramesOfThread(tid uint64) (frames []debugmodel.Frame, err error) {
	err = run(q, func() error {
		frames, err = q.inner.FramesOfThread(tid)
		return err
	})
	return
}

func (q *QueuedAdapter) SuspendThread(tid uint64) error {
	return run(q, func() error { return q.inner.SuspendThread(tid) })
}

func (q *QueuedAdapter) ResumeThread(tid uint64) error {
	return run(q, func() error { return q.inner.ResumeThread(tid) })
}

func (q *QueuedAdapter) Modules() (modules []debugmodel.Module, err error) {
	err = run(q, func() error {
		modules, err = q.inner.Modules()
		return err
	})
	return
}

func (q *QueuedAdapter) TargetArchitecture() (arch string, err error) {
	err = run(q, func() error {
		arch, err = q.inner.TargetArchitecture()
		return err
	})
	return
}

func (q *QueuedAdapter) ExitCode() (code int64, err error) {
	err = run(q, func() error {
		code, err = q.inner.ExitCode()
		return err
	})
	return
}

func (q *QueuedAdapter) StopReason() debugmodel.StopReason {
	return q.inner.StopReason()
}

func (q *QueuedAdapter) Supports(cap Capability) bool {
	return q.inner.Supports(cap)
}

func (q *QueuedAdapter) SetEventCallback(fn func(AdapterEvent)) {
	q.inner.SetEventCallback(fn)
}

func (q *QueuedAdapter) InvokeBackendCommand(text string) (resp string, err error) {
	err = run(q, func() error {
		resp, err = q.inner.InvokeBackendCommand(text)
		return err
	})
	return
}

func (q *QueuedAdapter) WriteStdin(text string) error {
	return run(q, func() error { return q.inner.WriteStdin(text) })
}

var _ Adapter = (*QueuedAdapter)(nil)
