// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package adapter defines the narrow, strictly-ordered contract every
// back-end (Win32 debug API, LLDB, DbgEng, ...) must satisfy, plus the
// QueuedAdapter wrapper that funnels concurrent callers onto a single
// worker goroutine. Grounded on golang.org/x/debug's
// program/server (a Go server implementing the same shape of
// interface over ptrace) and, for the queueing discipline, on
// BinaryNinjaDebugger::QueuedAdapter.
package adapter

import (
	"github.com/nativedbg/nativedbg/debugmodel"
)

// Capability is a named boolean predicate on an adapter indicating
// optional protocol support.
type Capability int

const (
	// CapStepOver: the adapter implements StepOver natively.
	CapStepOver Capability = iota
	// CapStepReturn: the adapter implements StepReturn natively.
	CapStepReturn
	// CapAttach: the adapter can attach to a running process.
	CapAttach
	// CapConnect: the adapter can connect to a remote stub.
	CapConnect
	// CapReverseExecution: the adapter supports reverse/record-replay
	// execution variants.
	CapReverseExecution
	// CapAutoBreakpointElision: the adapter itself performs the
	// step-over-breakpoint dance before resuming (so Controller.Go
	// must not also do it). Replaces the source's string compare on
	// adapter-type name ("Local DBGENG" vs "LOCAL DBGENG") with an
	// explicit capability, per spec.md §9.
	CapAutoBreakpointElision
)

// LaunchConfig carries the parameters for Execute.
type LaunchConfig struct {
	Path                   string
	Args                   []string
	WorkDir                string
	RequestTerminalEmulator bool
}

// Adapter is the per-session interface every back end implements. All
// operations are synchronous from the caller's point of view (the
// adapter may block arbitrarily long waiting for the target) and, per
// spec.md §4.A, undefined while the target is running except BreakIn,
// which must be callable concurrently with a blocked Go/Step*.
type Adapter interface {
	Execute(cfg LaunchConfig) error
	Attach(pid int) error
	Connect(host string, port int) error
	Detach() error
	Quit() error

	Go() (debugmodel.StopReason, error)
	StepInto() (debugmodel.StopReason, error)
	StepOver() (debugmodel.StopReason, error)
	StepReturn() (debugmodel.StopReason, error)
	BreakIn() error

	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) error

	ReadAllRegisters() (map[string]debugmodel.Register, error)
	ReadRegister(name string) (debugmodel.Register, error)
	WriteRegister(name string, value uint64) error

	AddBreakpoint(addr uint64) error
	RemoveBreakpoint(addr uint64) error
	ListBreakpoints() ([]uint64, error)

	Threads() ([]debugmodel.Thread, error)
	ActiveThread() (debugmodel.Thread, error)
	SetActiveThread(tid uint64) error
	FramesOfThread(tid uint64) ([]debugmodel.Frame, error)
	// SuspendThread/ResumeThread freeze or thaw one thread independent
	// of the rest of the target, reflected back in Thread.Frozen.
	SuspendThread(tid uint64) error
	ResumeThread(tid uint64) error

	Modules() ([]debugmodel.Module, error)
	TargetArchitecture() (string, error)
	ExitCode() (int64, error)
	StopReason() debugmodel.StopReason

	Supports(cap Capability) bool

	// SetEventCallback installs the sink for asynchronous adapter
	// events (stopped, module-loaded, thread-created, stdout,
	// process-exited). Replaces any previously installed callback.
	SetEventCallback(fn func(AdapterEvent))

	// InvokeBackendCommand passes a raw command string through to the
	// back end's own command interpreter, if it has one, and returns
	// its textual response.
	InvokeBackendCommand(text string) (string, error)
	// WriteStdin forwards text to the target's standard input.
	WriteStdin(text string) error
}

// AdapterEventKind is the closed set of asynchronous events an
// adapter can raise on its own, outside of a direct call returning.
type AdapterEventKind int

const (
	EventStopped AdapterEventKind = iota
	EventModuleLoaded
	EventModuleUnloaded
	EventThreadCreated
	EventThreadExited
	EventStdout
	EventProcessExited
)

// AdapterEvent is one asynchronous event raised by an adapter.
type AdapterEvent struct {
	Kind       AdapterEventKind
	StopReason debugmodel.StopReason
	Module     debugmodel.Module
	Thread     debugmodel.Thread
	Text       string
	ExitCode   int64
}
