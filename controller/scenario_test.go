// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/adaptertype"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
)

// stubAdapter is a tiny in-test Adapter: one module, one thread, a
// scripted sequence of Go() stop reasons, and real breakpoint
// bookkeeping so ApplyAll has something to reconcile against. When
// blockForBreak is set and goReasons is exhausted, Go() simulates a
// program looping forever: it blocks until BreakIn arrives, the same
// shape scenario 6 (break-in) exercises against a real adapter.
type stubAdapter struct {
	mu            sync.Mutex
	breakpoints   map[uint64]bool
	goReasons     []debugmodel.StopReason
	onEvent       func(adapter.AdapterEvent)
	ip            uint64
	blockForBreak bool
	running       chan struct{}
	frozen        map[uint64]bool
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{breakpoints: make(map[uint64]bool), frozen: make(map[uint64]bool)}
}

func (s *stubAdapter) Execute(adapter.LaunchConfig) error { return nil }
func (s *stubAdapter) Attach(int) error                   { return nil }
func (s *stubAdapter) Connect(string, int) error          { return nil }
func (s *stubAdapter) Detach() error                      { return nil }
func (s *stubAdapter) Quit() error                        { return nil }

func (s *stubAdapter) Go() (debugmodel.StopReason, error) {
	s.mu.Lock()
	if len(s.goReasons) > 0 {
		r := s.goReasons[0]
		s.goReasons = s.goReasons[1:]
		s.mu.Unlock()
		return r, nil
	}
	if s.blockForBreak {
		block := make(chan struct{})
		s.running = block
		s.mu.Unlock()
		<-block
		return debugmodel.UserRequestedBreak, nil
	}
	s.mu.Unlock()
	return debugmodel.ProcessExited, nil
}
func (s *stubAdapter) StepInto() (debugmodel.StopReason, error)   { return debugmodel.SingleStep, nil }
func (s *stubAdapter) StepOver() (debugmodel.StopReason, error)   { return debugmodel.SingleStep, nil }
func (s *stubAdapter) StepReturn() (debugmodel.StopReason, error) { return debugmodel.SingleStep, nil }

// BreakIn unblocks a Go() call currently waiting inside the
// blockForBreak branch, mirroring a real adapter's break-in unblocking
// an in-flight resume.
func (s *stubAdapter) BreakIn() error {
	s.mu.Lock()
	block := s.running
	s.running = nil
	s.mu.Unlock()
	if block != nil {
		close(block)
	}
	return nil
}

func (s *stubAdapter) ReadMemory(uint64, int) ([]byte, error)  { return nil, nil }
func (s *stubAdapter) WriteMemory(uint64, []byte) error        { return nil }
func (s *stubAdapter) ReadAllRegisters() (map[string]debugmodel.Register, error) {
	return map[string]debugmodel.Register{"pc": {Name: "pc", Value: s.ip}}, nil
}
func (s *stubAdapter) ReadRegister(string) (debugmodel.Register, error) {
	return debugmodel.Register{}, nil
}
func (s *stubAdapter) WriteRegister(string, uint64) error { return nil }

func (s *stubAdapter) AddBreakpoint(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[addr] = true
	return nil
}
func (s *stubAdapter) RemoveBreakpoint(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, addr)
	return nil
}
func (s *stubAdapter) ListBreakpoints() ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for a := range s.breakpoints {
		out = append(out, a)
	}
	return out, nil
}

func (s *stubAdapter) Threads() ([]debugmodel.Thread, error) {
	return []debugmodel.Thread{{TID: 1, InstructionPointer: s.ip}}, nil
}
func (s *stubAdapter) ActiveThread() (debugmodel.Thread, error) {
	return debugmodel.Thread{TID: 1, InstructionPointer: s.ip}, nil
}
func (s *stubAdapter) SetActiveThread(uint64) error { return nil }
func (s *stubAdapter) FramesOfThread(uint64) ([]debugmodel.Frame, error) {
	return []debugmodel.Frame{{Index: 0, PC: s.ip}}, nil
}
func (s *stubAdapter) SuspendThread(tid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen[tid] = true
	return nil
}
func (s *stubAdapter) ResumeThread(tid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen[tid] = false
	return nil
}

func (s *stubAdapter) Modules() ([]debugmodel.Module, error) {
	return []debugmodel.Module{{Name: "a.out", ShortName: "a.out", Base: 0x1000, Size: 0x1000, Loaded: true}}, nil
}
func (s *stubAdapter) TargetArchitecture() (string, error) { return "x86_64", nil }
func (s *stubAdapter) ExitCode() (int64, error)            { return 0, nil }
func (s *stubAdapter) StopReason() debugmodel.StopReason   { return debugmodel.Unknown }
func (s *stubAdapter) Supports(adapter.Capability) bool    { return false }
func (s *stubAdapter) SetEventCallback(fn func(adapter.AdapterEvent)) { s.onEvent = fn }
func (s *stubAdapter) InvokeBackendCommand(string) (string, error)    { return "", nil }
func (s *stubAdapter) WriteStdin(string) error                        { return nil }

var _ adapter.Adapter = (*stubAdapter)(nil)

// stubType wraps a pre-built stubAdapter as an adaptertype.Type so
// tests can hand the Controller a scripted back end.
type stubType struct {
	name string
	adp  *stubAdapter
}

func (t stubType) Name() string                     { return t.name }
func (t stubType) IsValidFor(adaptertype.Image) bool { return true }
func (t stubType) CanExecute(adaptertype.Image) bool { return true }
func (t stubType) CanConnect(adaptertype.Image) bool { return false }
func (t stubType) Create(adaptertype.Image) (adapter.Adapter, error) {
	return t.adp, nil
}
func (t stubType) DefaultLaunchSettings(adaptertype.Image) map[string]string { return nil }
func (t stubType) LaunchSettings(adaptertype.Image) map[string]string        { return nil }

func newTestController(t *testing.T, adp *stubAdapter) *Controller {
	t.Helper()
	types := adaptertype.New()
	types.Register(stubType{name: "stub", adp: adp})
	c := New(Image{Path: "/bin/demo"}, types, nil, logrus.StandardLogger())
	cfg := c.Config()
	cfg.AdapterType = "stub"
	c.SetConfig(cfg)
	return c
}

func TestLaunchReachesInitialBreakpoint(t *testing.T) {
	adp := newStubAdapter()
	c := newTestController(t, adp)

	var got []event.Kind
	c.RegisterCallback("test", func(e event.Event) { got = append(got, e.Kind) })

	require.NoError(t, c.LaunchAndWait())
	require.True(t, c.IsConnected())
	require.Equal(t, debugmodel.Paused, c.TargetStatus())
	require.Contains(t, got, event.TargetStopped)
}

func TestGoReportsProcessExitedAndTearsDownSession(t *testing.T) {
	adp := newStubAdapter()
	c := newTestController(t, adp)
	require.NoError(t, c.LaunchAndWait())

	var exited bool
	c.RegisterCallback("test", func(e event.Event) {
		if e.Kind == event.TargetExited {
			exited = true
		}
	})

	reason, err := c.GoAndWait()
	require.NoError(t, err)
	require.Equal(t, debugmodel.ProcessExited, reason)
	require.True(t, exited)
	require.False(t, c.IsConnected())
}

func TestGoRejectedWhenNotPaused(t *testing.T) {
	adp := newStubAdapter()
	c := newTestController(t, adp)
	_, err := c.GoAndWait()
	require.Error(t, err)
}

func TestNonBlockingGoRejectedWhenNotPaused(t *testing.T) {
	adp := newStubAdapter()
	c := newTestController(t, adp)
	started, err := c.Go()
	require.Error(t, err)
	require.False(t, started)
}

func TestBreakpointRegistryReconciledOnStop(t *testing.T) {
	adp := newStubAdapter()
	adp.goReasons = []debugmodel.StopReason{debugmodel.Breakpoint}
	c := newTestController(t, adp)
	require.NoError(t, c.LaunchAndWait())

	require.NoError(t, c.AddBreakpointRelative(debugmodel.RelativeAddress{Module: "a.out", Offset: 0x10}))
	require.True(t, adp.breakpoints[0x1010])

	reason, err := c.GoAndWait()
	require.NoError(t, err)
	require.Equal(t, debugmodel.Breakpoint, reason)
	require.True(t, c.ContainsBreakpointRelative(debugmodel.RelativeAddress{Module: "a.out", Offset: 0x10}))
}

func TestQuitLeavesBreakpointRegistryIntact(t *testing.T) {
	adp := newStubAdapter()
	c := newTestController(t, adp)
	require.NoError(t, c.LaunchAndWait())
	require.NoError(t, c.AddBreakpointRelative(debugmodel.RelativeAddress{Module: "a.out", Offset: 0x20}))

	require.NoError(t, c.QuitAndWait())
	require.False(t, c.IsConnected())
	require.True(t, c.ContainsBreakpointRelative(debugmodel.RelativeAddress{Module: "a.out", Offset: 0x20}))
}

// TestBreakInStopsLongRunningGo is scenario 6 from spec.md §8: a
// program that loops forever is resumed non-blockingly, and a
// subsequent PauseAndWait interrupts it and reports
// UserRequestedBreak.
func TestBreakInStopsLongRunningGo(t *testing.T) {
	adp := newStubAdapter()
	adp.blockForBreak = true
	c := newTestController(t, adp)
	require.NoError(t, c.LaunchAndWait())

	var gotBreak bool
	c.RegisterCallback("test", func(e event.Event) {
		if e.Kind == event.TargetStopped && e.StopReason == debugmodel.UserRequestedBreak {
			gotBreak = true
		}
	})

	started, err := c.Go()
	require.NoError(t, err)
	require.True(t, started)

	// Give goInternal's goroutine time to actually call adp.Go() and
	// block inside it, the same 100ms scenario 6 specifies.
	time.Sleep(100 * time.Millisecond)
	require.True(t, c.IsRunning())

	require.NoError(t, c.PauseAndWait())
	require.True(t, gotBreak)
	require.Equal(t, debugmodel.Paused, c.TargetStatus())
}

func TestRegistryEnforcesAtMostOneControllerPerImage(t *testing.T) {
	types := adaptertype.New()
	reg := NewRegistry(types, logrus.StandardLogger())

	img := Image{Path: "/bin/demo"}
	c1 := reg.GetOrCreate(img, nil)
	c2 := reg.GetOrCreate(img, nil)
	require.Same(t, c1, c2)
	require.Equal(t, 1, reg.Len())
}
