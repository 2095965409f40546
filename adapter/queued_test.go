// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nativedbg/nativedbg/debugmodel"
)

// fakeAdapter is a minimal Adapter used to test QueuedAdapter's
// handling of concurrent calls and BreakIn bypass without any real
// process.
type fakeAdapter struct {
	mu       sync.Mutex
	order    []int
	onEvent  func(AdapterEvent)
	breakIns int
	blocking chan struct{}
}

func (f *fakeAdapter) Execute(LaunchConfig) error    { return nil }
func (f *fakeAdapter) Attach(int) error              { return nil }
func (f *fakeAdapter) Connect(string, int) error     { return nil }
func (f *fakeAdapter) Detach() error                 { return nil }
func (f *fakeAdapter) Quit() error                   { return nil }
func (f *fakeAdapter) Go() (debugmodel.StopReason, error) {
	if f.blocking != nil {
		<-f.blocking
	}
	return debugmodel.Breakpoint, nil
}
func (f *fakeAdapter) StepInto() (debugmodel.StopReason, error)   { return debugmodel.SingleStep, nil }
func (f *fakeAdapter) StepOver() (debugmodel.StopReason, error)   { return debugmodel.SingleStep, nil }
func (f *fakeAdapter) StepReturn() (debugmodel.StopReason, error) { return debugmodel.SingleStep, nil }
func (f *fakeAdapter) BreakIn() error {
	f.mu.Lock()
	f.breakIns++
	f.mu.Unlock()
	if f.blocking != nil {
		close(f.blocking)
	}
	return nil
}
func (f *fakeAdapter) ReadMemory(uint64, int) ([]byte, error)         { return nil, nil }
func (f *fakeAdapter) WriteMemory(uint64, []byte) error               { return nil }
func (f *fakeAdapter) ReadAllRegisters() (map[string]debugmodel.Register, error) {
	return nil, nil
}
func (f *fakeAdapter) ReadRegister(string) (debugmodel.Register, error) {
	return debugmodel.Register{}, nil
}
func (f *fakeAdapter) WriteRegister(string, uint64) error { return nil }
func (f *fakeAdapter) AddBreakpoint(uint64) error         { return nil }
func (f *fakeAdapter) RemoveBreakpoint(uint64) error      { return nil }
func (f *fakeAdapter) ListBreakpoints() ([]uint64, error) { return nil, nil }
func (f *fakeAdapter) Threads() ([]debugmodel.Thread, error)   { return nil, nil }
func (f *fakeAdapter) ActiveThread() (debugmodel.Thread, error) { return debugmodel.Thread{}, nil }
func (f *fakeAdapter) SetActiveThread(uint64) error             { return nil }
func (f *fakeAdapter) FramesOfThread(uint64) ([]debugmodel.Frame, error) {
	return nil, nil
}
func (f *fakeAdapter) SuspendThread(uint64) error { return nil }
func (f *fakeAdapter) ResumeThread(uint64) error  { return nil }
func (f *fakeAdapter) Modules() ([]debugmodel.Module, error)  { return nil, nil }
func (f *fakeAdapter) TargetArchitecture() (string, error)    { return "x86_64", nil }
func (f *fakeAdapter) ExitCode() (int64, error)               { return 0, nil }
func (f *fakeAdapter) StopReason() debugmodel.StopReason      { return debugmodel.Unknown }
func (f *fakeAdapter) Supports(Capability) bool                { return false }
func (f *fakeAdapter) SetEventCallback(fn func(AdapterEvent)) { f.onEvent = fn }
func (f *fakeAdapter) InvokeBackendCommand(string) (string, error) { return "", nil }
func (f *fakeAdapter) WriteStdin(string) error                     { return nil }

func TestQueuedAdapterCompletesConcurrentCalls(t *testing.T) {
	inner := &fakeAdapter{}
	q := NewQueued(inner)
	defer q.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var seen []int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			q.WriteRegister("pc", uint64(i))
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 10)
}

func TestBreakInBypassesQueueWhileGoIsBlocked(t *testing.T) {
	inner := &fakeAdapter{blocking: make(chan struct{})}
	q := NewQueued(inner)
	defer q.Close()

	done := make(chan struct{})
	go func() {
		q.Go()
		close(done)
	}()

	// Give the worker goroutine time to enter Go() and block.
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, q.BreakIn())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go() did not return after BreakIn unblocked it")
	}
	require.Equal(t, 1, inner.breakIns)
}
