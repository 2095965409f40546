// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refadapter is a small, fully in-process adapter.Adapter
// implementation, driving a real OS process via os/exec rather than
// any platform debug API. It exists so the controller package, the
// demo CLI, and tests can exercise the engine end to end without a
// real DbgEng/LLDB/Win32 back end, which this module deliberately
// does not implement (spec.md §1 non-goals). Grounded structurally on
// golang.org/x/debug's program/server.Server (one process, one set of
// breakpoints, a synchronous RPC-shaped surface) and on
// BinaryNinjaDebugger::QueuedAdapter for the single-worker discipline,
// applied here through adapter.QueuedAdapter rather than duplicated.
package refadapter

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/debugmodel"
)

// instruction is one entry of a synthetic, address-keyed instruction
// table standing in for real disassembly: a debuggee's code layout is
// registered up front via RegisterInstruction, since there is no real
// decoder backing it; an unregistered address steps as a one-byte
// instruction.
type instruction struct {
	length int
	isCall bool
	isRet  bool
}

// Adapter is the in-memory reference back end. Exactly one live
// process at a time; safe for concurrent use via adapter.QueuedAdapter
// wrapping it, but also safe to call directly in single-threaded tests.
type Adapter struct {
	mu sync.Mutex

	cmd   *exec.Cmd
	ptmx  *os.File      // non-nil only when launched with a pty
	stdin io.WriteCloser // non-nil only when launched without a pty

	breakpoints  map[uint64]bool
	savedBytes   map[uint64][]byte
	memory       map[uint64][]byte
	registers   map[string]debugmodel.Register
	threads     []debugmodel.Thread
	activeTID   uint64
	modules     []debugmodel.Module
	exitCode    int64
	stopped     debugmodel.StopReason

	instructions map[uint64]instruction

	onEvent func(adapter.AdapterEvent)
}

// New returns an unconnected reference adapter.
func New() *Adapter {
	return &Adapter{
		breakpoints:  make(map[uint64]bool),
		savedBytes:   make(map[uint64][]byte),
		memory:       make(map[uint64][]byte),
		registers:    make(map[string]debugmodel.Register),
		instructions: make(map[uint64]instruction),
		stopped:      debugmodel.InitialBreakpoint,
	}
}

// RegisterInstruction records the synthetic length/kind of the
// instruction at addr. StepInto consults the length to advance the
// synthetic IP; the call/return flags are stored but not read by this
// package (StepOver and StepReturn are unsupported here).
func (a *Adapter) RegisterInstruction(addr uint64, length int, isCall, isRet bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instructions[addr] = instruction{length: length, isCall: isCall, isRet: isRet}
}

func (a *Adapter) Execute(cfg adapter.LaunchConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd := exec.Command(cfg.Path, cfg.Args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}

	if cfg.RequestTerminalEmulator {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return fmt.Errorf("refadapter: pty start: %w", err)
		}
		a.ptmx = ptmx
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("refadapter: stdin pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("refadapter: start: %w", err)
		}
		a.stdin = stdin
	}

	a.cmd = cmd
	a.threads = []debugmodel.Thread{{TID: 1, InstructionPointer: 0}}
	a.activeTID = 1
	a.modules = []debugmodel.Module{{
		Name: cfg.Path, ShortName: baseName(cfg.Path), Base: 0x400000, Size: 0x100000, Loaded: true,
	}}
	a.registers = defaultRegisters()
	a.stopped = debugmodel.InitialBreakpoint
	return nil
}

func (a *Adapter) Attach(pid int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("refadapter: attach: %w", err)
	}
	a.cmd = &exec.Cmd{Process: proc}
	a.threads = []debugmodel.Thread{{TID: uint64(pid), InstructionPointer: 0}}
	a.activeTID = uint64(pid)
	a.registers = defaultRegisters()
	a.stopped = debugmodel.InitialBreakpoint
	return nil
}

func (a *Adapter) Connect(host string, port int) error {
	return fmt.Errorf("refadapter: remote connect not supported (no stub protocol implemented)")
}

func (a *Adapter) Detach() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmd = nil
	return nil
}

func (a *Adapter) Quit() error {
	a.mu.Lock()
	cmd := a.cmd
	ptmx := a.ptmx
	stdin := a.stdin
	a.cmd = nil
	a.ptmx = nil
	a.stdin = nil
	a.mu.Unlock()

	if ptmx != nil {
		ptmx.Close()
	}
	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// Go runs the process to completion: this in-memory adapter has no
// real trap mechanism, so "running" means waiting for the process to
// exit, and Go always reports ProcessExited. A BreakIn ends the wait
// only if its interrupt makes the process exit.
func (a *Adapter) Go() (debugmodel.StopReason, error) {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil {
		return debugmodel.InternalError, fmt.Errorf("refadapter: not running")
	}
	err := cmd.Wait()
	a.mu.Lock()
	a.stopped = debugmodel.ProcessExited
	if exitErr, ok := err.(*exec.ExitError); ok {
		a.exitCode = int64(exitErr.ExitCode())
	}
	a.mu.Unlock()
	return debugmodel.ProcessExited, nil
}

// StepInto advances the synthetic IP by the registered instruction's
// length (or 1 byte, if unregistered), reporting SingleStep.
func (a *Adapter) StepInto() (debugmodel.StopReason, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ip := a.registers["pc"].Value
	length := uint64(1)
	if insn, ok := a.instructions[ip]; ok && insn.length > 0 {
		length = uint64(insn.length)
	}
	a.setIPLocked(ip + length)
	a.stopped = debugmodel.SingleStep
	return debugmodel.SingleStep, nil
}

func (a *Adapter) StepOver() (debugmodel.StopReason, error) {
	return debugmodel.Unknown, fmt.Errorf("refadapter: native step-over unsupported")
}

func (a *Adapter) StepReturn() (debugmodel.StopReason, error) {
	return debugmodel.Unknown, fmt.Errorf("refadapter: native step-return unsupported")
}

// BreakIn sends os.Interrupt to the child process, the closest
// in-process analog to Win32's DebugBreakProcess available without
// real ptrace/Win32 control, then records UserRequestedBreak as the
// stop reason and raises an EventStopped event. It does not take the
// queue, so it can be called while Go is waiting.
func (a *Adapter) BreakIn() error {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return err
	}
	a.mu.Lock()
	a.stopped = debugmodel.UserRequestedBreak
	a.mu.Unlock()
	if a.onEvent != nil {
		a.onEvent(adapter.AdapterEvent{Kind: adapter.EventStopped, StopReason: debugmodel.UserRequestedBreak})
	}
	return nil
}

func (a *Adapter) setIPLocked(v uint64) {
	r := a.registers["pc"]
	r.Value = v
	a.registers["pc"] = r
	if len(a.threads) > 0 {
		a.threads[0].InstructionPointer = v
	}
}

func (a *Adapter) ReadMemory(addr uint64, size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.memory[addr]
	if !ok || len(buf) < size {
		return make([]byte, size), nil
	}
	out := make([]byte, size)
	copy(out, buf[:size])
	return out, nil
}

func (a *Adapter) WriteMemory(addr uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	a.memory[addr] = buf
	return nil
}

func (a *Adapter) ReadAllRegisters() (map[string]debugmodel.Register, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]debugmodel.Register, len(a.registers))
	for k, v := range a.registers {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) ReadRegister(name string) (debugmodel.Register, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.registers[name]
	if !ok {
		return debugmodel.Register{}, fmt.Errorf("refadapter: unknown register %q", name)
	}
	return r, nil
}

func (a *Adapter) WriteRegister(name string, value uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.registers[name]
	r.Name = name
	r.Value = value
	a.registers[name] = r
	if name == "pc" && len(a.threads) > 0 {
		a.threads[0].InstructionPointer = value
	}
	return nil
}

// AddBreakpoint patches the synthetic breakpointInstr bytes into
// memory at addr, saving whatever was there so RemoveBreakpoint can
// restore it -- the same install/save discipline a real software
// breakpoint adapter uses, applied to the synthetic memory map
// instead of a live process's text segment.
func (a *Adapter) AddBreakpoint(addr uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.breakpoints[addr] {
		return nil
	}
	orig, ok := a.memory[addr]
	if !ok || len(orig) < len(breakpointInstr) {
		orig = make([]byte, len(breakpointInstr))
	}
	saved := make([]byte, len(breakpointInstr))
	copy(saved, orig[:len(breakpointInstr)])
	a.savedBytes[addr] = saved

	patched := make([]byte, len(breakpointInstr))
	copy(patched, breakpointInstr)
	a.memory[addr] = patched

	a.breakpoints[addr] = true
	return nil
}

func (a *Adapter) RemoveBreakpoint(addr uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.breakpoints[addr] {
		return nil
	}
	if saved, ok := a.savedBytes[addr]; ok {
		a.memory[addr] = saved
		delete(a.savedBytes, addr)
	}
	delete(a.breakpoints, addr)
	return nil
}

func (a *Adapter) ListBreakpoints() ([]uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint64, 0, len(a.breakpoints))
	for addr := range a.breakpoints {
		out = append(out, addr)
	}
	return out, nil
}

func (a *Adapter) Threads() ([]debugmodel.Thread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]debugmodel.Thread, len(a.threads))
	copy(out, a.threads)
	return out, nil
}

func (a *Adapter) ActiveThread() (debugmodel.Thread, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.threads {
		if t.TID == a.activeTID {
			return t, nil
		}
	}
	return debugmodel.Thread{}, fmt.Errorf("refadapter: no active thread")
}

func (a *Adapter) SetActiveThread(tid uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.threads {
		if t.TID == tid {
			a.activeTID = tid
			return nil
		}
	}
	return fmt.Errorf("refadapter: no such thread %d", tid)
}

func (a *Adapter) FramesOfThread(tid uint64) ([]debugmodel.Frame, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.threads {
		if t.TID == tid {
			return []debugmodel.Frame{{Index: 0, PC: t.InstructionPointer, FunctionName: "?"}}, nil
		}
	}
	return nil, fmt.Errorf("refadapter: no such thread %d", tid)
}

// SuspendThread/ResumeThread flip Thread.Frozen for one thread. This
// in-memory adapter has only ever had one real OS thread backing it
// (the child process itself), so freezing is bookkeeping only: it
// does not stop that thread independent of the others, but it does
// give Controller.SuspendThread/ResumeThread and Thread.Frozen a real
// back end to round-trip through.
func (a *Adapter) SuspendThread(tid uint64) error {
	return a.setFrozen(tid, true)
}

func (a *Adapter) ResumeThread(tid uint64) error {
	return a.setFrozen(tid, false)
}

func (a *Adapter) setFrozen(tid uint64, frozen bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.threads {
		if a.threads[i].TID == tid {
			a.threads[i].Frozen = frozen
			return nil
		}
	}
	return fmt.Errorf("refadapter: no such thread %d", tid)
}

func (a *Adapter) Modules() ([]debugmodel.Module, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]debugmodel.Module, len(a.modules))
	copy(out, a.modules)
	return out, nil
}

func (a *Adapter) TargetArchitecture() (string, error) {
	return "x86_64", nil
}

func (a *Adapter) ExitCode() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exitCode, nil
}

func (a *Adapter) StopReason() debugmodel.StopReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *Adapter) Supports(cap adapter.Capability) bool {
	return false
}

func (a *Adapter) SetEventCallback(fn func(adapter.AdapterEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEvent = fn
}

func (a *Adapter) InvokeBackendCommand(text string) (string, error) {
	return "", fmt.Errorf("refadapter: no backend command interpreter")
}

func (a *Adapter) WriteStdin(text string) error {
	a.mu.Lock()
	ptmx := a.ptmx
	stdin := a.stdin
	a.mu.Unlock()
	if ptmx != nil {
		_, err := ptmx.WriteString(text)
		return err
	}
	if stdin != nil {
		_, err := stdin.Write([]byte(text))
		return err
	}
	return fmt.Errorf("refadapter: no stdin pipe available")
}

func defaultRegisters() map[string]debugmodel.Register {
	return map[string]debugmodel.Register{
		"pc": {Name: "pc", Value: 0x400000, BitWidth: 64, Index: 0, Hint: "instruction pointer"},
		"sp": {Name: "sp", Value: 0, BitWidth: 64, Index: 1, Hint: "stack pointer"},
	}
}

func baseName(path string) string {
	i := len(path)
	for i > 0 && path[i-1] != '/' && path[i-1] != '\\' {
		i--
	}
	return path[i:]
}

var _ adapter.Adapter = (*Adapter)(nil)
