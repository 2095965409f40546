// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event implements the debugger's synchronous event bus: a
// thread-safe registry of named callbacks and a fan-out dispatcher.
// Grounded on the original controller's PostDebuggerEvent, which
// snapshots the subscriber list under a lock, releases the lock, and
// only then invokes callbacks — so a callback that registers or
// removes a subscriber does not affect the dispatch already underway.
package event

import (
	"sync"

	"github.com/nativedbg/nativedbg/debugmodel"
)

// Kind is the closed set of event types the bus can carry.
type Kind int

const (
	Launch Kind = iota
	Attach
	Resume
	StepInto
	StepOver
	StepReturn
	TargetStopped
	TargetExited
	Error
	AbsoluteBreakpointAdded
	AbsoluteBreakpointRemoved
	RelativeBreakpointAdded
	RelativeBreakpointRemoved
	ActiveThreadChanged
	ModuleLoaded
	ModuleUnloaded
	StdoutMessage
	InitialViewRebased
	Connect
	Detach
	QuitDebugging
	InvalidOperation
	InternalError
)

func (k Kind) String() string {
	names := [...]string{
		"Launch", "Attach", "Resume", "StepInto", "StepOver", "StepReturn",
		"TargetStopped", "TargetExited", "Error",
		"AbsoluteBreakpointAdded", "AbsoluteBreakpointRemoved",
		"RelativeBreakpointAdded", "RelativeBreakpointRemoved",
		"ActiveThreadChanged", "ModuleLoaded", "ModuleUnloaded",
		"StdoutMessage", "InitialViewRebased", "Connect", "Detach",
		"QuitDebugging", "InvalidOperation", "InternalError",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// Event is a single posted event. Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind Kind

	// TargetStopped
	StopReason debugmodel.StopReason
	LastThread uint64
	ExitCode   int64
	Data       any

	// TargetExited
	// (reuses ExitCode above)

	// Error
	Text      string
	ShortText string

	// breakpoint events
	Address      uint64
	ModuleName   string
	ModuleOffset uint64

	// StdoutMessage
	Stdout string
}

type subscriber struct {
	index int
	name  string
	fn    func(Event)
}

// Handle identifies a registered subscriber so it can be removed.
type Handle int

// Bus is a thread-safe registry of event subscriptions with
// synchronous, registration-order fan-out.
type Bus struct {
	mu     sync.Mutex
	subs   []subscriber
	nextID int
}

// New returns an empty event bus.
func New() *Bus {
	return &Bus{}
}

// Register adds a subscriber and returns a handle for later removal.
// Safe to call from inside a callback that is itself being dispatched;
// the new subscriber will not receive the event currently in flight.
func (b *Bus) Register(name string, fn func(Event)) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscriber{index: id, name: name, fn: fn})
	return Handle(id)
}

// Remove unregisters a subscriber by handle. Safe to call from inside
// a callback that is itself being dispatched.
func (b *Bus) Remove(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.index == int(h) {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Post snapshots the subscriber list under the lock, releases the
// lock, then invokes each callback in registration order on the
// posting goroutine. Callbacks must not block indefinitely.
func (b *Bus) Post(e Event) {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(e)
	}
}
