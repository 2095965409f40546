// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package adaptertype implements the process-wide registry of adapter
// types: enumeration, selection, and per-target launch settings
// schema (spec.md §4.G). Grounded on
// BinaryNinjaDebugger::DebugAdapterType::GetByName /
// DebuggerController::CreateDebugAdapter, and structurally on the
// teacher's own registry-less program selection in
// ogle/program/{local,client} (two fixed "kinds" picked by which
// package the caller imports) generalized to an explicit, named table.
package adaptertype

import (
	"runtime"
	"sort"
	"sync"

	"github.com/nativedbg/nativedbg/adapter"
)

// Image identifies the program being debugged, for the purposes of
// adapter-type validation and settings scoping.
type Image struct {
	Path string
	OS   string
	Arch string
}

// Type is a registered kind of back end: DbgEng-style, LLDB-style,
// Win32-style, or any other. The registry stores these by name; the
// concrete adapter implementations themselves are out of scope for
// this module (spec.md §1).
type Type interface {
	Name() string
	IsValidFor(img Image) bool
	CanExecute(img Image) bool
	CanConnect(img Image) bool
	Create(img Image) (adapter.Adapter, error)
	DefaultLaunchSettings(img Image) map[string]string
	LaunchSettings(img Image) map[string]string
}

// Registry is the process-wide table of adapter types keyed by name.
type Registry struct {
	mu    sync.Mutex
	types map[string]Type
}

// global is the process-wide singleton, matching the teacher's and
// the original source's module-level registries. It is not used
// implicitly by the Controller (which always takes an explicit
// *Registry) so tests can construct isolated registries instead of
// sharing global mutable state.
var global = New()

// Global returns the process-wide adapter-type registry.
func Global() *Registry { return global }

// New returns an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds or replaces a named adapter type.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name()] = t
}

// Unregister removes a named adapter type, e.g. at plugin unload.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.types, name)
}

// ByName looks up a registered adapter type.
func (r *Registry) ByName(name string) (Type, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[name]
	return t, ok
}

// All returns every registered type, sorted by name for determinism.
func (r *Registry) All() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AvailableFor returns the registered types that validate for img and
// can either execute or connect to it.
func (r *Registry) AvailableFor(img Image) []Type {
	var out []Type
	for _, t := range r.All() {
		if t.IsValidFor(img) && (t.CanExecute(img) || t.CanConnect(img)) {
			out = append(out, t)
		}
	}
	return out
}

// BestForCurrentSystem makes the same platform-specific static choice
// as the original source: a DbgEng-style adapter on Windows, otherwise
// an LLDB-style one. If no type of that preferred kind is registered
// and available, it falls back to the first available type by name;
// it returns false only when no type is available for img at all.
func (r *Registry) BestForCurrentSystem(img Image) (Type, bool) {
	preferred := "LLDB"
	if runtime.GOOS == "windows" {
		preferred = "DBGENG"
	}
	for _, t := range r.AvailableFor(img) {
		if t.Name() == preferred {
			return t, true
		}
	}
	avail := r.AvailableFor(img)
	if len(avail) > 0 {
		return avail[0], true
	}
	return nil, false
}
