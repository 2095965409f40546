// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package breakpoint implements the authoritative set of user
// breakpoints and the reconciliation of that set against what is
// actually installed in a back-end adapter.
package breakpoint

import (
	"sort"
	"sync"

	"github.com/nativedbg/nativedbg/debugmodel"
)

// ModuleLookup resolves a module name to its live module, for turning
// a relative address into an absolute one and vice versa.
type ModuleLookup interface {
	// ModuleBase returns the base address of the named module and
	// whether it is currently loaded.
	ModuleBase(name string) (base uint64, loaded bool)
	// ModuleContaining returns the module containing addr, by
	// ascending base address, and whether one was found.
	ModuleContaining(addr uint64) (name string, base uint64, found bool)
}

// Installer is the subset of the adapter contract the registry needs
// in order to reconcile installed breakpoints (§4.B/§4.C).
type Installer interface {
	AddBreakpoint(addr uint64) error
	RemoveBreakpoint(addr uint64) error
}

// Registry is the ordered set of relative breakpoints plus the
// derived set of absolute addresses currently installed in the
// adapter. Comparison of relative breakpoints is on (module, offset).
type Registry struct {
	mu        sync.Mutex
	relative  map[debugmodel.RelativeAddress]bool
	installed map[uint64]debugmodel.RelativeAddress // absolute -> owning relative
}

// New returns an empty breakpoint registry.
func New() *Registry {
	return &Registry{
		relative:  make(map[debugmodel.RelativeAddress]bool),
		installed: make(map[uint64]debugmodel.RelativeAddress),
	}
}

// AddRelative adds a relative breakpoint. Idempotent: adding the same
// breakpoint twice leaves the registry in the same state as adding it
// once.
func (r *Registry) AddRelative(addr debugmodel.RelativeAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relative[addr] = true
}

// AddAbsolute finds the module containing addr via lookup and stores
// the breakpoint as (module, addr-base); if no module contains the
// address it is stored with an empty module name, so it is never
// satisfied until a module happens to load there.
func (r *Registry) AddAbsolute(addr uint64, lookup ModuleLookup) debugmodel.RelativeAddress {
	name, base, found := lookup.ModuleContaining(addr)
	var rel debugmodel.RelativeAddress
	if found {
		rel = debugmodel.RelativeAddress{Module: name, Offset: addr - base}
	} else {
		rel = debugmodel.RelativeAddress{Module: "", Offset: addr}
	}
	r.AddRelative(rel)
	return rel
}

// RemoveRelative removes a relative breakpoint. A no-op if it is not
// present.
func (r *Registry) RemoveRelative(addr debugmodel.RelativeAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.relative, addr)
}

// RemoveAbsolute removes whatever relative breakpoint resolves to
// addr under lookup, if any.
func (r *Registry) RemoveAbsolute(addr uint64, lookup ModuleLookup) {
	name, base, found := lookup.ModuleContaining(addr)
	if !found {
		r.RemoveRelative(debugmodel.RelativeAddress{Module: "", Offset: addr})
		return
	}
	r.RemoveRelative(debugmodel.RelativeAddress{Module: name, Offset: addr - base})
}

// ContainsRelative reports whether addr is a registered relative
// breakpoint.
func (r *Registry) ContainsRelative(addr debugmodel.RelativeAddress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relative[addr]
}

// ContainsAbsolute reports whether addr is currently installed in the
// adapter.
func (r *Registry) ContainsAbsolute(addr uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.installed[addr]
	return ok
}

// List returns the relative breakpoints in (module, offset) order.
func (r *Registry) List() []debugmodel.RelativeAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]debugmodel.RelativeAddress, 0, len(r.relative))
	for a := range r.relative {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ApplyAll reconciles the installed set with the relative set: every
// relative breakpoint whose module is loaded gets an absolute
// installed; every installed absolute with no matching relative (or
// whose module unloaded) gets removed. Idempotent. Intended to be
// called after the caches refresh at a stop (spec.md §4.C).
func (r *Registry) ApplyAll(lookup ModuleLookup, adapter Installer) error {
	r.mu.Lock()
	want := make(map[uint64]debugmodel.RelativeAddress, len(r.relative))
	for rel := range r.relative {
		if rel.Module == "" {
			continue
		}
		base, loaded := lookup.ModuleBase(rel.Module)
		if !loaded {
			continue
		}
		want[base+rel.Offset] = rel
	}
	var toAdd []uint64
	for addr := range want {
		if _, ok := r.installed[addr]; !ok {
			toAdd = append(toAdd, addr)
		}
	}
	var toRemove []uint64
	for addr := range r.installed {
		if _, ok := want[addr]; !ok {
			toRemove = append(toRemove, addr)
		}
	}
	r.mu.Unlock()

	for _, addr := range toAdd {
		if err := adapter.AddBreakpoint(addr); err != nil {
			return err
		}
	}
	for _, addr := range toRemove {
		if err := adapter.RemoveBreakpoint(addr); err != nil {
			return err
		}
	}

	r.mu.Lock()
	for addr, rel := range want {
		r.installed[addr] = rel
	}
	for _, addr := range toRemove {
		delete(r.installed, addr)
	}
	r.mu.Unlock()
	return nil
}

// InstalledAddresses returns the absolute addresses currently believed
// to be installed in the adapter.
func (r *Registry) InstalledAddresses() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.installed))
	for addr := range r.installed {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
