// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state implements the lazily-refreshed view over live target
// state: modules, threads, registers, and the address translation
// built on them. Grounded on BinaryNinjaDebugger::DebuggerState's
// DebuggerModules/DebuggerRegisters (src/debuggerstate.cpp), each of
// which exposes markDirty/update and answers reads from a cache.
package state

import (
	"sort"
	"sync"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/debugmodel"
)

// ModuleCache is a lazy snapshot of the adapter's loaded-module list.
type ModuleCache struct {
	mu      sync.Mutex
	dirty   bool
	modules []debugmodel.Module
}

// NewModuleCache returns a cache that starts dirty.
func NewModuleCache() *ModuleCache { return &ModuleCache{dirty: true} }

// MarkDirty marks the cache stale; the next read will refresh it.
func (c *ModuleCache) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// Update round-trips to the adapter unconditionally.
func (c *ModuleCache) Update(a adapter.Adapter) error {
	modules, err := a.Modules()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.modules = modules
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// All returns all modules, refreshing first if dirty.
func (c *ModuleCache) All(a adapter.Adapter) ([]debugmodel.Module, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.Update(a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]debugmodel.Module, len(c.modules))
	copy(out, c.modules)
	return out, nil
}

// ModuleBase returns the live base address of the named module (matched by
// Name or ShortName) and whether it is currently loaded. Implements
// ModuleLookup for the breakpoint registry without refreshing — callers
// are expected to have refreshed the cache already (e.g. after a stop).
func (c *ModuleCache) ModuleBase(name string) (base uint64, loaded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.modules {
		if m.Loaded && (m.Name == name || m.ShortName == name) {
			return m.Base, true
		}
	}
	return 0, false
}

// ModuleContaining finds the module whose [Base, Base+Size) contains
// addr. Modules never overlap by invariant; if more than one matched
// (should not happen), the first by ascending base wins.
func (c *ModuleCache) ModuleContaining(addr uint64) (name string, base uint64, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates := make([]debugmodel.Module, 0, 1)
	for _, m := range c.modules {
		if m.Loaded && m.Contains(addr) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", 0, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Base < candidates[j].Base })
	return candidates[0].Name, candidates[0].Base, true
}

// RemoteBase returns the base at which the main module (the module
// matching mainName by SameBase, or the first loaded module if
// mainName is empty) is loaded in the live target.
func (c *ModuleCache) RemoteBase(mainName string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.modules {
		if !m.Loaded {
			continue
		}
		if mainName == "" || debugmodel.SameBase(m.Name, mainName) {
			return m.Base, true
		}
	}
	return 0, false
}

// ThreadCache is a lazy snapshot of the adapter's thread list and the
// active thread.
type ThreadCache struct {
	mu      sync.Mutex
	dirty   bool
	threads []debugmodel.Thread
	active  debugmodel.Thread
}

// NewThreadCache returns a cache that starts dirty.
func NewThreadCache() *ThreadCache { return &ThreadCache{dirty: true} }

func (c *ThreadCache) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *ThreadCache) Update(a adapter.Adapter) error {
	threads, err := a.Threads()
	if err != nil {
		return err
	}
	active, err := a.ActiveThread()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.threads = threads
	c.active = active
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// All returns all threads, refreshing first if dirty.
func (c *ThreadCache) All(a adapter.Adapter) ([]debugmodel.Thread, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.Update(a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]debugmodel.Thread, len(c.threads))
	copy(out, c.threads)
	return out, nil
}

// Active returns the active thread, refreshing first if dirty.
func (c *ThreadCache) Active(a adapter.Adapter) (debugmodel.Thread, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.Update(a); err != nil {
			return debugmodel.Thread{}, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, nil
}

// RegisterCache is a lazy snapshot of the active thread's registers.
type RegisterCache struct {
	mu    sync.Mutex
	dirty bool
	regs  map[string]debugmodel.Register
}

// NewRegisterCache returns a cache that starts dirty.
func NewRegisterCache() *RegisterCache {
	return &RegisterCache{dirty: true, regs: make(map[string]debugmodel.Register)}
}

func (c *RegisterCache) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

func (c *RegisterCache) Update(a adapter.Adapter) error {
	regs, err := a.ReadAllRegisters()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.regs = regs
	c.dirty = false
	c.mu.Unlock()
	return nil
}

// Get returns one register by name, refreshing the whole set first if
// dirty. If the register does not exist, it returns the zero value
// and false rather than failing the caller — a single missing or
// renamed register should not take down an otherwise-working read.
func (c *RegisterCache) Get(a adapter.Adapter, name string) (debugmodel.Register, bool, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.Update(a); err != nil {
			return debugmodel.Register{}, false, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.regs[name]
	return r, ok, nil
}

// All returns all registers, refreshing first if dirty.
func (c *RegisterCache) All(a adapter.Adapter) (map[string]debugmodel.Register, error) {
	c.mu.Lock()
	dirty := c.dirty
	c.mu.Unlock()
	if dirty {
		if err := c.Update(a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]debugmodel.Register, len(c.regs))
	for k, v := range c.regs {
		out[k] = v
	}
	return out, nil
}

// Caches bundles the module, thread and register caches that must be
// refreshed together at every stop, plus address translation built on
// top of them.
type Caches struct {
	Modules   *ModuleCache
	Threads   *ThreadCache
	Registers *RegisterCache
}

// New returns a fully dirty set of caches.
func New() *Caches {
	return &Caches{
		Modules:   NewModuleCache(),
		Threads:   NewThreadCache(),
		Registers: NewRegisterCache(),
	}
}

// MarkDirty marks every sub-cache stale.
func (c *Caches) MarkDirty() {
	c.Modules.MarkDirty()
	c.Threads.MarkDirty()
	c.Registers.MarkDirty()
}

// Update refreshes every sub-cache from the adapter.
func (c *Caches) Update(a adapter.Adapter) error {
	if err := c.Modules.Update(a); err != nil {
		return err
	}
	if err := c.Threads.Update(a); err != nil {
		return err
	}
	return c.Registers.Update(a)
}

// RelativeToAbsolute resolves a relative address to an absolute one
// using the live module base. Fails if the module is not loaded.
func (c *Caches) RelativeToAbsolute(rel debugmodel.RelativeAddress) (uint64, bool) {
	base, loaded := c.Modules.ModuleBase(rel.Module)
	if !loaded {
		return 0, false
	}
	return base + rel.Offset, true
}

// AbsoluteToRelative resolves an absolute address to the relative form
// of whichever module contains it.
func (c *Caches) AbsoluteToRelative(addr uint64) (debugmodel.RelativeAddress, bool) {
	name, base, found := c.Modules.ModuleContaining(addr)
	if !found {
		return debugmodel.RelativeAddress{}, false
	}
	return debugmodel.RelativeAddress{Module: name, Offset: addr - base}, true
}
