// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
)

// RelativeToAbsolute resolves a persistent relative address to a live
// absolute one using the currently cached module list.
func (c *Controller) RelativeToAbsolute(rel debugmodel.RelativeAddress) (uint64, bool) {
	return c.caches.RelativeToAbsolute(rel)
}

// AbsoluteToRelative resolves a live absolute address to its
// persistent relative form.
func (c *Controller) AbsoluteToRelative(addr uint64) (debugmodel.RelativeAddress, bool) {
	return c.caches.AbsoluteToRelative(addr)
}

// SameBaseModule reports whether addr's containing module matches name
// by basename, independent of the directory the module happens to be
// loaded from on this run.
func (c *Controller) SameBaseModule(addr uint64, name string) bool {
	modName, _, found := c.caches.Modules.ModuleContaining(addr)
	if !found {
		return false
	}
	return debugmodel.SameBase(modName, name)
}

// ReadMemory reads size bytes at addr from the live target.
func (c *Controller) ReadMemory(addr uint64, size int) ([]byte, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return nil, err
	}
	return adp.ReadMemory(addr, size)
}

// WriteMemory writes data to addr in the live target.
func (c *Controller) WriteMemory(addr uint64, data []byte) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	return adp.WriteMemory(addr, data)
}

// Threads returns the cached thread list, refreshing if stale.
func (c *Controller) Threads() ([]debugmodel.Thread, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return nil, err
	}
	return c.caches.Threads.All(adp)
}

// ActiveThread returns the cached active thread, refreshing if stale.
func (c *Controller) ActiveThread() (debugmodel.Thread, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.Thread{}, err
	}
	return c.caches.Threads.Active(adp)
}

// SetActiveThread switches the adapter's active thread and posts
// ActiveThreadChanged.
func (c *Controller) SetActiveThread(tid uint64) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.SetActiveThread(tid); err != nil {
		return err
	}
	c.caches.Threads.MarkDirty()
	c.caches.Registers.MarkDirty()
	c.refreshIPLocked(adp)
	c.bus.Post(event.Event{Kind: event.ActiveThreadChanged, LastThread: tid})
	return nil
}

// FramesOfThread returns the call stack of the named thread.
func (c *Controller) FramesOfThread(tid uint64) ([]debugmodel.Frame, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return nil, err
	}
	return adp.FramesOfThread(tid)
}

// SuspendThread freezes one thread independent of the rest of the
// target, reflected in its Thread.Frozen field on the next refresh.
func (c *Controller) SuspendThread(tid uint64) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.SuspendThread(tid); err != nil {
		return err
	}
	c.caches.Threads.MarkDirty()
	return nil
}

// ResumeThread thaws a previously suspended thread.
func (c *Controller) ResumeThread(tid uint64) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.ResumeThread(tid); err != nil {
		return err
	}
	c.caches.Threads.MarkDirty()
	return nil
}

// Modules returns the cached module list, refreshing if stale.
func (c *Controller) Modules() ([]debugmodel.Module, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return nil, err
	}
	return c.caches.Modules.All(adp)
}

// Registers returns the cached register set for the active thread,
// refreshing if stale.
func (c *Controller) Registers() (map[string]debugmodel.Register, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return nil, err
	}
	return c.caches.Registers.All(adp)
}

// GetRegister returns one named register from the cache.
func (c *Controller) GetRegister(name string) (debugmodel.Register, bool, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return debugmodel.Register{}, false, err
	}
	return c.caches.Registers.Get(adp, name)
}

// SetRegister writes a register on the live target and invalidates
// the register cache.
func (c *Controller) SetRegister(name string, value uint64) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	if err := adp.WriteRegister(name, value); err != nil {
		return err
	}
	c.caches.Registers.MarkDirty()
	return nil
}

// TargetArchitecture returns the live target's architecture name.
func (c *Controller) TargetArchitecture() (string, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return "", err
	}
	return adp.TargetArchitecture()
}

// AddBreakpointRelative registers a breakpoint at a module-relative
// address, reconciling immediately if connected.
func (c *Controller) AddBreakpointRelative(addr debugmodel.RelativeAddress) error {
	c.breakpoints.AddRelative(addr)
	c.bus.Post(event.Event{Kind: event.RelativeBreakpointAdded, ModuleName: addr.Module, ModuleOffset: addr.Offset})
	return c.reconcileBreakpointsIfConnected()
}

// AddBreakpointAbsolute registers a breakpoint at a live absolute
// address, reconciling immediately if connected.
func (c *Controller) AddBreakpointAbsolute(addr uint64) error {
	rel := c.breakpoints.AddAbsolute(addr, c.caches.Modules)
	c.bus.Post(event.Event{Kind: event.AbsoluteBreakpointAdded, Address: addr})
	if rel.Module != "" {
		c.bus.Post(event.Event{Kind: event.RelativeBreakpointAdded, ModuleName: rel.Module, ModuleOffset: rel.Offset})
	}
	return c.reconcileBreakpointsIfConnected()
}

// DeleteBreakpointRelative removes a module-relative breakpoint.
func (c *Controller) DeleteBreakpointRelative(addr debugmodel.RelativeAddress) error {
	c.breakpoints.RemoveRelative(addr)
	c.bus.Post(event.Event{Kind: event.RelativeBreakpointRemoved, ModuleName: addr.Module, ModuleOffset: addr.Offset})
	return c.reconcileBreakpointsIfConnected()
}

// DeleteBreakpointAbsolute removes whatever breakpoint currently
// resolves to the given absolute address.
func (c *Controller) DeleteBreakpointAbsolute(addr uint64) error {
	c.breakpoints.RemoveAbsolute(addr, c.caches.Modules)
	c.bus.Post(event.Event{Kind: event.AbsoluteBreakpointRemoved, Address: addr})
	return c.reconcileBreakpointsIfConnected()
}

// ContainsBreakpointRelative reports whether a module-relative
// breakpoint is registered.
func (c *Controller) ContainsBreakpointRelative(addr debugmodel.RelativeAddress) bool {
	return c.breakpoints.ContainsRelative(addr)
}

// ContainsBreakpointAbsolute reports whether a breakpoint is currently
// installed at the given live address.
func (c *Controller) ContainsBreakpointAbsolute(addr uint64) bool {
	return c.breakpoints.ContainsAbsolute(addr)
}

// ListBreakpoints returns every registered breakpoint in (module,
// offset) order.
func (c *Controller) ListBreakpoints() []debugmodel.RelativeAddress {
	return c.breakpoints.List()
}

func (c *Controller) reconcileBreakpointsIfConnected() error {
	if !c.IsConnected() {
		return nil
	}
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	return c.breakpoints.ApplyAll(c.caches.Modules, adp)
}

// InvokeBackendCommand passes text through to the back end's own
// command interpreter, if any, and returns its textual response.
func (c *Controller) InvokeBackendCommand(text string) (string, error) {
	adp, err := c.adapterLocked()
	if err != nil {
		return "", err
	}
	return adp.InvokeBackendCommand(text)
}

// WriteStdin forwards text to the target's standard input.
func (c *Controller) WriteStdin(text string) error {
	adp, err := c.adapterLocked()
	if err != nil {
		return err
	}
	return adp.WriteStdin(text)
}
