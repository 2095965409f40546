// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
)

// onAdapterEvent translates an asynchronous AdapterEvent into a bus
// Event, for the events a back end can raise outside of a direct call
// returning: module load/unload while running, stdout passthrough,
// and process exit noticed between calls. A synchronous stop, reported
// instead as the return value of Go/Step*, goes through handleStop
// directly and never through here.
func (c *Controller) onAdapterEvent(ae adapter.AdapterEvent) {
	switch ae.Kind {
	case adapter.EventStopped:
		c.handleStop(ae.StopReason)
	case adapter.EventProcessExited:
		c.handleStop(debugmodel.ProcessExited)
	case adapter.EventModuleLoaded:
		c.caches.Modules.MarkDirty()
		c.bus.Post(event.Event{
			Kind:       event.ModuleLoaded,
			ModuleName: ae.Module.Name,
			Address:    ae.Module.Base,
		})
	case adapter.EventModuleUnloaded:
		c.caches.Modules.MarkDirty()
		c.bus.Post(event.Event{
			Kind:       event.ModuleUnloaded,
			ModuleName: ae.Module.Name,
		})
	case adapter.EventThreadCreated, adapter.EventThreadExited:
		c.caches.Threads.MarkDirty()
	case adapter.EventStdout:
		c.bus.Post(event.Event{Kind: event.StdoutMessage, Stdout: ae.Text})
	}
}
