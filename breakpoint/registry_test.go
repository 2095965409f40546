// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nativedbg/nativedbg/debugmodel"
)

type fakeLookup struct {
	base    map[string]uint64
	loaded  map[string]bool
}

func (f fakeLookup) ModuleBase(name string) (uint64, bool) {
	b, ok := f.loaded[name]
	if !ok || !b {
		return 0, false
	}
	return f.base[name], true
}

func (f fakeLookup) ModuleContaining(addr uint64) (string, uint64, bool) {
	for name, base := range f.base {
		if !f.loaded[name] {
			continue
		}
		if addr >= base && addr < base+0x1000 {
			return name, base, true
		}
	}
	return "", 0, false
}

type fakeInstaller struct {
	added   []uint64
	removed []uint64
}

func (f *fakeInstaller) AddBreakpoint(addr uint64) error {
	f.added = append(f.added, addr)
	return nil
}

func (f *fakeInstaller) RemoveBreakpoint(addr uint64) error {
	f.removed = append(f.removed, addr)
	return nil
}

func TestAddRelativeIdempotent(t *testing.T) {
	r := New()
	addr := debugmodel.RelativeAddress{Module: "a.out", Offset: 0x10}
	r.AddRelative(addr)
	r.AddRelative(addr)
	require.Len(t, r.List(), 1)
}

func TestApplyAllInstallsAndRemoves(t *testing.T) {
	r := New()
	lookup := fakeLookup{base: map[string]uint64{"a.out": 0x1000}, loaded: map[string]bool{"a.out": true}}
	r.AddRelative(debugmodel.RelativeAddress{Module: "a.out", Offset: 0x10})

	inst := &fakeInstaller{}
	require.NoError(t, r.ApplyAll(lookup, inst))
	require.Equal(t, []uint64{0x1010}, inst.added)
	require.True(t, r.ContainsAbsolute(0x1010))

	// Unloading the module should cause the next ApplyAll to remove it.
	lookup.loaded["a.out"] = false
	require.NoError(t, r.ApplyAll(lookup, inst))
	require.Equal(t, []uint64{0x1010}, inst.removed)
	require.False(t, r.ContainsAbsolute(0x1010))
}

func TestAddAbsoluteResolvesToRelative(t *testing.T) {
	r := New()
	lookup := fakeLookup{base: map[string]uint64{"a.out": 0x1000}, loaded: map[string]bool{"a.out": true}}
	rel := r.AddAbsolute(0x1010, lookup)
	require.Equal(t, debugmodel.RelativeAddress{Module: "a.out", Offset: 0x10}, rel)
	require.True(t, r.ContainsRelative(rel))
}

func TestRemoveAbsoluteUnknownModule(t *testing.T) {
	r := New()
	lookup := fakeLookup{base: map[string]uint64{}, loaded: map[string]bool{}}
	r.AddAbsolute(0x5000, lookup)
	require.True(t, r.ContainsRelative(debugmodel.RelativeAddress{Module: "", Offset: 0x5000}))
	r.RemoveAbsolute(0x5000, lookup)
	require.False(t, r.ContainsRelative(debugmodel.RelativeAddress{Module: "", Offset: 0x5000}))
}
