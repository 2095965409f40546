// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refadapter

// breakpointInstr is the byte pattern AddBreakpoint writes into the
// synthetic memory map and RemoveBreakpoint restores over, standing
// in for the x86-64 INT3 opcode a real software-breakpoint adapter
// would patch in. Adapted from the teacher's arch.AMD64 architecture
// table (arch/arch.go), trimmed to the one field this in-memory
// back end actually needs.
var breakpointInstr = []byte{0xCC}
