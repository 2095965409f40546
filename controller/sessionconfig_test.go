// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nativedbg/nativedbg/config"
)

func TestSessionConfigSaveLoadRoundTrip(t *testing.T) {
	store := config.NewMemStore()
	cfg := SessionConfig{
		AdapterType:             "reference",
		ExecutablePath:          "/bin/true",
		WorkingDirectory:        "/tmp",
		CommandLineArguments:    []string{"-x", "hello world"},
		RemoteHost:              "localhost",
		RemotePort:              31337,
		PIDAttach:               0,
		InputFile:               "",
		RequestTerminalEmulator: true,
	}
	cfg.Save(store)

	got := LoadSessionConfig(store)
	require.Equal(t, cfg, got)
}

func TestSplitArgsEmpty(t *testing.T) {
	require.Nil(t, splitArgs(""))
	require.Equal(t, "", joinArgs(nil))
}
