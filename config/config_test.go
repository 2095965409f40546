// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTripsStringIntBool(t *testing.T) {
	s := NewMemStore()
	s.Set(KeyExecutablePath, "/bin/true")
	v, ok := s.Get(KeyExecutablePath)
	require.True(t, ok)
	require.Equal(t, "/bin/true", v)

	s.SetInt(KeyRemotePort, 31337)
	n, ok := s.GetInt(KeyRemotePort)
	require.True(t, ok)
	require.EqualValues(t, 31337, n)

	s.SetInt(KeyPIDAttach, -42)
	n, ok = s.GetInt(KeyPIDAttach)
	require.True(t, ok)
	require.EqualValues(t, -42, n)

	s.SetBool(KeyTerminalEmulator, true)
	b, ok := s.GetBool(KeyTerminalEmulator)
	require.True(t, ok)
	require.True(t, b)
}

func TestMemStoreMissingKey(t *testing.T) {
	s := NewMemStore()
	_, ok := s.Get("nope")
	require.False(t, ok)
	_, ok = s.GetInt("nope")
	require.False(t, ok)
}

func TestDefaultSettings(t *testing.T) {
	d := DefaultSettings()
	require.True(t, d.StopAtEntryPoint)
	require.False(t, d.SafeMode)
	require.False(t, d.StopAtSystemEntryPoint)
}
