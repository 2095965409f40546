// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package controller

import (
	"github.com/nativedbg/nativedbg/config"
)

// SessionConfig is the launch/attach/connect configuration carried on
// DebuggerState (spec.md §3): executable path, working dir, command
// line, remote host/port, attach pid, input file, request-terminal
// flag, and the chosen adapter-type name.
type SessionConfig struct {
	AdapterType             string
	ExecutablePath          string
	WorkingDirectory        string
	CommandLineArguments    []string
	RemoteHost              string
	RemotePort              int
	PIDAttach               int
	InputFile               string
	RequestTerminalEmulator bool
}

// LoadSessionConfig reads a SessionConfig back from the persisted
// debugger.* metadata keys (spec.md §6), falling back to the zero
// value for any key that was never set.
func LoadSessionConfig(store config.Store) SessionConfig {
	var c SessionConfig
	if v, ok := store.Get(config.KeyAdapterType); ok {
		c.AdapterType = v
	}
	if v, ok := store.Get(config.KeyExecutablePath); ok {
		c.ExecutablePath = v
	}
	if v, ok := store.Get(config.KeyWorkingDirectory); ok {
		c.WorkingDirectory = v
	}
	if v, ok := store.Get(config.KeyCommandLineArgs); ok {
		c.CommandLineArguments = splitArgs(v)
	}
	if v, ok := store.Get(config.KeyRemoteHost); ok {
		c.RemoteHost = v
	}
	if v, ok := store.GetInt(config.KeyRemotePort); ok {
		c.RemotePort = int(v)
	}
	if v, ok := store.GetInt(config.KeyPIDAttach); ok {
		c.PIDAttach = int(v)
	}
	if v, ok := store.Get(config.KeyInputFile); ok {
		c.InputFile = v
	}
	if v, ok := store.GetBool(config.KeyTerminalEmulator); ok {
		c.RequestTerminalEmulator = v
	}
	return c
}

// Save persists the SessionConfig to the debugger.* metadata keys.
func (c SessionConfig) Save(store config.Store) {
	store.Set(config.KeyAdapterType, c.AdapterType)
	store.Set(config.KeyExecutablePath, c.ExecutablePath)
	store.Set(config.KeyWorkingDirectory, c.WorkingDirectory)
	store.Set(config.KeyCommandLineArgs, joinArgs(c.CommandLineArguments))
	store.Set(config.KeyRemoteHost, c.RemoteHost)
	store.SetInt(config.KeyRemotePort, int64(c.RemotePort))
	store.SetInt(config.KeyPIDAttach, int64(c.PIDAttach))
	store.Set(config.KeyInputFile, c.InputFile)
	store.SetBool(config.KeyTerminalEmulator, c.RequestTerminalEmulator)
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\x00' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += "\x00"
		}
		out += a
	}
	return out
}
