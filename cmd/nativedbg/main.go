// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The nativedbg command is a minimal command-line driver for the
// debugger engine, demonstrating the same launch/breakpoint/step/inspect
// sequence as the teacher's ogler demo, against the in-process
// reference adapter rather than a remote ptrace server.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nativedbg/nativedbg/adapter"
	"github.com/nativedbg/nativedbg/adaptertype"
	"github.com/nativedbg/nativedbg/controller"
	"github.com/nativedbg/nativedbg/debugmodel"
	"github.com/nativedbg/nativedbg/event"
	"github.com/nativedbg/nativedbg/refadapter"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	types := adaptertype.New()
	types.Register(referenceType{})

	reg := controller.NewRegistry(types, log)

	root := &cobra.Command{
		Use:   "nativedbg <executable> [args...]",
		Short: "drive the native debugger engine against one target",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(reg, args[0], args[1:], log)
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// referenceType is the sole adaptertype.Type this demo registers: it
// always selects refadapter.Adapter, never validating against a real
// OS/arch pair, since this module does not implement any real back
// end (spec.md §1 non-goals).
type referenceType struct{}

func (referenceType) Name() string                      { return "reference" }
func (referenceType) IsValidFor(adaptertype.Image) bool  { return true }
func (referenceType) CanExecute(adaptertype.Image) bool  { return true }
func (referenceType) CanConnect(adaptertype.Image) bool  { return false }
func (referenceType) Create(adaptertype.Image) (adapter.Adapter, error) {
	return refadapter.New(), nil
}
func (referenceType) DefaultLaunchSettings(adaptertype.Image) map[string]string { return nil }
func (referenceType) LaunchSettings(adaptertype.Image) map[string]string       { return nil }

func runSession(reg *controller.Registry, path string, args []string, log logrus.FieldLogger) error {
	img := controller.Image{Path: path, OS: "linux", Arch: "amd64"}
	ctl := reg.GetOrCreate(img, nil)

	ctl.RegisterCallback("console", func(e event.Event) {
		switch e.Kind {
		case event.TargetStopped:
			fmt.Printf("stopped: %s at %#x\n", e.StopReason, ctl.IP())
		case event.TargetExited:
			fmt.Printf("exited: code %d\n", e.ExitCode)
		case event.StdoutMessage:
			fmt.Print(e.Stdout)
		case event.Error:
			fmt.Fprintf(os.Stderr, "error: %s\n", e.Text)
		}
	})

	cfg := ctl.Config()
	cfg.AdapterType = "reference"
	cfg.ExecutablePath = path
	cfg.CommandLineArguments = args
	ctl.SetConfig(cfg)

	if err := ctl.LaunchAndWait(); err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	rl, err := readline.New("(nativedbg) ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		if !dispatch(ctl, strings.Fields(line)) {
			break
		}
	}
	return ctl.QuitAndWait()
}

// dispatch runs one REPL command and reports whether the loop should
// continue. "go" is deliberately non-blocking (ctl.Go, not
// ctl.GoAndWait): the REPL is single-threaded, so a blocking go would
// make "pause" unreachable while the target runs. step/next/finish
// stay on their AndWait forms since they are expected to return
// promptly and the REPL output reads better synchronous.
func dispatch(ctl *controller.Controller, fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "quit", "exit":
		return false
	case "go", "c", "continue":
		if _, err := ctl.Go(); err != nil {
			fmt.Println(err)
		}
	case "step", "si":
		report(ctl.StepIntoAndWait())
	case "next", "over":
		report(ctl.StepOverAndWait())
	case "finish", "ret":
		report(ctl.StepReturnAndWait())
	case "break", "b":
		if len(fields) < 2 {
			fmt.Println("usage: break <addr>")
			return true
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
		if err != nil {
			fmt.Println(err)
			return true
		}
		if err := ctl.AddBreakpointAbsolute(addr); err != nil {
			fmt.Println(err)
		}
	case "regs":
		regs, err := ctl.Registers()
		if err != nil {
			fmt.Println(err)
			return true
		}
		for name, r := range regs {
			fmt.Printf("%-8s %#016x\n", name, r.Value)
		}
	case "freeze", "thaw":
		if len(fields) < 2 {
			fmt.Printf("usage: %s <tid>\n", fields[0])
			return true
		}
		tid, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Println(err)
			return true
		}
		if fields[0] == "freeze" {
			err = ctl.SuspendThread(tid)
		} else {
			err = ctl.ResumeThread(tid)
		}
		if err != nil {
			fmt.Println(err)
		}
	case "pause":
		if err := ctl.PauseAndWait(); err != nil {
			fmt.Println(err)
		}
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return true
}

func report(reason debugmodel.StopReason, err error) {
	if err != nil {
		fmt.Println(err)
	}
}
