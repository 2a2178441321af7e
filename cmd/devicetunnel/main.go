// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package main

// Command devicetunnel provides a thin interactive shell over the device
// tunnel session: connect, reveal-developer-mode, simulate-location, exit.
// Command parsing and OS-level adapter configuration live here by design;
// internal/session and internal/tunio know nothing about either.

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/joseml/devicetunnel/internal/config"
	"github.com/joseml/devicetunnel/internal/session"
	"github.com/joseml/devicetunnel/internal/support"
	"github.com/joseml/devicetunnel/internal/tunio"
	"github.com/sirupsen/logrus"
)

var (
	defaultMuxAddr = "" // set via ldflags during build
	version        = "dev"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v" || os.Args[1] == "version") {
		fmt.Printf("devicetunnel %s\n", version)
		os.Exit(0)
	}

	cfg := parseConfigOrExit()
	log := newLogger(cfg.LogLevel)

	factory := &tunio.WireguardAdapterFactory{
		Configurator: newSiblingProcessConfigurator(log),
		Log:          log,
	}
	dev := session.New(cfg.MuxAddr, cfg.DeviceSerial, cfg.WintunName, factory, nil, log)

	runShell(dev, os.Stdin, os.Stdout)
}

func parseConfigOrExit() *config.Config {
	config.SetDefaultMuxAddr(defaultMuxAddr)
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		support.HandleFatal(err)
	}
	config.Validate(cfg)
	return cfg
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
	return logrus.NewEntry(log)
}

// shell runs the line-oriented REPL. It owns a termination flag flipped by
// the background tunnel watcher; once flipped, no further command dispatch
// happens and the process exits non-zero, per the "session is dead" contract.
type shell struct {
	dev       *session.Device
	out       *bufio.Writer
	connected bool
	dead      int32
}

func runShell(dev *session.Device, in *os.File, out *os.File) {
	s := &shell{dev: dev, out: bufio.NewWriter(out)}
	defer s.out.Flush()

	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		if atomic.LoadInt32(&s.dead) != 0 {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			s.prompt()
			continue
		}
		if s.dispatch(line) {
			return
		}
		s.prompt()
	}
}

func (s *shell) prompt() {
	fmt.Fprint(s.out, "> ")
	s.out.Flush()
}

// dispatch runs one command line and reports whether the shell should exit.
func (s *shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]

	switch cmd {
	case "exit", "quit":
		if s.connected {
			s.dev.Terminate()
		}
		return true

	case "connect":
		ctx := context.Background()
		completion, err := s.dev.Connect(ctx)
		if err != nil {
			fmt.Fprintln(s.out, "❌", err)
			return false
		}
		s.connected = true
		s.watch(completion)
		fmt.Fprintln(s.out, "Connected")

	case "reveal-developer-mode":
		if err := s.dev.RevealDeveloperMode(context.Background()); err != nil {
			fmt.Fprintln(s.out, "❌", err)
			return false
		}
		fmt.Fprintln(s.out, "Operation completed")

	case "simulate-location":
		lat, lng, err := parseLatLng(fields[1:])
		if err != nil {
			fmt.Fprintln(s.out, "❌", err)
			return false
		}
		if err := s.dev.SimulateLocation(context.Background(), lat, lng); err != nil {
			fmt.Fprintln(s.out, "❌", err)
			return false
		}
		fmt.Fprintln(s.out, "Operation completed")

	default:
		fmt.Fprintf(s.out, "❌ unknown command %q\n", cmd)
	}
	return false
}

// watch observes the tunnel's completion channel in the background. A
// caller-initiated Terminate (exit/quit) reports ReasonTerminated and is not
// fatal; anything else means the tunnel died on its own and the shell must
// exit, matching the "any fatal tunnel task kills the session" contract.
func (s *shell) watch(completion <-chan tunio.Outcome) {
	go func() {
		outcome := <-completion
		if outcome.Reason == tunio.ReasonTerminated {
			return
		}
		fmt.Fprintln(s.out, "❌", outcome.Err)
		s.out.Flush()
		atomic.StoreInt32(&s.dead, 1)
		os.Exit(1)
	}()
}

func parseLatLng(args []string) (lat, lng float64, err error) {
	fs := flag.NewFlagSet("simulate-location", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	latFlag := fs.Float64("lat", 0, "latitude")
	lngFlag := fs.Float64("lng", 0, "longitude")
	if err := fs.Parse(args); err != nil {
		return 0, 0, err
	}
	return *latFlag, *lngFlag, nil
}

// newSiblingProcessConfigurator shells out to a "devicetunnel-netcfg" binary
// located next to the running executable, passing the interface name,
// address, prefix length, and MTU as positional arguments. OS-level adapter
// configuration is platform-specific shell work outside this module's core;
// this is the seam the session layer expects to be filled.
func newSiblingProcessConfigurator(log *logrus.Entry) tunio.NetworkConfigurator {
	exe, err := os.Executable()
	if err != nil {
		log.WithError(err).Warn("could not resolve executable path; network configuration disabled")
		return nil
	}
	helper := filepath.Join(filepath.Dir(exe), siblingHelperName())
	if _, err := os.Stat(helper); err != nil {
		log.WithField("path", helper).Debug("no network-config helper found; adapter will be left unconfigured")
		return nil
	}
	return &siblingProcessConfigurator{path: helper, log: log}
}

func siblingHelperName() string {
	if strings.EqualFold(filepath.Ext(os.Args[0]), ".exe") || os.Getenv("OS") == "Windows_NT" {
		return "devicetunnel-netcfg.exe"
	}
	return "devicetunnel-netcfg"
}

type siblingProcessConfigurator struct {
	path string
	log  *logrus.Entry
}

func (c *siblingProcessConfigurator) Configure(ctx context.Context, ifName, address string, prefixLen, mtu int) error {
	cmd := exec.CommandContext(ctx, c.path, ifName, address, strconv.Itoa(prefixLen), strconv.Itoa(mtu))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return support.Wrap(support.ErrDxtIO, "network-config helper: "+string(output), err)
	}
	c.log.WithField("adapter", ifName).Debug("network-config helper completed")
	return nil
}
