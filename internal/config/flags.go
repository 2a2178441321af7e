// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package config implements the layered flag/environment configuration
// surface of the device-tunnel CLI: an explicit flag takes precedence,
// falling back to an environment variable, falling back to a built-in
// default.
package config

import (
	"flag"
	"os"
	"strings"
)

// Built-in fallbacks, used when neither a flag nor an environment variable
// overrides them.
const (
	defaultMuxAddr    = "127.0.0.1:27015"
	defaultWintunName = "devicetunnel0"
	defaultLogLevel   = "info"
)

var overrideMuxAddr = defaultMuxAddr

// SetDefaultMuxAddr lets a build bake in a non-standard usbmuxd address
// (ldflags compatibility), the same way the codebase this was adapted from
// lets ldflags override its default server URL.
func SetDefaultMuxAddr(value string) {
	if strings.TrimSpace(value) != "" {
		overrideMuxAddr = value
	}
}

// Config aggregates every CLI option after parsing.
type Config struct {
	MuxAddr      string
	DeviceSerial string
	WintunName   string
	LogLevel     string

	MuxAddrFlagProvided bool
}

// Parse parses flags out of args (typically os.Args[1:]) into a Config.
// Unset flags fall back to the matching DEVICETUNNEL_* environment
// variable, then to a built-in default.
func Parse(args []string) (*Config, error) {
	cfg := &Config{
		MuxAddr:    envOrDefault("DEVICETUNNEL_MUX_ADDR", overrideMuxAddr),
		WintunName: envOrDefault("DEVICETUNNEL_WINTUN", defaultWintunName),
		LogLevel:   envOrDefault("DEVICETUNNEL_LOG_LEVEL", defaultLogLevel),
	}

	fs := flag.NewFlagSet("devicetunnel", flag.ContinueOnError)
	fs.StringVar(&cfg.MuxAddr, "mux-addr", cfg.MuxAddr, "usbmuxd control socket address (override for testing)")
	fs.StringVar(&cfg.DeviceSerial, "device-id", cfg.DeviceSerial, "pin a specific device serial number instead of the first one listed")
	fs.StringVar(&cfg.WintunName, "wintun", cfg.WintunName, "TUN adapter name requested from the adapter factory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logrus level: trace, debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "mux-addr" {
			cfg.MuxAddrFlagProvided = true
		}
	})

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
