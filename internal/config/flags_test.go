// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if cfg.MuxAddr != defaultMuxAddr {
		t.Errorf("MuxAddr = %q, want %q", cfg.MuxAddr, defaultMuxAddr)
	}
	if cfg.WintunName != defaultWintunName {
		t.Errorf("WintunName = %q, want %q", cfg.WintunName, defaultWintunName)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.MuxAddrFlagProvided {
		t.Error("MuxAddrFlagProvided should be false when no flags were passed")
	}
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, err := Parse([]string{"-mux-addr", "127.0.0.1:9999", "-device-id", "abc-123", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if cfg.MuxAddr != "127.0.0.1:9999" {
		t.Errorf("MuxAddr = %q, want %q", cfg.MuxAddr, "127.0.0.1:9999")
	}
	if cfg.DeviceSerial != "abc-123" {
		t.Errorf("DeviceSerial = %q, want %q", cfg.DeviceSerial, "abc-123")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.MuxAddrFlagProvided {
		t.Error("MuxAddrFlagProvided should be true when -mux-addr was passed")
	}
}

func TestParseEnvFallsBackWhenFlagAbsent(t *testing.T) {
	t.Setenv("DEVICETUNNEL_MUX_ADDR", "127.0.0.1:5555")
	t.Setenv("DEVICETUNNEL_WINTUN", "env-tun0")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if cfg.MuxAddr != "127.0.0.1:5555" {
		t.Errorf("MuxAddr = %q, want env override %q", cfg.MuxAddr, "127.0.0.1:5555")
	}
	if cfg.WintunName != "env-tun0" {
		t.Errorf("WintunName = %q, want env override %q", cfg.WintunName, "env-tun0")
	}
}

func TestParseFlagTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("DEVICETUNNEL_MUX_ADDR", "127.0.0.1:5555")

	cfg, err := Parse([]string{"-mux-addr", "127.0.0.1:7777"})
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if cfg.MuxAddr != "127.0.0.1:7777" {
		t.Errorf("MuxAddr = %q, want flag override %q", cfg.MuxAddr, "127.0.0.1:7777")
	}
}

func TestSetDefaultMuxAddr(t *testing.T) {
	original := overrideMuxAddr
	defer func() { overrideMuxAddr = original }()

	SetDefaultMuxAddr("127.0.0.1:1234")
	if overrideMuxAddr != "127.0.0.1:1234" {
		t.Errorf("SetDefaultMuxAddr() did not set overrideMuxAddr")
	}

	SetDefaultMuxAddr("")
	if overrideMuxAddr != "127.0.0.1:1234" {
		t.Error("SetDefaultMuxAddr() should not set empty string")
	}

	SetDefaultMuxAddr("   ")
	if overrideMuxAddr != "127.0.0.1:1234" {
		t.Error("SetDefaultMuxAddr() should not set whitespace-only string")
	}
}
