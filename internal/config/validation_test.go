// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package config

import "testing"

func TestValidateMuxAddrAcceptsHostPort(t *testing.T) {
	// Note: this only exercises the passing path. Invalid input calls
	// os.Exit(2), which isn't safely testable in-process.
	validateMuxAddr("127.0.0.1:27015")
}

func TestValidateLogLevelAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"} {
		validateLogLevel(level)
	}
}

func TestValidateWintunNameAcceptsNonEmpty(t *testing.T) {
	validateWintunName("devicetunnel0")
}
