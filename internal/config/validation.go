// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate ensures CLI configuration is consistent. It exits the process on
// fatal errors, mirroring the single "❌ message" + exit-2 shape this client
// was adapted from.
func Validate(cfg *Config) {
	validateMuxAddr(cfg.MuxAddr)
	validateLogLevel(cfg.LogLevel)
	validateWintunName(cfg.WintunName)
}

func validateMuxAddr(addr string) {
	if addr == "" {
		fmt.Println("❌ empty --mux-addr")
		fmt.Println("   Expected format host:port, e.g. 127.0.0.1:27015")
		os.Exit(2)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		fmt.Println("❌ invalid --mux-addr")
		fmt.Println("   Expected format host:port, e.g. 127.0.0.1:27015")
		os.Exit(2)
	}
}

func validateLogLevel(level string) {
	if _, err := logrus.ParseLevel(level); err != nil {
		fmt.Printf("❌ invalid --log-level: %s\n", level)
		fmt.Println("   Supported: trace, debug, info, warn, error, fatal, panic")
		os.Exit(2)
	}
}

func validateWintunName(name string) {
	if strings.TrimSpace(name) == "" {
		fmt.Println("❌ empty --wintun")
		fmt.Println("   Provide a non-empty TUN adapter name")
		os.Exit(2)
	}
}
