// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package support holds the error taxonomy shared by every protocol package
// plus small generic helpers. Errors are plain sentinel values wrapped with
// fmt.Errorf("...: %w", ...) at the call site, so callers classify failures
// with errors.Is rather than type assertions.
package support

import (
	"errors"
	"fmt"
	"os"
)

// Error taxonomy. Every protocol package wraps one of these at its failure
// points; nothing here is retried by the caller.
var (
	// ErrMuxdIO covers connect or I/O failures on the muxd control socket.
	ErrMuxdIO = errors.New("muxd io error")
	// ErrPlist covers XML plist (or CDP-handshake JSON) encode/decode failure.
	ErrPlist = errors.New("plist error")
	// ErrParse covers well-formed replies whose contents violate an expectation
	// (missing Port, missing Value, missing DeviceID, bad magic, ...).
	ErrParse = errors.New("parse error")
	// ErrSSL covers PEM parse, SNI construction, or TLS handshake failure.
	ErrSSL = errors.New("ssl error")
	// ErrMissingPairRecordField covers a pair record present but incomplete.
	ErrMissingPairRecordField = errors.New("missing pair record field")
	// ErrDeveloperModeDisabled is user-actionable, not a transport failure.
	ErrDeveloperModeDisabled = errors.New("developer mode disabled")
	// ErrHandshake is the umbrella for XPC send/receive failures.
	ErrHandshake = errors.New("handshake error")
	// ErrDxtIO covers I/O on the DTServiceHub connection.
	ErrDxtIO = errors.New("dtservicehub io error")
	// ErrFatalTunnelTermination marks a tunnel task that died from an
	// unrecoverable invariant violation rather than ordinary shutdown.
	ErrFatalTunnelTermination = errors.New("tunnel task terminated fatally")
)

// Wrap annotates err with kind so errors.Is(result, kind) succeeds while the
// original message and chain are preserved.
func Wrap(kind error, detail string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", kind, detail)
	}
	return fmt.Errorf("%w: %s: %w", kind, detail, err)
}

// HandleFatal prints a single error line and exits the process. It mirrors
// the REPL-facing error-printing shape used throughout this codebase: one
// line to the user, no stack trace, no retry.
func HandleFatal(err error) {
	fmt.Fprintln(os.Stderr, "❌", err)
	os.Exit(1)
}
