// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package support

import (
	"errors"
	"io"
	"math"
	"net"
	"strings"
)

// IsBenignCopyError returns true for normal connection-close conditions, to
// avoid noisy logs when a splice direction ends because the peer hung up.
func IsBenignCopyError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

// ToUint16Size narrows an int to uint16, failing rather than wrapping when
// the value is out of range. Used for the CDP handshake envelope's body
// length, which travels the wire as a 16-bit field.
func ToUint16Size(n int) (uint16, error) {
	return toUintSize[uint16](n, math.MaxUint16, "uint16")
}

// ToUint32Size narrows an int to uint32, failing rather than wrapping when
// the value is out of range.
func ToUint32Size(n int) (uint32, error) {
	return toUintSize[uint32](n, math.MaxUint32, "uint32")
}

// toUintSize is a generic range-checked narrowing helper shared by every
// ToUintNSize wrapper above.
func toUintSize[T ~uint16 | ~uint32](n int, limit int64, label string) (T, error) {
	if n < 0 || int64(n) > limit {
		return 0, Wrap(ErrParse, "value exceeds "+label+" range", nil)
	}
	return T(n), nil
}
