// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package plistcodec wraps howett.net/plist with the error taxonomy used
// throughout this codebase, so every plist failure classifies as
// support.ErrPlist regardless of which protocol message produced it.
package plistcodec

import (
	"bytes"

	"github.com/joseml/devicetunnel/internal/support"
	"howett.net/plist"
)

// EncodeXML serializes v as an XML property list.
func EncodeXML(v any) ([]byte, error) {
	data, err := plist.Marshal(v, plist.XMLFormat)
	if err != nil {
		return nil, support.Wrap(support.ErrPlist, "encode", err)
	}
	return data, nil
}

// DecodeXML parses an XML property list into v.
func DecodeXML(data []byte, v any) error {
	if err := plist.Unmarshal(data, v); err != nil {
		return support.Wrap(support.ErrPlist, "decode", err)
	}
	return nil
}

// DecodeXMLReader is a convenience for the common case of decoding directly
// from a freshly-read byte slice wrapped in a reader-shaped call site.
func DecodeXMLReader(data []byte, v any) error {
	return DecodeXML(bytes.TrimSpace(data), v)
}
