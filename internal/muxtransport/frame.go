// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package muxtransport

import (
	"encoding/binary"
	"io"

	"github.com/joseml/devicetunnel/internal/plistcodec"
	"github.com/joseml/devicetunnel/internal/support"
)

// usbmuxVersion and usbmuxMessageType are fixed by usbmuxd's own wire
// contract; every request uses them verbatim.
const (
	usbmuxVersion     = 1
	usbmuxMessageType = 8
	muxSubHeaderLen   = 12
)

// muxRequestTag is the tag every outbound mux request carries. The
// implementation never interleaves requests on one connection, so
// correlation between request and reply is positional rather than by tag;
// this is a documented contract (see package doc), not an oversight.
const muxRequestTag = 1

// encodeMuxFrame serializes msg as an XML plist and frames it per the
// usbmuxd wire contract: u32_le(total) || u32_le(version) || u32_le(message)
// || u32_le(tag) || xml_plist. total is the sub-header-plus-payload length
// (12 + len(xml_plist)) plus 4: the length field's value is the whole frame
// length, the 4-byte length field included, so it exceeds the bytes that
// follow it by 4, a usbmuxd quirk this client reproduces exactly rather than "fixing" (see frame_test.go for the pinned
// byte layout).
func encodeMuxFrame(msg any) ([]byte, error) {
	payload, err := plistcodec.EncodeXML(msg)
	if err != nil {
		return nil, err
	}

	subHeaderPlusPayload := muxSubHeaderLen + len(payload)
	total := subHeaderPlusPayload + 4
	buf := make([]byte, 4+subHeaderPlusPayload)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], usbmuxVersion)
	binary.LittleEndian.PutUint32(buf[8:12], usbmuxMessageType)
	binary.LittleEndian.PutUint32(buf[12:16], muxRequestTag)
	copy(buf[16:], payload)
	return buf, nil
}

// decodeMuxFrame reads one framed mux reply from r and parses its plist
// payload into v. The 12-byte sub-header is discarded once read, per the
// usbmuxd reply contract this client relies on.
func decodeMuxFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return support.Wrap(support.ErrMuxdIO, "read mux length prefix", err)
	}
	total := binary.LittleEndian.Uint32(lenBuf[:])
	if total < 4 {
		return support.Wrap(support.ErrParse, "mux reply total_length < 4", nil)
	}

	body := make([]byte, total-4)
	if _, err := io.ReadFull(r, body); err != nil {
		return support.Wrap(support.ErrMuxdIO, "read mux frame body", err)
	}
	if len(body) < muxSubHeaderLen {
		return support.Wrap(support.ErrParse, "mux reply shorter than sub-header", nil)
	}

	payload := body[muxSubHeaderLen:]
	if v == nil {
		return nil
	}
	return plistcodec.DecodeXML(payload, v)
}

// encodeLockdownFrame frames msg with a big-endian 4-byte length prefix and
// no sub-header. The framing is identical before and after TLS upgrade.
func encodeLockdownFrame(msg any) ([]byte, error) {
	payload, err := plistcodec.EncodeXML(msg)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

// decodeLockdownFrame reads one big-endian length-prefixed lockdown reply
// and parses its plist payload into v.
func decodeLockdownFrame(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return support.Wrap(support.ErrMuxdIO, "read lockdown length prefix", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return support.Wrap(support.ErrMuxdIO, "read lockdown frame body", err)
	}
	if v == nil {
		return nil
	}
	return plistcodec.DecodeXML(payload, v)
}
