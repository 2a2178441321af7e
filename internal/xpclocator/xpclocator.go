// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package xpclocator speaks just enough RemoteXPC-over-HTTP/2 to recover
// the DTServiceHub TCP port: a scripted, one-shot sequence of connection
// preface, SETTINGS, WINDOW_UPDATE, HEADERS, and DATA frames, followed by a
// substring scan of the device's reply. A full RemoteXPC decoder is
// explicitly out of scope; see PortLocator below for where one would plug
// in if device-version drift ever breaks the scan.
package xpclocator

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"

	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
)

// PortLocator isolates the substring-scraping strategy behind an interface,
// per the design note that this scan is fragile across device versions and
// should leave room for a full RemoteXPC decoder later.
type PortLocator interface {
	Locate(ctx context.Context, serverAddress string, rsdPort int) (uint16, error)
}

// Scripted is the one-shot HTTP/2 handshake described in the package doc.
// It implements PortLocator.
type Scripted struct {
	Log *logrus.Entry
}

const dtservicehubService = "com.apple.instruments.dtservicehub"

// frameSizeThreshold bounds "the large reply frame": the first payload
// larger than this is kept; payloads of this size or smaller are drained and
// discarded while scanning.
const frameSizeThreshold = 8000

// Locate dials a fresh TCP connection to [serverAddress]:rsdPort, runs the
// scripted handshake, and scrapes the DTServiceHub port out of the first
// large response frame.
func (s *Scripted) Locate(ctx context.Context, serverAddress string, rsdPort int) (uint16, error) {
	log := s.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(serverAddress, strconv.Itoa(rsdPort)))
	if err != nil {
		return 0, support.Wrap(support.ErrMuxdIO, "dial xpc locator", err)
	}
	defer conn.Close()

	if err := sendFrames(conn); err != nil {
		return 0, err
	}

	frame, err := receiveLargeFrame(conn)
	if err != nil {
		return 0, err
	}

	port, err := scrapePort(frame)
	if err != nil {
		return 0, err
	}
	log.WithField("port", port).Debug("xpc locator recovered dtservicehub port")
	return port, nil
}

func sendFrames(w io.Writer) error {
	if _, err := w.Write([]byte(http2.ClientPreface)); err != nil {
		return support.Wrap(support.ErrHandshake, "write http2 preface", err)
	}

	settings := frameHeader(12, http2.FrameSettings, 0, 0)
	settings = append(settings, settingsPayload()...)
	if _, err := w.Write(settings); err != nil {
		return support.Wrap(support.ErrHandshake, "write settings frame", err)
	}

	windowUpdate := frameHeader(4, http2.FrameWindowUpdate, 0, 0)
	windowUpdate = append(windowUpdate, 0x00, 0x0F, 0x00, 0x01)
	if _, err := w.Write(windowUpdate); err != nil {
		return support.Wrap(support.ErrHandshake, "write window_update frame", err)
	}

	rootHeaders := frameHeader(0, http2.FrameHeaders, http2.FlagHeadersEndHeaders, 1)
	if _, err := w.Write(rootHeaders); err != nil {
		return support.Wrap(support.ErrHandshake, "write root HEADERS frame", err)
	}

	if err := writeDataFrame(w, 1, rootChannelOpenPayload); err != nil {
		return err
	}
	if err := writeDataFrame(w, 1, rootChannelContinuePayload); err != nil {
		return err
	}

	replyHeaders := frameHeader(0, http2.FrameHeaders, http2.FlagHeadersEndHeaders, 3)
	if _, err := w.Write(replyHeaders); err != nil {
		return support.Wrap(support.ErrHandshake, "write reply HEADERS frame", err)
	}

	if err := writeDataFrame(w, 3, replyChannelOpenPayload); err != nil {
		return err
	}
	return nil
}

func writeDataFrame(w io.Writer, streamID uint32, payload []byte) error {
	frame := frameHeader(uint32(len(payload)), http2.FrameData, 0, streamID)
	frame = append(frame, payload...)
	if _, err := w.Write(frame); err != nil {
		return support.Wrap(support.ErrHandshake, "write DATA frame", err)
	}
	return nil
}

// frameHeader builds the 9-byte HTTP/2 frame header: 24-bit big-endian
// length, 8-bit type, 8-bit flags, 31-bit stream id (top bit reserved, left
// clear).
func frameHeader(length uint32, typ http2.FrameType, flags http2.Flags, streamID uint32) []byte {
	h := make([]byte, 9)
	h[0] = byte(length >> 16)
	h[1] = byte(length >> 8)
	h[2] = byte(length)
	h[3] = byte(typ)
	h[4] = byte(flags)
	binary.BigEndian.PutUint32(h[5:9], streamID&0x7fffffff)
	return h
}

func settingsPayload() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:2], uint16(http2.SettingMaxConcurrentStreams))
	binary.BigEndian.PutUint32(buf[2:6], 100)
	binary.BigEndian.PutUint16(buf[6:8], uint16(http2.SettingInitialWindowSize))
	binary.BigEndian.PutUint32(buf[8:12], 0x00100000)
	return buf
}

// receiveLargeFrame reads HTTP/2 frames until one payload exceeds
// frameSizeThreshold bytes, and returns that payload. A reply that never
// produces such a frame blocks forever by design (see package tests for the
// fixture that avoids the hang in CI).
func receiveLargeFrame(r io.Reader) ([]byte, error) {
	for {
		var header [9]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, support.Wrap(support.ErrHandshake, "read http2 frame header", err)
		}
		length := uint32(header[0])<<16 | uint32(header[1])<<8 | uint32(header[2])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, support.Wrap(support.ErrHandshake, "read http2 frame payload", err)
		}

		if length > frameSizeThreshold {
			return payload, nil
		}
	}
}

// scrapePort finds "com.apple.instruments.dtservicehub", then "Port" after
// it, and reads the five ASCII decimal digits at offset match+16 past
// "Port". This reproduces the original implementation's key/value-proximity
// scan rather than decoding the full RemoteXPC dictionary.
func scrapePort(frame []byte) (uint16, error) {
	serviceIdx := indexOf(frame, []byte(dtservicehubService))
	if serviceIdx < 0 {
		return 0, support.Wrap(support.ErrParse, "dtservicehub substring not found", nil)
	}

	tail := frame[serviceIdx:]
	portIdx := indexOf(tail, []byte("Port"))
	if portIdx < 0 {
		return 0, support.Wrap(support.ErrParse, "Port substring not found", nil)
	}

	start := portIdx + 16
	if start+5 > len(tail) {
		return 0, support.Wrap(support.ErrParse, "truncated port digits", nil)
	}
	digits := tail[start : start+5]

	n, err := strconv.ParseUint(string(digits), 10, 16)
	if err != nil {
		return 0, support.Wrap(support.ErrParse, "parse port digits", err)
	}
	return uint16(n), nil
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}
