// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package cdp speaks the CoreDeviceProxy handshake envelope: a magic prefix,
// a big-endian 16-bit length, and a JSON body. The handshake is the only
// framing CDP needs; once it completes the stream carries raw IPv6 packets
// with no further envelope (see internal/tunio).
package cdp

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/support"
)

// magic prefixes every CDP handshake envelope, request and reply alike.
const magic = "CDTunnel"

// requestMTU is the MTU advertised in the handshake request. The device
// replies with its own MTU, which may differ and is what the tunnel
// actually honors.
const requestMTU = 16000

type handshakeRequest struct {
	Type string `json:"type"`
	MTU  int    `json:"mtu"`
}

// Handshake writes the clientHandshakeRequest envelope to rw and parses the
// device's reply into a CdpHandshakeReply. Any reply whose first 8 bytes are
// not "CDTunnel" is rejected as fatal.
func Handshake(rw io.ReadWriter) (model.CdpHandshakeReply, error) {
	if err := writeEnvelope(rw, handshakeRequest{Type: "clientHandshakeRequest", MTU: requestMTU}); err != nil {
		return model.CdpHandshakeReply{}, err
	}

	body, err := readEnvelope(rw)
	if err != nil {
		return model.CdpHandshakeReply{}, err
	}

	var reply model.CdpHandshakeReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.CdpHandshakeReply{}, support.Wrap(support.ErrPlist, "decode CDP handshake reply", err)
	}
	return reply, nil
}

func writeEnvelope(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return support.Wrap(support.ErrPlist, "encode CDP handshake request", err)
	}

	bodyLen, err := support.ToUint16Size(len(body))
	if err != nil {
		return err
	}

	buf := make([]byte, len(magic)+2+len(body))
	copy(buf, magic)
	binary.BigEndian.PutUint16(buf[len(magic):], bodyLen)
	copy(buf[len(magic)+2:], body)

	if _, err := w.Write(buf); err != nil {
		return support.Wrap(support.ErrMuxdIO, "write CDP handshake envelope", err)
	}
	return nil
}

func readEnvelope(r io.Reader) ([]byte, error) {
	prefix := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, support.Wrap(support.ErrMuxdIO, "read CDP handshake envelope prefix", err)
	}
	if string(prefix[:len(magic)]) != magic {
		return nil, support.Wrap(support.ErrParse, "CDP reply missing CDTunnel magic", nil)
	}

	bodyLen := binary.BigEndian.Uint16(prefix[len(magic):])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, support.Wrap(support.ErrMuxdIO, "read CDP handshake envelope body", err)
	}
	return body, nil
}
