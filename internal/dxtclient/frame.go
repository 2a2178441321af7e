// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package dxtclient

import (
	"encoding/binary"
	"io"

	"github.com/joseml/devicetunnel/internal/support"
)

// dxtHeaderLen is the fixed DTX message header size. Bytes 12..16 hold the
// little-endian u32 payload length, per the wire contract this client
// relies on; every other field is reconstructed protocol structure (see
// DESIGN.md) rather than a literal port of unavailable source.
const dxtHeaderLen = 32

// rootChannelCode addresses DTX's always-present channel 0, used for the
// handshake and for opening named service channels.
const rootChannelCode = 0

// dxtMagic is the DTXMessageHeader magic value.
const dxtMagic = 0x1F3D5B79

type dxtHeader struct {
	Magic             uint32
	HeaderLength      uint32
	FragmentID        uint16
	FragmentCount     uint16
	PayloadLength     uint32
	MessageIdentifier uint32
	ConversationIndex uint32
	ChannelCode       int32
	ExpectsReply      uint32
}

func (h dxtHeader) encode() []byte {
	buf := make([]byte, dxtHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.HeaderLength)
	binary.LittleEndian.PutUint16(buf[8:10], h.FragmentID)
	binary.LittleEndian.PutUint16(buf[10:12], h.FragmentCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.PayloadLength)
	binary.LittleEndian.PutUint32(buf[16:20], h.MessageIdentifier)
	binary.LittleEndian.PutUint32(buf[20:24], h.ConversationIndex)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.ChannelCode))
	binary.LittleEndian.PutUint32(buf[28:32], h.ExpectsReply)
	return buf
}

// buildFrame frames payload behind a header addressed to channelCode,
// expecting a reply, at the given message identifier.
func buildFrame(messageIdentifier uint32, channelCode int32, payload []byte) []byte {
	h := dxtHeader{
		Magic:             dxtMagic,
		HeaderLength:      dxtHeaderLen,
		FragmentID:        0,
		FragmentCount:     1,
		PayloadLength:     uint32(len(payload)),
		MessageIdentifier: messageIdentifier,
		ConversationIndex: 0,
		ChannelCode:       channelCode,
		ExpectsReply:      1,
	}
	return append(h.encode(), payload...)
}

// receiveFrame reads exactly one DXT frame and discards it: the reply is
// acknowledged but not parsed beyond length framing, per the protocol's own
// contract for these three operations.
func receiveFrame(r io.Reader) error {
	header := make([]byte, dxtHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return support.Wrap(support.ErrDxtIO, "read DXT header", err)
	}

	payloadLen := binary.LittleEndian.Uint32(header[12:16])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return support.Wrap(support.ErrDxtIO, "read DXT payload", err)
	}
	return nil
}
