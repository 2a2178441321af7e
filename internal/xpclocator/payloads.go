// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package xpclocator

// These DATA frame payloads are the RemoteXPC "root channel open",
// "continue", and "reply channel open" blobs the device expects verbatim
// during the scripted handshake. They are opaque wire bytes, not a format
// this client encodes or decodes; ground truth for the exact bytes.
var (
	rootChannelOpenPayload = []byte{
		0x92, 0x0b, 0xb0, 0x29, 0x01, 0x00, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x42, 0x37, 0x13, 0x42, 0x05, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x00, 0x00,
		0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	rootChannelContinuePayload = []byte{
		0x92, 0x0b, 0xb0, 0x29, 0x01, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	replyChannelOpenPayload = []byte{
		0x92, 0x0b, 0xb0, 0x29, 0x01, 0x00, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)
