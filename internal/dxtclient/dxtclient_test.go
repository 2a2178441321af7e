// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package dxtclient

import (
	"context"
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLengthInvariant(t *testing.T) {
	payload := []byte("hello dxt")
	frame := buildFrame(1, rootChannelCode, payload)

	payloadLen := binary.LittleEndian.Uint32(frame[12:16])
	assert.Equal(t, uint32(len(payload)), payloadLen)
	assert.Equal(t, dxtHeaderLen+int(payloadLen), len(frame))
}

func TestLocationPayloadRoundTrip(t *testing.T) {
	lat, lng := 19.25010, -99.57864
	payload := locationPayload(lat, lng)

	gotLat := math.Float64frombits(binary.LittleEndian.Uint64(payload[latOffset : latOffset+8]))
	gotLng := math.Float64frombits(binary.LittleEndian.Uint64(payload[lngOffset : lngOffset+8]))
	assert.Equal(t, lat, gotLat)
	assert.Equal(t, lng, gotLng)
}

// echoReplyServer accepts one connection and, for every frame it reads,
// writes back a zero-payload DXT frame of its own.
func echoReplyServer(t *testing.T, ln net.Listener) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(5 * time.Second))

		for {
			header := make([]byte, dxtHeaderLen)
			if _, err := readFull(conn, header); err != nil {
				return
			}
			payloadLen := binary.LittleEndian.Uint32(header[12:16])
			payload := make([]byte, payloadLen)
			if _, err := readFull(conn, payload); err != nil {
				return
			}
			reply := buildFrame(1, rootChannelCode, nil)
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestHandshakeStartChannelSimulateLocation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	echoReplyServer(t, ln)

	addr := ln.Addr().(*net.TCPAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client, err := Dial(ctx, "127.0.0.1", uint16(addr.Port), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Handshake())
	require.NoError(t, client.StartChannel(ctx))
	require.NoError(t, client.SimulateLocation(19.25010, -99.57864))
}

func TestStartChannelRejectsCancelledContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	echoReplyServer(t, ln)

	addr := ln.Addr().(*net.TCPAddr)
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dialCancel()

	client, err := Dial(dialCtx, "127.0.0.1", uint16(addr.Port), nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, client.StartChannel(ctx))
}
