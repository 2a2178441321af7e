// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package cdp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedReply(body string) *bytes.Buffer {
	buf := new(bytes.Buffer)
	buf.WriteString(magic)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(body)))
	buf.Write(lenBuf[:])
	buf.WriteString(body)
	return buf
}

type loopback struct {
	writes bytes.Buffer
	reads  *bytes.Buffer
}

func (l *loopback) Write(p []byte) (int, error) { return l.writes.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.reads.Read(p) }

func TestHandshakeParsesReply(t *testing.T) {
	body := `{"clientParameters":{"address":"fd00::1","mtu":1420,"netmask":"ffff:ffff:ffff:ffff::"},"serverAddress":"fd00::2","serverRSDPort":58123,"type":"clientHandshakeResponse"}`
	rw := &loopback{reads: scriptedReply(body)}

	reply, err := Handshake(rw)
	require.NoError(t, err)
	assert.Equal(t, "fd00::1", reply.ClientParameters.Address)
	assert.Equal(t, 1420, reply.ClientParameters.MTU)
	assert.Equal(t, "fd00::2", reply.ServerAddress)
	assert.Equal(t, 58123, reply.ServerRSDPort)

	assert.Contains(t, rw.writes.String(), magic)
	assert.Contains(t, rw.writes.String(), `"clientHandshakeRequest"`)
	assert.Contains(t, rw.writes.String(), `"mtu":16000`)
}

func TestHandshakeRejectsMissingMagic(t *testing.T) {
	rw := &loopback{reads: bytes.NewBufferString("WRONGMAG\x00\x02{}")}
	_, err := Handshake(rw)
	require.Error(t, err)
}
