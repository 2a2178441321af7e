// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package lockdown

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/muxtransport"
	"github.com/joseml/devicetunnel/internal/plistcodec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeReply frames v as a lockdown reply on w, for reply keys (Port,
// Value) that LockdownRequest has no field for.
func writeReply(w io.Writer, v any) error {
	payload, err := plistcodec.EncodeXML(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err = w.Write(buf)
	return err
}

// pipeClient wires a lockdown Client to one end of an in-process net.Pipe,
// with the peer end available for the test to script replies on.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return New(muxtransport.NewFromConn(client, nil), nil), server
}

func TestStartSessionSendsIdentityAndDiscardsReply(t *testing.T) {
	c, server := pipeClient(t)

	done := make(chan struct{})
	var gotLabel, gotHostID, gotBUID string
	go func() {
		defer close(done)
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		gotLabel = req.Label
		if req.HostID != nil {
			gotHostID = *req.HostID
		}
		if req.SystemBUID != nil {
			gotBUID = *req.SystemBUID
		}
		_ = peer.SendLockdownRequest(muxtransport.NewLockdownRequest("").WithLabel("ok"))
	}()

	pair := model.PairRecord{SystemBUID: "buid-1", HostID: "host-1"}
	require.NoError(t, c.StartSession(pair))
	<-done

	assert.Equal(t, "client", gotLabel)
	assert.Equal(t, "HOST-1", gotHostID)
	assert.Equal(t, "buid-1", gotBUID)
}

func TestStartServiceReturnsPort(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		_ = writeReply(server, map[string]any{"Port": int64(62078)})
	}()

	port, err := c.StartService(CoreDeviceProxyService)
	require.NoError(t, err)
	assert.Equal(t, uint16(62078), port)
}

func TestStartServiceMissingPortIsParseError(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		_ = peer.SendLockdownRequest(muxtransport.NewLockdownRequest(""))
	}()

	_, err := c.StartService(CoreDeviceProxyService)
	require.Error(t, err)
}

func TestGetValueReturnsRawValue(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		_ = writeReply(server, map[string]any{"Value": true})
	}()

	value, err := c.GetValue(AmfiDomain, DeveloperModeKey)
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestEnsureDeveloperModeEnabledRejectsFalse(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		_ = writeReply(server, map[string]any{"Value": false})
	}()

	err := c.EnsureDeveloperModeEnabled()
	require.Error(t, err)
}

func TestRevealDeveloperModeSendsBareActionRequest(t *testing.T) {
	c, server := pipeClient(t)

	done := make(chan struct{})
	var gotAction *int
	go func() {
		defer close(done)
		peer := muxtransport.NewFromConn(server, nil)
		var req muxtransport.LockdownRequest
		_ = peer.RecvLockdown(&req)
		gotAction = req.Action
	}()

	require.NoError(t, c.RevealDeveloperMode())
	<-done

	require.NotNil(t, gotAction)
	assert.Equal(t, 0, *gotAction)
}
