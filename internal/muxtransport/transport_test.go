// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package muxtransport

import (
	"errors"
	"net"
	"testing"

	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/support"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHtonsSwapsBytes(t *testing.T) {
	assert.Equal(t, uint16(0x3412), htons(0x1234))
	assert.Equal(t, uint16(0), htons(0))
}

// pipeTransport wires a Transport directly to one end of an in-process
// net.Pipe, with the peer end available for the test to script replies.
func pipeTransport(t *testing.T) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	tr := &Transport{conn: client, nextIO: client}
	t.Cleanup(func() { client.Close(); server.Close() })
	return tr, server
}

func TestListDevicesHappyPath(t *testing.T) {
	tr, server := pipeTransport(t)

	go func() {
		var req struct {
			MessageType string `plist:"MessageType"`
		}
		_ = decodeMuxFrame(server, &req)

		frame, _ := encodeMuxFrame(struct {
			DeviceList []struct {
				DeviceID   uint16 `plist:"DeviceID"`
				Properties struct {
					SerialNumber string `plist:"SerialNumber"`
				} `plist:"Properties"`
			} `plist:"DeviceList"`
		}{
			DeviceList: []struct {
				DeviceID   uint16 `plist:"DeviceID"`
				Properties struct {
					SerialNumber string `plist:"SerialNumber"`
				} `plist:"Properties"`
			}{
				{DeviceID: 3, Properties: struct {
					SerialNumber string `plist:"SerialNumber"`
				}{SerialNumber: "00008110-ABC"}},
			},
		})
		server.Write(frame)
	}()

	desc, err := tr.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, model.DeviceDescriptor{DeviceID: 3, SerialNumber: "00008110-ABC"}, desc)
}

func TestListDeviceBySerialFiltersMatch(t *testing.T) {
	tr, server := pipeTransport(t)

	go func() {
		var req struct {
			MessageType string `plist:"MessageType"`
		}
		_ = decodeMuxFrame(server, &req)

		frame, _ := encodeMuxFrame(struct {
			DeviceList []struct {
				DeviceID   uint16 `plist:"DeviceID"`
				Properties struct {
					SerialNumber string `plist:"SerialNumber"`
				} `plist:"Properties"`
			} `plist:"DeviceList"`
		}{
			DeviceList: []struct {
				DeviceID   uint16 `plist:"DeviceID"`
				Properties struct {
					SerialNumber string `plist:"SerialNumber"`
				} `plist:"Properties"`
			}{
				{DeviceID: 1, Properties: struct {
					SerialNumber string `plist:"SerialNumber"`
				}{SerialNumber: "first"}},
				{DeviceID: 2, Properties: struct {
					SerialNumber string `plist:"SerialNumber"`
				}{SerialNumber: "second"}},
			},
		})
		server.Write(frame)
	}()

	desc, err := tr.ListDeviceBySerial("second")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceDescriptor{DeviceID: 2, SerialNumber: "second"}, desc)
}

func TestListDeviceBySerialNoMatchIsParseError(t *testing.T) {
	tr, server := pipeTransport(t)

	go func() {
		var req struct {
			MessageType string `plist:"MessageType"`
		}
		_ = decodeMuxFrame(server, &req)
		frame, _ := encodeMuxFrame(struct {
			DeviceList []struct{} `plist:"DeviceList"`
		}{})
		server.Write(frame)
	}()

	_, err := tr.ListDeviceBySerial("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, support.ErrParse))
}

func TestConnectToPortSendsByteSwappedPort(t *testing.T) {
	tr, server := pipeTransport(t)

	done := make(chan struct{})
	var gotPort *uint16
	var gotDevice *uint16
	go func() {
		defer close(done)
		var req muxMessageData
		_ = decodeMuxFrame(server, &req)
		gotPort = req.PortNumber
		gotDevice = req.DeviceID
	}()

	require.NoError(t, tr.ConnectToPort(3, LockdownPort))
	<-done

	require.NotNil(t, gotPort)
	require.NotNil(t, gotDevice)
	assert.Equal(t, uint16(3), *gotDevice)
	assert.Equal(t, htons(LockdownPort), *gotPort)
}
