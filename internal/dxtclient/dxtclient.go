// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package dxtclient speaks the DTXConnection (DXT) binary framing used by
// the Instruments stack to drive location simulation: a fresh TCP
// connection, then three write-then-read-one-frame operations (handshake,
// start channel, simulate location). Replies are acknowledged by length
// framing only; this client never parses a DTX payload.
package dxtclient

import (
	"context"
	"net"
	"strconv"

	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
)

// Client drives one DTServiceHub connection.
type Client struct {
	conn   net.Conn
	log    *logrus.Entry
	nextID uint32
}

// Dial opens a fresh TCP connection to (serverAddress, dtservicehubPort).
func Dial(ctx context.Context, serverAddress string, dtservicehubPort uint16, log *logrus.Entry) (*Client, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(serverAddress, strconv.Itoa(int(dtservicehubPort))))
	if err != nil {
		return nil, support.Wrap(support.ErrDxtIO, "dial dtservicehub", err)
	}
	return &Client{conn: conn, log: log.WithField("component", "dxtclient")}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) nextMessageID() uint32 {
	c.nextID++
	return c.nextID
}

func (c *Client) roundTrip(payload []byte, channelCode int32) error {
	frame := buildFrame(c.nextMessageID(), channelCode, payload)
	if _, err := c.conn.Write(frame); err != nil {
		return support.Wrap(support.ErrDxtIO, "write DXT frame", err)
	}
	return receiveFrame(c.conn)
}

// Handshake sends the DTX handshake frame and reads one reply frame.
func (c *Client) Handshake() error {
	err := c.roundTrip(handshakePayload(), rootChannelCode)
	if err == nil {
		c.log.Debug("dxt handshake complete")
	}
	return err
}

// StartChannel opens the location-simulation channel. The DXT template
// embeds the channel name regardless of any caller-supplied identifier (see
// DESIGN.md's Open Question decision), so this method takes none.
func (c *Client) StartChannel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	err := c.roundTrip(startChannelPayload(), rootChannelCode)
	if err == nil {
		c.log.Debug("dxt channel started")
	}
	return err
}

// SimulateLocation builds a fresh location-simulate payload embedding lat
// and lng, sends it, and reads one reply frame.
func (c *Client) SimulateLocation(lat, lng float64) error {
	err := c.roundTrip(locationPayload(lat, lng), rootChannelCode)
	if err == nil {
		c.log.WithField("lat", lat).WithField("lng", lng).Debug("location simulated")
	}
	return err
}

