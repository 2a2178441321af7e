// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package lockdown drives the device's lockdown service: starting a session,
// requesting services, and reading values, all framed per MuxTransport's
// lockdown framing.
package lockdown

import (
	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/muxtransport"
	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
)

// AmfiDomain and DeveloperModeKey locate the developer-mode flag checked
// immediately after the CDP service starts.
const (
	AmfiDomain       = "com.apple.security.mac.amfi"
	DeveloperModeKey = "DeveloperModeStatus"

	// CoreDeviceProxyService is the lockdown service that terminates the CDP
	// IPv6 tunnel.
	CoreDeviceProxyService = "com.apple.internal.devicecompute.CoreDeviceProxy"
	// AmfiLockdownService triggers the developer-mode reveal; no reply is
	// read after sending its action request, because the device reboots.
	AmfiLockdownService = "com.apple.amfi.lockdown"
)

// Client drives lockdown requests over an existing MuxTransport.
type Client struct {
	transport *muxtransport.Transport
	log       *logrus.Entry
}

// New wraps an already-connected MuxTransport.
func New(transport *muxtransport.Transport, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{transport: transport, log: log.WithField("component", "lockdown")}
}

// StartSession sends StartSession with the pair record's identity and
// discards the reply.
func (c *Client) StartSession(pair model.PairRecord) error {
	req := muxtransport.NewLockdownRequest("StartSession")
	req = req.WithLabel("client").WithHostID(pair.UpperHostID()).WithSystemBUID(pair.SystemBUID)

	if err := c.transport.SendLockdownRequest(req); err != nil {
		return err
	}
	var reply map[string]any
	if err := c.transport.RecvLockdown(&reply); err != nil {
		return err
	}
	c.log.Debug("lockdown session started")
	return nil
}

// StartService requests a named lockdown service over the TLS-upgraded
// stream and returns the device-side port it should be reached on. Callers
// must upgrade the transport to TLS before calling this.
func (c *Client) StartService(service string) (uint16, error) {
	req := muxtransport.NewLockdownRequest("StartService").WithLabel("client").WithService(service)
	if err := c.transport.SendLockdownRequest(req); err != nil {
		return 0, err
	}

	var reply struct {
		Port *int64 `plist:"Port"`
	}
	if err := c.transport.RecvLockdown(&reply); err != nil {
		return 0, err
	}
	if reply.Port == nil {
		return 0, support.Wrap(support.ErrParse, "StartService reply missing Port", nil)
	}
	return uint16(*reply.Port), nil
}

// GetValue requests a lockdown domain/key value over the TLS-upgraded
// stream and returns the raw Value field.
func (c *Client) GetValue(domain, key string) (any, error) {
	req := muxtransport.NewLockdownRequest("GetValue").WithDomain(domain).WithKey(key)
	if err := c.transport.SendLockdownRequest(req); err != nil {
		return nil, err
	}

	var reply struct {
		Value any `plist:"Value"`
	}
	if err := c.transport.RecvLockdown(&reply); err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// EnsureDeveloperModeEnabled reads the AMFI developer-mode flag and returns
// ErrDeveloperModeDisabled if it is false or absent. Called immediately
// after the CDP service starts, per the connect flow.
func (c *Client) EnsureDeveloperModeEnabled() error {
	value, err := c.GetValue(AmfiDomain, DeveloperModeKey)
	if err != nil {
		return err
	}
	enabled, ok := value.(bool)
	if !ok || !enabled {
		return support.Wrap(support.ErrDeveloperModeDisabled, "DeveloperModeStatus is false or missing", nil)
	}
	return nil
}

// RevealDeveloperMode sends the AMFI {action:0} request that triggers the
// developer-mode reveal prompt on the device. No reply is read: the device
// reboots before one would arrive.
func (c *Client) RevealDeveloperMode() error {
	req := muxtransport.NewLockdownRequest("").WithAction(0)
	return c.transport.SendLockdownRequest(req)
}
