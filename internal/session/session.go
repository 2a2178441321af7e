// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package session orchestrates the full device protocol stack across its
// three public flows: connect (bring up the CDP tunnel), reveal developer
// mode, and simulate location. It owns no framing of its own; it sequences
// MuxTransport, LockdownClient, CdpTunnel, XpcLocator, and DxtClient.
package session

import (
	"context"

	"github.com/joseml/devicetunnel/internal/cdp"
	"github.com/joseml/devicetunnel/internal/dxtclient"
	"github.com/joseml/devicetunnel/internal/lockdown"
	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/muxtransport"
	"github.com/joseml/devicetunnel/internal/support"
	"github.com/joseml/devicetunnel/internal/tunio"
	"github.com/joseml/devicetunnel/internal/xpclocator"
	"github.com/sirupsen/logrus"
)

// DefaultTunName is the TUN adapter name requested from the AdapterFactory
// when New is given an empty tunName. The original implementation names it
// for the Windows driver it bundles; this client keeps the name as an
// identifying label, not a Windows-specific detail.
const DefaultTunName = "devicetunnel0"

// tunPrefixLen is the CDP-assigned address's prefix length: CDP addresses
// are always /64, per the link-local IPv6 address CdpTunnel receives.
const tunPrefixLen = 64

// Device holds the state accumulated across a DeviceSession's flows:
// identity (from ListDevices/ReadPairRecord) and CDP tunnel coordinates
// (from the handshake), both needed by simulate-location after connect.
type Device struct {
	muxAddr         string
	preferredSerial string
	tunName         string
	adapterFactory  tunio.AdapterFactory
	portLocator     xpclocator.PortLocator
	log             *logrus.Entry

	pair       model.PairRecord
	deviceID   uint16
	deviceAddr string // CDP serverAddress
	rsdPort    int
	splice     *tunio.Splice
	cdpConn    *muxtransport.Transport
}

// New builds a DeviceSession. muxAddr overrides usbmuxd's well-known
// address (used by tests); pass "" for the default. preferredSerial pins a
// specific device's serial number instead of accepting whichever one
// usbmuxd lists first; pass "" to accept the first. tunName is the adapter
// name requested from adapterFactory; pass "" to use DefaultTunName.
// adapterFactory and portLocator are collaborators swapped out in tests.
func New(muxAddr, preferredSerial, tunName string, adapterFactory tunio.AdapterFactory, portLocator xpclocator.PortLocator, log *logrus.Entry) *Device {
	if muxAddr == "" {
		muxAddr = muxtransport.DefaultAddr
	}
	if tunName == "" {
		tunName = DefaultTunName
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if portLocator == nil {
		portLocator = &xpclocator.Scripted{Log: log}
	}
	return &Device{
		muxAddr:         muxAddr,
		preferredSerial: preferredSerial,
		tunName:         tunName,
		adapterFactory:  adapterFactory,
		portLocator:     portLocator,
		log:             log.WithField("component", "session"),
	}
}

// identify opens a fresh MuxTransport, discovers the device (the first one
// listed, or the one matching preferredSerial when set), and fetches its
// pair record. Shared by every flow that needs lockdown access.
func (d *Device) identify(ctx context.Context) (*muxtransport.Transport, error) {
	transport, err := muxtransport.Connect(ctx, d.muxAddr, d.log)
	if err != nil {
		return nil, err
	}

	var desc model.DeviceDescriptor
	if d.preferredSerial != "" {
		desc, err = transport.ListDeviceBySerial(d.preferredSerial)
	} else {
		desc, err = transport.ListDevices()
	}
	if err != nil {
		transport.Close()
		return nil, err
	}
	d.deviceID = desc.DeviceID

	pair, err := transport.ReadPairRecord(desc.SerialNumber)
	if err != nil {
		transport.Close()
		return nil, err
	}
	d.pair = pair
	return transport, nil
}

// startLockdownSession opens a fresh mux connection, forwards it to the
// lockdown port, and runs StartSession. The returned transport is raw
// (not yet TLS-upgraded).
func (d *Device) startLockdownSession(ctx context.Context) (*muxtransport.Transport, error) {
	transport, err := d.identify(ctx)
	if err != nil {
		return nil, err
	}
	if err := transport.ConnectToPort(d.deviceID, muxtransport.LockdownPort); err != nil {
		transport.Close()
		return nil, err
	}

	client := lockdown.New(transport, d.log)
	if err := client.StartSession(d.pair); err != nil {
		transport.Close()
		return nil, err
	}
	return transport, nil
}

// Connect runs the full bring-up sequence: lockdown session, TLS upgrade,
// CoreDeviceProxy service request, developer-mode guard, a fresh TLS'd
// connection to the CDP port, and the CDP handshake. On success it creates
// the TUN adapter and starts the three-goroutine splice, returning its
// completion channel so the caller can select on "any one completes".
func (d *Device) Connect(ctx context.Context) (<-chan tunio.Outcome, error) {
	transport, err := d.startLockdownSession(ctx)
	if err != nil {
		return nil, err
	}
	defer transport.Close()

	if err := transport.TLSUpgrade(ctx, d.pair.HostCertificate, d.pair.HostPrivateKey); err != nil {
		return nil, err
	}

	client := lockdown.New(transport, d.log)
	cdpPort, err := client.StartService(lockdown.CoreDeviceProxyService)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureDeveloperModeEnabled(); err != nil {
		return nil, err
	}

	cdpTransport, err := muxtransport.Connect(ctx, d.muxAddr, d.log)
	if err != nil {
		return nil, err
	}
	if err := cdpTransport.ConnectToPort(d.deviceID, cdpPort); err != nil {
		cdpTransport.Close()
		return nil, err
	}
	if err := cdpTransport.TLSUpgrade(ctx, d.pair.HostCertificate, d.pair.HostPrivateKey); err != nil {
		cdpTransport.Close()
		return nil, err
	}

	reply, err := cdp.Handshake(cdpTransport.Stream())
	if err != nil {
		cdpTransport.Close()
		return nil, err
	}
	d.deviceAddr = reply.ServerAddress
	d.rsdPort = reply.ServerRSDPort

	if d.adapterFactory == nil {
		cdpTransport.Close()
		return nil, support.Wrap(support.ErrDxtIO, "no AdapterFactory configured", nil)
	}
	tunSession, err := d.adapterFactory.Create(ctx, d.tunName, reply.ClientParameters.Address, tunPrefixLen, reply.ClientParameters.MTU)
	if err != nil {
		cdpTransport.Close()
		return nil, err
	}

	tlsStream, ok := cdpTransport.Stream().(tunio.Stream)
	if !ok {
		cdpTransport.Close()
		return nil, support.Wrap(support.ErrSSL, "CDP stream does not support read deadlines", nil)
	}
	d.cdpConn = cdpTransport
	d.splice = tunio.New(tlsStream, tunSession, d.log)
	return d.splice.Start(), nil
}

// RevealDeveloperMode runs a fresh lockdown session, requests the AMFI
// lockdown service, reconnects to its port, TLS-upgrades again, and sends
// the bare {action:0} request. No reply is read; the device reboots.
func (d *Device) RevealDeveloperMode(ctx context.Context) error {
	transport, err := d.startLockdownSession(ctx)
	if err != nil {
		return err
	}
	defer transport.Close()

	if err := transport.TLSUpgrade(ctx, d.pair.HostCertificate, d.pair.HostPrivateKey); err != nil {
		return err
	}
	client := lockdown.New(transport, d.log)

	amfiPort, err := client.StartService(lockdown.AmfiLockdownService)
	if err != nil {
		return err
	}

	amfiTransport, err := muxtransport.Connect(ctx, d.muxAddr, d.log)
	if err != nil {
		return err
	}
	defer amfiTransport.Close()

	if err := amfiTransport.ConnectToPort(d.deviceID, amfiPort); err != nil {
		return err
	}
	if err := amfiTransport.TLSUpgrade(ctx, d.pair.HostCertificate, d.pair.HostPrivateKey); err != nil {
		return err
	}

	return lockdown.New(amfiTransport, d.log).RevealDeveloperMode()
}

// SimulateLocation requires a prior successful Connect: it opens XpcLocator
// against the CDP-reported server and RSD port, then drives DxtClient
// through handshake, start-channel, and the location-simulate message.
func (d *Device) SimulateLocation(ctx context.Context, lat, lng float64) error {
	if d.deviceAddr == "" {
		return support.Wrap(support.ErrParse, "simulate-location requires a successful connect first", nil)
	}

	dtPort, err := d.portLocator.Locate(ctx, d.deviceAddr, d.rsdPort)
	if err != nil {
		return err
	}

	client, err := dxtclient.Dial(ctx, d.deviceAddr, dtPort, d.log)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Handshake(); err != nil {
		return err
	}
	if err := client.StartChannel(ctx); err != nil {
		return err
	}
	return client.SimulateLocation(lat, lng)
}

// Terminate tears down the running CDP tunnel, if any.
func (d *Device) Terminate() {
	if d.splice != nil {
		d.splice.Terminate()
	}
	if d.cdpConn != nil {
		d.cdpConn.Close()
	}
}
