// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package model holds the wire-level data types shared by the usbmuxd,
// lockdown, CDP, XPC, and DXT clients: pair records, device descriptors, and
// the CDP handshake reply. The lockdown request dictionary lives in
// muxtransport.
package model

import "strings"

// PairRecord is the host identity established during an out-of-band pairing
// step and stored by usbmuxd. It is immutable for the lifetime of a session;
// certificate and key are PEM-encoded and lent by reference to the TLS
// configuration during an upgrade.
type PairRecord struct {
	SystemBUID      string
	HostID          string
	HostCertificate []byte
	HostPrivateKey  []byte
}

// Missing returns the name of the first absent field ("" when all four are
// present), reporting ErrMissingPairRecordField-class problems without
// importing the support package, so callers decide how to wrap it.
func (p PairRecord) Missing() string {
	switch {
	case p.SystemBUID == "":
		return "SystemBUID"
	case p.HostID == "":
		return "HostID"
	case len(p.HostCertificate) == 0:
		return "HostCertificate"
	case len(p.HostPrivateKey) == 0:
		return "HostPrivateKey"
	default:
		return ""
	}
}

// UpperHostID returns HostID forced to uppercase, as required by
// StartSession.
func (p PairRecord) UpperHostID() string {
	return strings.ToUpper(p.HostID)
}

// DeviceDescriptor identifies the device discovered by the first
// ListDevices reply. Both fields are set together or not at all.
type DeviceDescriptor struct {
	DeviceID     uint16
	SerialNumber string
}

// CdpHandshakeReply is the parsed JSON body of the CDP handshake envelope.
type CdpHandshakeReply struct {
	ClientParameters struct {
		Address string `json:"address"`
		MTU     int    `json:"mtu"`
		Netmask string `json:"netmask"`
	} `json:"clientParameters"`
	ServerAddress string `json:"serverAddress"`
	ServerRSDPort int    `json:"serverRSDPort"`
	Type          string `json:"type"`
}
