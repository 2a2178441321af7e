// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package muxtransport carries framed plist requests and responses to the
// local usbmuxd control socket (127.0.0.1:27015) and upgrades the same byte
// stream to TLS using a pair record's host certificate and key.
//
// All outbound mux requests use tag=1 and the client never issues a second
// request before reading the previous reply, so correlation between request
// and reply is positional rather than by tag. That is a documented contract
// of this client, not an oversight: usbmuxd replies in request order on a
// single connection, and nothing here pipelines requests.
package muxtransport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"

	"github.com/joseml/devicetunnel/internal/model"
	"github.com/joseml/devicetunnel/internal/plistcodec"
	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
)

// DefaultAddr is usbmuxd's well-known control socket address.
const DefaultAddr = "127.0.0.1:27015"

const (
	clientVersionString = "usbmuxd-client"
	progName             = "client"
	libUSBMuxVersion     = 3
)

// LockdownPort is the device-side lockdown service port. It is transmitted
// big-endian on the wire, inside the plist's PortNumber field.
const LockdownPort = 62078

// Transport is one connection to usbmuxd, optionally upgraded to TLS. At
// most one of the raw or TLS stream is live at a time after an upgrade; the
// caller must not interleave raw and TLS writes.
type Transport struct {
	conn   net.Conn
	tls    *tls.Conn
	log    *logrus.Entry
	nextIO io.ReadWriter // the currently active stream: conn or tls
}

// Connect opens a fresh TCP stream to usbmuxd at addr.
func Connect(ctx context.Context, addr string, log *logrus.Entry) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, support.Wrap(support.ErrMuxdIO, "dial usbmuxd at "+addr, err)
	}
	return NewFromConn(conn, log), nil
}

// NewFromConn wraps an already-established connection without dialing. Used
// by Connect once it has dialed, and by tests that script both ends of an
// in-process pipe.
func NewFromConn(conn net.Conn, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{conn: conn, log: log.WithField("component", "muxtransport"), nextIO: conn}
}

// Close closes the underlying stream (TLS takes precedence once upgraded).
func (t *Transport) Close() error {
	if t.tls != nil {
		return t.tls.Close()
	}
	return t.conn.Close()
}

// TLSUpgrade wraps the current byte stream with a TLS client using the host
// certificate and key from the pair record. The SNI server name is
// literally "localhost" and server certificate verification is disabled:
// trust is anchored in the pair record's client certificate, not in PKI,
// because the device's TLS identity isn't verifiable by any certificate
// authority. This is intentional; do not "fix" it to real verification.
func (t *Transport) TLSUpgrade(ctx context.Context, certPEM, keyPEM []byte) error {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return support.Wrap(support.ErrSSL, "parse pair record certificate/key", err)
	}

	cfg := &tls.Config{
		ServerName:         "localhost",
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, //nolint:gosec // device identity is anchored in the pair record, not PKI
	}

	tlsConn := tls.Client(t.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return support.Wrap(support.ErrSSL, "tls handshake", err)
	}
	t.tls = tlsConn
	t.nextIO = tlsConn
	t.log.Debug("tls upgrade complete")
	return nil
}

// stream returns the currently active byte stream: conn before TLSUpgrade,
// tls after. There is no ssl selector because at most one stream is ever
// live (see the package doc); callers sequence StartSession before the
// upgrade and StartService/GetValue after it.
func (t *Transport) stream() io.ReadWriter {
	return t.nextIO
}

// Stream exposes the currently active byte stream (raw before TLSUpgrade,
// TLS after) to a caller handing this connection off to a fresh protocol
// layer once lockdown framing is done with it — the CDP tunnel does this
// with a TLS-upgraded Transport to reach the splice in internal/tunio.
func (t *Transport) Stream() io.ReadWriter {
	return t.nextIO
}

// SendMux writes a framed mux request built from the given fields.
func (t *Transport) SendMux(data muxMessageData) error {
	data.ClientVersionString = clientVersionString
	data.ProgName = progName
	data.KLibUSBMuxVersion = libUSBMuxVersion

	frame, err := encodeMuxFrame(data)
	if err != nil {
		return err
	}
	if _, err := t.conn.Write(frame); err != nil {
		return support.Wrap(support.ErrMuxdIO, "write mux frame", err)
	}
	return nil
}

// RecvMux reads one framed mux reply into v.
func (t *Transport) RecvMux(v any) error {
	return decodeMuxFrame(t.conn, v)
}

// SendLockdownRequest writes a framed lockdown request over whichever stream
// is currently active (raw before TLSUpgrade, TLS after).
func (t *Transport) SendLockdownRequest(msg LockdownRequest) error {
	frame, err := encodeLockdownFrame(msg)
	if err != nil {
		return err
	}
	if _, err := t.stream().Write(frame); err != nil {
		return support.Wrap(support.ErrMuxdIO, "write lockdown frame", err)
	}
	return nil
}

// RecvLockdown reads one framed lockdown reply into v.
func (t *Transport) RecvLockdown(v any) error {
	r, ok := t.stream().(io.Reader)
	if !ok {
		return support.Wrap(support.ErrMuxdIO, "lockdown stream not readable", nil)
	}
	return decodeLockdownFrame(r, v)
}

// muxMessageData mirrors the outbound usbmuxd plist dictionary. Optional
// fields are omitted from the serialized plist when nil.
type muxMessageData struct {
	MessageType         string  `plist:"MessageType"`
	PairRecordID        *string `plist:"PairRecordID,omitempty"`
	ClientVersionString string  `plist:"ClientVersionString"`
	ProgName            string  `plist:"ProgName"`
	KLibUSBMuxVersion   int64   `plist:"kLibUSBMuxVersion"`
	DeviceID            *uint16 `plist:"DeviceID,omitempty"`
	PortNumber          *uint16 `plist:"PortNumber,omitempty"`
}

// LockdownRequest mirrors the lockdown plist dictionary. Unset fields are
// omitted from the serialized plist. Built with NewLockdownRequest and the
// WithXxx methods rather than literal construction, so callers outside this
// package never need to know the plist tags.
type LockdownRequest struct {
	Label      string  `plist:"Label,omitempty"`
	Request    string  `plist:"Request,omitempty"`
	Service    *string `plist:"Service,omitempty"`
	HostID     *string `plist:"HostID,omitempty"`
	SystemBUID *string `plist:"SystemBUID,omitempty"`
	Domain     *string `plist:"Domain,omitempty"`
	Key        *string `plist:"Key,omitempty"`
	Action     *int    `plist:"action,omitempty"`
}

// NewLockdownRequest starts a request with the given Request kind
// (StartSession, StartService, GetValue, or "" for the bare AMFI action
// request).
func NewLockdownRequest(request string) LockdownRequest {
	return LockdownRequest{Request: request}
}

func (r LockdownRequest) WithLabel(label string) LockdownRequest { r.Label = label; return r }

func (r LockdownRequest) WithService(service string) LockdownRequest {
	r.Service = &service
	return r
}

func (r LockdownRequest) WithHostID(hostID string) LockdownRequest {
	r.HostID = &hostID
	return r
}

func (r LockdownRequest) WithSystemBUID(buid string) LockdownRequest {
	r.SystemBUID = &buid
	return r
}

func (r LockdownRequest) WithDomain(domain string) LockdownRequest {
	r.Domain = &domain
	return r
}

func (r LockdownRequest) WithKey(key string) LockdownRequest {
	r.Key = &key
	return r
}

func (r LockdownRequest) WithAction(action int) LockdownRequest {
	r.Action = &action
	return r
}

// decodePlistBytes parses a nested plist-encoded byte blob, as used by
// usbmuxd's PairRecordData field.
func decodePlistBytes(data []byte, v any) error {
	return plistcodec.DecodeXML(data, v)
}

// ListDevices asks usbmuxd for the attached device list and returns the
// first device's descriptor.
func (t *Transport) ListDevices() (model.DeviceDescriptor, error) {
	if err := t.SendMux(muxMessageData{MessageType: "ListDevices"}); err != nil {
		return model.DeviceDescriptor{}, err
	}

	var reply struct {
		DeviceList []struct {
			DeviceID   uint16 `plist:"DeviceID"`
			Properties struct {
				SerialNumber string `plist:"SerialNumber"`
			} `plist:"Properties"`
		} `plist:"DeviceList"`
	}
	if err := t.RecvMux(&reply); err != nil {
		return model.DeviceDescriptor{}, err
	}
	if len(reply.DeviceList) == 0 {
		return model.DeviceDescriptor{}, support.Wrap(support.ErrParse, "no devices in ListDevices reply", nil)
	}

	first := reply.DeviceList[0]
	return model.DeviceDescriptor{DeviceID: first.DeviceID, SerialNumber: first.Properties.SerialNumber}, nil
}

// ListDeviceBySerial asks usbmuxd for the attached device list and returns
// the descriptor matching serial, used when a caller has pinned a specific
// device rather than accepting whichever one usbmuxd lists first.
func (t *Transport) ListDeviceBySerial(serial string) (model.DeviceDescriptor, error) {
	if err := t.SendMux(muxMessageData{MessageType: "ListDevices"}); err != nil {
		return model.DeviceDescriptor{}, err
	}

	var reply struct {
		DeviceList []struct {
			DeviceID   uint16 `plist:"DeviceID"`
			Properties struct {
				SerialNumber string `plist:"SerialNumber"`
			} `plist:"Properties"`
		} `plist:"DeviceList"`
	}
	if err := t.RecvMux(&reply); err != nil {
		return model.DeviceDescriptor{}, err
	}
	for _, d := range reply.DeviceList {
		if d.Properties.SerialNumber == serial {
			return model.DeviceDescriptor{DeviceID: d.DeviceID, SerialNumber: d.Properties.SerialNumber}, nil
		}
	}
	return model.DeviceDescriptor{}, support.Wrap(support.ErrParse, "no device with serial "+serial, nil)
}

// ReadPairRecord asks usbmuxd for the stored pair record of the given
// device serial number.
func (t *Transport) ReadPairRecord(serial string) (model.PairRecord, error) {
	id := serial
	if err := t.SendMux(muxMessageData{MessageType: "ReadPairRecord", PairRecordID: &id}); err != nil {
		return model.PairRecord{}, err
	}

	var reply struct {
		PairRecordData []byte `plist:"PairRecordData"`
	}
	if err := t.RecvMux(&reply); err != nil {
		return model.PairRecord{}, err
	}

	var inner struct {
		SystemBUID      string `plist:"SystemBUID"`
		HostID          string `plist:"HostID"`
		HostCertificate []byte `plist:"HostCertificate"`
		HostPrivateKey  []byte `plist:"HostPrivateKey"`
	}
	if err := decodePlistBytes(reply.PairRecordData, &inner); err != nil {
		return model.PairRecord{}, err
	}

	rec := model.PairRecord{
		SystemBUID:      inner.SystemBUID,
		HostID:          inner.HostID,
		HostCertificate: inner.HostCertificate,
		HostPrivateKey:  inner.HostPrivateKey,
	}
	if missing := rec.Missing(); missing != "" {
		return model.PairRecord{}, support.Wrap(support.ErrMissingPairRecordField, missing, nil)
	}
	return rec, nil
}

// ConnectToPort asks usbmuxd to forward raw bytes to the given device port
// over the current connection. port is converted to network byte order
// inside the plist integer field, per usbmuxd's wire contract.
func (t *Transport) ConnectToPort(deviceID, port uint16) error {
	wire := htons(port)
	return t.SendMux(muxMessageData{
		MessageType: "Connect",
		DeviceID:    &deviceID,
		PortNumber:  &wire,
	})
}

func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}
