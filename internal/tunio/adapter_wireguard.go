// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package tunio

import (
	"context"

	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
	wgtun "golang.zx2c4.com/wireguard/tun"
)

// NetworkConfigurator assigns the OS-level address, prefix length, and MTU
// to an already-created TUN interface, and waits for it to settle. Adapter
// bring-up is platform-specific shell work; this collaborator is the seam
// that keeps it out of WireguardAdapterFactory and out of the splice.
type NetworkConfigurator interface {
	Configure(ctx context.Context, ifName, address string, prefixLen, mtu int) error
}

// WireguardAdapterFactory creates TUN devices with
// golang.zx2c4.com/wireguard/tun and delegates OS-level address/route
// configuration to a NetworkConfigurator.
type WireguardAdapterFactory struct {
	Configurator NetworkConfigurator
	Log          *logrus.Entry
}

// Create brings up a TUN device named name, hands it to the configurator
// for address/route/MTU assignment, and wraps it as a Session.
func (f *WireguardAdapterFactory) Create(ctx context.Context, name, address string, prefixLen, mtu int) (Session, error) {
	log := f.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	dev, err := wgtun.CreateTUN(name, mtu)
	if err != nil {
		return nil, support.Wrap(support.ErrDxtIO, "create TUN device "+name, err)
	}

	if f.Configurator != nil {
		if err := f.Configurator.Configure(ctx, name, address, prefixLen, mtu); err != nil {
			_ = dev.Close()
			return nil, support.Wrap(support.ErrDxtIO, "configure TUN device "+name, err)
		}
	}

	log.WithField("adapter", name).Debug("TUN adapter ready")
	return &wireguardSession{dev: dev, mtu: mtu}, nil
}

// wireguardSession adapts wgtun.Device's batched Read/Write to this
// package's single-packet Session contract; the splice has no use for
// batching since it already serializes one packet at a time per direction.
type wireguardSession struct {
	dev wgtun.Device
	mtu int
}

func (s *wireguardSession) ReceiveBlocking() ([]byte, error) {
	bufs := [][]byte{make([]byte, s.mtu+32)}
	sizes := make([]int, 1)
	if _, err := s.dev.Read(bufs, sizes, 0); err != nil {
		return nil, err
	}
	return bufs[0][:sizes[0]], nil
}

func (s *wireguardSession) AllocateSendPacket(n int) []byte {
	return make([]byte, n)
}

func (s *wireguardSession) SendPacket(buf []byte) error {
	_, err := s.dev.Write([][]byte{buf}, 0)
	return err
}

func (s *wireguardSession) Close() error {
	return s.dev.Close()
}
