// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

// Package tunio splices a TLS-wrapped CDP byte stream with a virtual TUN
// adapter as raw IPv6 frames, in three cooperating goroutines: a blocking
// TUN reader, an async writer draining it into the TLS stream, and an async
// TLS reader feeding packets back to the adapter. All three share one
// cancellation context and report their exit reason on a single completion
// channel, mirroring the bridge-plus-done-channel shape the rest of this
// client's transports already use.
package tunio

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/joseml/devicetunnel/internal/support"
	"github.com/sirupsen/logrus"
)

// netToTunPollInterval bounds how long the net->TUN reader can sit inside a
// blocking read before it re-checks the termination context. It exists
// solely to make cancellation responsive; it is not a user-facing timeout.
const netToTunPollInterval = 2 * time.Second

// ipv6HeaderLen is the fixed IPv6 header size; bytes 4..6 hold the
// big-endian payload length.
const ipv6HeaderLen = 40

// Session is the minimal TUN adapter capability the splice needs: a
// blocking receive and an allocate-then-send pair for transmission. It is
// the Go shape of the external TUN adapter contract, implemented by
// wireguardSession in this package and by any test double.
type Session interface {
	ReceiveBlocking() ([]byte, error)
	AllocateSendPacket(n int) []byte
	SendPacket(buf []byte) error
	Close() error
}

// AdapterFactory creates a TUN adapter Session bound to the given address,
// prefix length, and MTU. Adapter bring-up is OS-specific (the original
// implementation shells out on Windows); this capability is the seam that
// keeps that out of the splice logic.
type AdapterFactory interface {
	Create(ctx context.Context, name, address string, prefixLen, mtu int) (Session, error)
}

// Stream is the TLS-wrapped CDP byte stream. SetReadDeadline lets the
// net->TUN reader poll its termination context without a dedicated timer
// goroutine; both *tls.Conn and net.Conn (used by tests) satisfy it.
type Stream interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
}

// Reason classifies why the splice stopped.
type Reason int

const (
	// ReasonTUNError means the TUN-facing goroutine (reader or adapter
	// write) hit an I/O error.
	ReasonTUNError Reason = iota
	// ReasonNetError means the TLS-facing goroutine hit an I/O error.
	ReasonNetError
	// ReasonTerminated means the writer's queue closed: Terminate was called
	// from outside, or the TUN reader had already stopped and reported its
	// own reason first.
	ReasonTerminated
	// ReasonFatal means a goroutine recovered from a panic: an unexpected
	// invariant violation, per the session layer's "fatal" contract.
	ReasonFatal
)

// Outcome is one goroutine's reason for exiting, reported on the splice's
// completion channel.
type Outcome struct {
	Reason Reason
	Err    error
}

// Splice is one running TUN<->TLS bridge. Construct with New and start with
// Start; the returned channel (capacity 3) receives at most one Outcome per
// goroutine: a reader that exits because the context was already cancelled
// reports nothing. The caller treats the first arrival as "any one
// completes" per the session-level contract.
type Splice struct {
	stream  Stream
	session Session
	log     *logrus.Entry

	ctx        context.Context
	cancel     context.CancelCauseFunc
	completion chan Outcome
}

// New wires a splice between an already handshake-completed CDP stream and
// an already-created TUN session. It does not start the goroutines.
func New(stream Stream, session Session, log *logrus.Entry) *Splice {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Splice{
		stream:     stream,
		session:    session,
		log:        log.WithField("component", "tunio"),
		ctx:        ctx,
		cancel:     cancel,
		completion: make(chan Outcome, 3),
	}
}

// Start launches the three cooperating goroutines and returns the
// completion channel immediately.
func (s *Splice) Start() <-chan Outcome {
	queue := make(chan []byte, 256)
	go s.tunToNetReader(queue)
	go s.writer(queue)
	go s.netToTunReader()
	return s.completion
}

// Terminate flips the termination context and unblocks the TUN adapter's
// blocking receive by closing the session. Safe to call more than once.
func (s *Splice) Terminate() {
	s.cancel(nil)
	_ = s.session.Close()
}

func (s *Splice) tunToNetReader(queue chan<- []byte) {
	defer s.recoverAsFatal("tun->net reader")
	defer close(queue)
	for {
		pkt, err := s.session.ReceiveBlocking()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Terminate closed the session; the writer reports ReasonTerminated
			}
			wrapped := support.Wrap(support.ErrDxtIO, "TUN receive", err)
			s.cancel(wrapped)
			s.finish(Outcome{Reason: ReasonTUNError, Err: wrapped})
			return
		}
		if len(pkt) == 0 || pkt[0]>>4 != 6 {
			continue // malformed TUN frames are dropped silently
		}
		select {
		case queue <- pkt:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Splice) writer(queue <-chan []byte) {
	defer s.recoverAsFatal("writer")
	for buf := range queue {
		if _, err := s.stream.Write(buf); err != nil {
			s.cancel(err)
			s.finish(Outcome{Reason: ReasonNetError, Err: support.Wrap(support.ErrMuxdIO, "tunnel write", err)})
			return
		}
	}
	s.finish(Outcome{Reason: ReasonTerminated})
}

func (s *Splice) netToTunReader() {
	defer s.recoverAsFatal("net->tun reader")
	header := make([]byte, ipv6HeaderLen)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_ = s.stream.SetReadDeadline(time.Now().Add(netToTunPollInterval))
		if _, err := io.ReadFull(s.stream, header); err != nil {
			if isTimeout(err) {
				continue
			}
			if s.ctx.Err() != nil {
				return // the stream was closed after Terminate
			}
			s.cancel(err)
			s.finish(Outcome{Reason: ReasonNetError, Err: support.Wrap(support.ErrMuxdIO, "tunnel read header", err)})
			return
		}

		if header[0]>>4 != 6 {
			s.log.Warn("non-IPv6 header from device, closing net->tun reader")
			s.finish(Outcome{Reason: ReasonNetError, Err: support.Wrap(support.ErrParse, "non-IPv6 header from device", nil)})
			return
		}

		payloadLen := binary.BigEndian.Uint16(header[4:6])
		body := make([]byte, payloadLen)
		if _, err := io.ReadFull(s.stream, body); err != nil {
			s.cancel(err)
			s.finish(Outcome{Reason: ReasonNetError, Err: support.Wrap(support.ErrMuxdIO, "tunnel read payload", err)})
			return
		}

		packet := s.session.AllocateSendPacket(ipv6HeaderLen + len(body))
		copy(packet, header)
		copy(packet[ipv6HeaderLen:], body)
		if err := s.session.SendPacket(packet); err != nil {
			s.cancel(err)
			s.finish(Outcome{Reason: ReasonTUNError, Err: support.Wrap(support.ErrDxtIO, "TUN send", err)})
			return
		}
	}
}

func (s *Splice) finish(o Outcome) {
	select {
	case s.completion <- o:
	default:
	}
}

func (s *Splice) recoverAsFatal(goroutineName string) {
	if r := recover(); r != nil {
		s.log.WithField("goroutine", goroutineName).Errorf("recovered panic: %v", r)
		s.finish(Outcome{Reason: ReasonFatal, Err: support.Wrap(support.ErrFatalTunnelTermination, goroutineName, nil)})
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return asNetError(err, &ne) && ne.Timeout()
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
