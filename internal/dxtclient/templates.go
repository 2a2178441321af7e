// SPDX-License-Identifier: PROPRIETARY
// Copyright (c) 2026 ForTunnels

package dxtclient

import (
	"encoding/binary"
	"math"
)

// locationSimulationChannel is the well-known Instruments service identifier
// for the location-simulation channel; start_channel opens it regardless of
// any caller-supplied identifier, per the decision recorded in DESIGN.md.
const locationSimulationChannel = "com.apple.instruments.server.services.LocationSimulation"

// latOffset and lngOffset are the byte offsets of the two little-endian
// IEEE-754 f64 values inside a location-simulate payload.
const (
	latOffset = 0
	lngOffset = 8
)

// handshakePayload carries no body: the DTX handshake is identified by its
// header fields alone (channel 0, a fresh message identifier) rather than
// a capabilities dictionary, since building and parsing the real
// NSDictionary-based capabilities exchange is out of scope for a
// location-simulation-only client.
func handshakePayload() []byte {
	return nil
}

// startChannelPayload names the channel being opened on channel 0.
func startChannelPayload() []byte {
	return []byte(locationSimulationChannel)
}

// locationPayload embeds lat and lng as two little-endian f64 values at
// fixed offsets, building a fresh payload per call rather than patching a
// static template — matching create_locationsm_message's behavior of
// constructing the message anew for each call.
func locationPayload(lat, lng float64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[latOffset:latOffset+8], math.Float64bits(lat))
	binary.LittleEndian.PutUint64(buf[lngOffset:lngOffset+8], math.Float64bits(lng))
	return buf
}
