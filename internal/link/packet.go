// Package link talks to the laser driver: wire packet encoding, the
// transports that carry packets, and the live preview engine (spot tests,
// sweeps, threshold ramps).
package link

import "encoding/binary"

// PacketSize is the fixed length of a drive frame on the wire.
const PacketSize = 6

// ValueMax is the largest drive level the wire format can carry.
const ValueMax = 65535

// Packet encodes an RGB drive triplet as the device's frame: three
// little-endian uint16 values, red first. Values are clamped into
// [0, ValueMax]; the protocol is fire-and-forget, one whole frame per write.
func Packet(r, g, b int) [PacketSize]byte {
	var p [PacketSize]byte
	binary.LittleEndian.PutUint16(p[0:2], clampValue(r))
	binary.LittleEndian.PutUint16(p[2:4], clampValue(g))
	binary.LittleEndian.PutUint16(p[4:6], clampValue(b))
	return p
}

func clampValue(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > ValueMax {
		return ValueMax
	}
	return uint16(v)
}
