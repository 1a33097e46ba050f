// Package transport implements the duplex channel of decoded packets that
// pkg/dispatch consumes. It is the seam described by the dispatcher
// specification's "Transport interface consumed": physical transport
// drivers (USB, TCP) live on one side of it, the wire codec
// (github.com/adblink/adblink/pkg/wire) implements the framing on the other,
// and pkg/dispatch never touches either directly.
package transport

import "github.com/adblink/adblink/pkg/wire"

// Transport is a duplex channel of decoded ADB packets. Implementations must
// ensure that Close unblocks any pending ReadPacket or WritePacket call, the
// same contract the teacher's multiplexing package imposes on its Carrier
// type.
type Transport interface {
	// ReadPacket reads and decodes the next packet. It must be safe to call
	// concurrently with WritePacket, but concurrent calls to ReadPacket
	// itself are not required to be safe (the dispatcher has exactly one
	// reader).
	ReadPacket() (wire.Packet, error)
	// WritePacket encodes and writes a single packet. It must be safe to
	// call concurrently with ReadPacket, but concurrent calls to
	// WritePacket itself are not required to be safe (the dispatcher has
	// exactly one writer).
	WritePacket(wire.Packet) error
	// Close closes the underlying connection and unblocks any pending
	// ReadPacket or WritePacket call.
	Close() error
}

// Options controls how a Transport encodes and decodes packets.
type Options struct {
	// VerifyChecksum enables legacy (pre-v2) payload checksum computation
	// and verification.
	VerifyChecksum bool
	// MaxPayloadSize bounds both outbound and inbound payload sizes. If
	// zero or less, wire.MaxPayloadSizeV2 is used.
	MaxPayloadSize int
}

// normalize fills in defaults for unset Options fields.
func (o Options) normalize() Options {
	if o.MaxPayloadSize <= 0 {
		o.MaxPayloadSize = wire.MaxPayloadSizeV2
	}
	return o
}
