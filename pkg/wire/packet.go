// Package wire implements the on-the-wire encoding of the ADB host transport
// protocol: the 24-byte packet header, payload framing, and the pure
// encode/decode functions that a Transport implementation uses to turn bytes
// into Packets and back. Nothing in this package blocks, retains transport
// state, or knows about streams; that belongs to pkg/dispatch.
package wire

import "fmt"

// Command identifies the kind of an ADB packet.
type Command uint32

// commandTag builds the little-endian uint32 that results from interpreting
// a 4-byte ASCII command tag (e.g. "OPEN") as a packet's command field, which
// is how every ADB transport implementation encodes it on the wire.
func commandTag(a, b, c, d byte) Command {
	return Command(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	// CommandSYNC is the legacy connection-reset command. The dispatcher never
	// sees it post-handshake; it is defined so that a full transport-level
	// reader can decode a connection from its very first byte.
	CommandSYNC = commandTag('S', 'Y', 'N', 'C')
	// CommandCNXN is the connection handshake command.
	CommandCNXN = commandTag('C', 'N', 'X', 'N')
	// CommandAUTH is the authentication command.
	CommandAUTH = commandTag('A', 'U', 'T', 'H')
	// CommandOPEN requests that a new stream be opened.
	CommandOPEN = commandTag('O', 'P', 'E', 'N')
	// CommandOKAY acknowledges a stream open or a stream write.
	CommandOKAY = commandTag('O', 'K', 'A', 'Y')
	// CommandCLSE closes a stream, or rejects an open request if arg0 is 0.
	CommandCLSE = commandTag('C', 'L', 'S', 'E')
	// CommandWRTE carries stream payload data.
	CommandWRTE = commandTag('W', 'R', 'T', 'E')
)

// String renders a Command using its 4-byte ASCII tag when recognized.
func (c Command) String() string {
	switch c {
	case CommandSYNC:
		return "SYNC"
	case CommandCNXN:
		return "CNXN"
	case CommandAUTH:
		return "AUTH"
	case CommandOPEN:
		return "OPEN"
	case CommandOKAY:
		return "OKAY"
	case CommandCLSE:
		return "CLSE"
	case CommandWRTE:
		return "WRTE"
	default:
		return fmt.Sprintf("command(%#08x)", uint32(c))
	}
}

// IsStreamCommand reports whether the dispatcher handles c directly. SYNC,
// CNXN, and AUTH belong to the handshake, which has already completed by the
// time a Dispatcher exists (see package dispatch).
func (c Command) IsStreamCommand() bool {
	switch c {
	case CommandOPEN, CommandOKAY, CommandCLSE, CommandWRTE:
		return true
	default:
		return false
	}
}

// HeaderSize is the fixed size, in bytes, of an ADB packet header.
const HeaderSize = 24

// Packet is the in-memory form of a single ADB wire unit.
type Packet struct {
	// Command identifies the packet kind.
	Command Command
	// Arg0 and Arg1 carry command-specific meaning (see pkg/dispatch for the
	// stream-relevant interpretations).
	Arg0, Arg1 uint32
	// Payload is the packet body. Its length must not exceed whatever
	// maximum payload size the transport negotiated.
	Payload []byte
}

// Magic returns the framing sanity value that accompanies Command on the
// wire: the bitwise complement of the command value.
func (p Packet) Magic() uint32 {
	return uint32(p.Command) ^ 0xFFFFFFFF
}

// Checksum computes the legacy (pre-v2) payload checksum: the sum of payload
// bytes modulo 2^32.
func (p Packet) Checksum() uint32 {
	var sum uint32
	for _, b := range p.Payload {
		sum += uint32(b)
	}
	return sum
}
