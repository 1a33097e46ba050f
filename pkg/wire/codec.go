package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayloadSizeV1 is the default maximum payload size for pre-v2 ADB
// transports.
const MaxPayloadSizeV1 = 4096

// MaxPayloadSizeV2 is the default maximum payload size for v2+ ADB
// transports (negotiated during the CNXN handshake, which lives outside
// this package).
const MaxPayloadSizeV2 = 256 * 1024

// ErrMagicMismatch indicates that a decoded header's magic field didn't
// match its command field, i.e. the transport has desynchronized.
var ErrMagicMismatch = fmt.Errorf("wire: header magic does not match command")

// ErrPayloadTooLarge indicates that Encode was asked to encode a payload
// larger than the caller's declared maximum.
var ErrPayloadTooLarge = fmt.Errorf("wire: payload exceeds maximum size")

// header is the fixed-size, little-endian layout of a packet header. It
// exists only to give Encode/Decode a concrete byte-for-byte shape; callers
// always go through Packet.
type header struct {
	Command      uint32
	Arg0         uint32
	Arg1         uint32
	DataLength   uint32
	DataChecksum uint32
	Magic        uint32
}

// Encode writes p to w as a complete packet (header followed by payload). If
// verifyChecksum is true, the legacy payload checksum is computed and
// written; otherwise the checksum field is zero, matching v2+ transports
// that ignore it. maxPayloadSize of 0 or less disables the size check.
func Encode(w io.Writer, p Packet, verifyChecksum bool, maxPayloadSize int) error {
	if maxPayloadSize > 0 && len(p.Payload) > maxPayloadSize {
		return ErrPayloadTooLarge
	}

	var checksum uint32
	if verifyChecksum {
		checksum = p.Checksum()
	}

	h := header{
		Command:      uint32(p.Command),
		Arg0:         p.Arg0,
		Arg1:         p.Arg1,
		DataLength:   uint32(len(p.Payload)),
		DataChecksum: checksum,
		Magic:        p.Magic(),
	}

	var buffer [HeaderSize]byte
	binary.LittleEndian.PutUint32(buffer[0:4], h.Command)
	binary.LittleEndian.PutUint32(buffer[4:8], h.Arg0)
	binary.LittleEndian.PutUint32(buffer[8:12], h.Arg1)
	binary.LittleEndian.PutUint32(buffer[12:16], h.DataLength)
	binary.LittleEndian.PutUint32(buffer[16:20], h.DataChecksum)
	binary.LittleEndian.PutUint32(buffer[20:24], h.Magic)

	if _, err := w.Write(buffer[:]); err != nil {
		return fmt.Errorf("wire: unable to write header: %w", err)
	}
	if len(p.Payload) > 0 {
		if _, err := w.Write(p.Payload); err != nil {
			return fmt.Errorf("wire: unable to write payload: %w", err)
		}
	}
	return nil
}

// Decode reads a single packet from r. If verifyChecksum is true, a mismatch
// between the decoded checksum field and the payload's actual checksum is
// reported as an error. maxPayloadSize of 0 or less disables the size
// check; a declared data length beyond it is rejected before the payload is
// read, so a malicious or desynchronized peer can't force an unbounded
// allocation.
func Decode(r io.Reader, verifyChecksum bool, maxPayloadSize int) (Packet, error) {
	var buffer [HeaderSize]byte
	if _, err := io.ReadFull(r, buffer[:]); err != nil {
		return Packet{}, fmt.Errorf("wire: unable to read header: %w", err)
	}

	h := header{
		Command:      binary.LittleEndian.Uint32(buffer[0:4]),
		Arg0:         binary.LittleEndian.Uint32(buffer[4:8]),
		Arg1:         binary.LittleEndian.Uint32(buffer[8:12]),
		DataLength:   binary.LittleEndian.Uint32(buffer[12:16]),
		DataChecksum: binary.LittleEndian.Uint32(buffer[16:20]),
		Magic:        binary.LittleEndian.Uint32(buffer[20:24]),
	}

	p := Packet{Command: Command(h.Command), Arg0: h.Arg0, Arg1: h.Arg1}
	if h.Magic != p.Magic() {
		return Packet{}, ErrMagicMismatch
	}

	if maxPayloadSize > 0 && h.DataLength > uint32(maxPayloadSize) {
		return Packet{}, ErrPayloadTooLarge
	}

	if h.DataLength > 0 {
		p.Payload = make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return Packet{}, fmt.Errorf("wire: unable to read payload: %w", err)
		}
	}

	if verifyChecksum && p.Checksum() != h.DataChecksum {
		return Packet{}, fmt.Errorf("wire: checksum mismatch")
	}

	return p, nil
}

// EncodeServiceString renders a service request string for inclusion as an
// OPEN packet's payload, optionally appending a trailing NUL byte for
// compatibility with daemons that parse service strings with C semantics
// (required by ADB daemons prior to Android 9).
func EncodeServiceString(service string, appendNull bool) []byte {
	if !appendNull {
		return []byte(service)
	}
	buffer := make([]byte, len(service)+1)
	copy(buffer, service)
	buffer[len(service)] = 0
	return buffer
}

// DecodeServiceString decodes an OPEN packet's payload as a UTF-8 service
// string, stripping a single trailing NUL byte if present.
func DecodeServiceString(payload []byte) string {
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		payload = payload[:n-1]
	}
	return string(payload)
}
