package transport

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/adblink/adblink/pkg/wire"
)

// streamTransport adapts an underlying io.ReadWriteCloser (a TCP connection,
// a net.Pipe endpoint, or anything else with that shape) into a Transport,
// the same role the teacher's NewCarrierFromStream plays for its byte-level
// Carrier. Reads are buffered; writes are serialized so that a header and
// its payload are never interleaved with another goroutine's write (the
// dispatcher already serializes its own writes under a lock, but this
// keeps the type safe to reuse outside that guarantee).
type streamTransport struct {
	reader    *bufio.Reader
	closer    io.Closer
	writeLock sync.Mutex
	writer    io.Writer
	options   Options
}

// NewStreamTransport wraps stream as a Transport. The underlying stream must
// have the property that closing it unblocks any pending Read or Write call.
func NewStreamTransport(stream io.ReadWriteCloser, options Options) Transport {
	return &streamTransport{
		reader:  bufio.NewReader(stream),
		closer:  stream,
		writer:  stream,
		options: options.normalize(),
	}
}

// ReadPacket implements Transport.ReadPacket.
func (t *streamTransport) ReadPacket() (wire.Packet, error) {
	packet, err := wire.Decode(t.reader, t.options.VerifyChecksum, t.options.MaxPayloadSize)
	if err != nil {
		return wire.Packet{}, errors.Wrap(err, "unable to decode packet")
	}
	return packet, nil
}

// WritePacket implements Transport.WritePacket.
func (t *streamTransport) WritePacket(packet wire.Packet) error {
	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	if err := wire.Encode(t.writer, packet, t.options.VerifyChecksum, t.options.MaxPayloadSize); err != nil {
		return errors.Wrap(err, "unable to encode packet")
	}
	return nil
}

// Close implements Transport.Close.
func (t *streamTransport) Close() error {
	return t.closer.Close()
}
