package transport

import "net"

// NewPipeTransportPair constructs two Transports connected by an in-memory
// net.Pipe, mirroring the teacher's use of net.Pipe in its own multiplexer
// tests. It's intended for tests and for processes that embed both ends of
// a dispatcher in a single binary.
func NewPipeTransportPair(options Options) (a, b Transport) {
	p1, p2 := net.Pipe()
	return NewStreamTransport(p1, options), NewStreamTransport(p2, options)
}
