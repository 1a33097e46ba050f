package dispatch

import (
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adblink/adblink/pkg/wire"
)

// Stream represents a single ADB logical stream multiplexed over a
// Dispatcher's transport. It implements net.Conn, plus a dispatcher-facing
// surface (enqueue/ack/dispose) that only this package uses. The two
// surfaces are the same object wearing two capability sets, per the design
// notes: the application drives Read/Write/Close, the dispatcher's inbound
// loop drives enqueue/ack/dispose.
type Stream struct {
	// dispatcher is the owning dispatcher, used to transmit WRTE/CLSE
	// packets and to deregister the stream on teardown. It's a
	// non-owning back-reference: the dispatcher owns the stream, not the
	// other way around.
	dispatcher *Dispatcher
	// localID and remoteID identify the stream in each side's namespace.
	// remoteID is fixed before the stream is ever handed to the
	// application or inserted into the dispatcher's table, so it's safe
	// to read without synchronization thereafter.
	localID, remoteID uint32
	// serviceString is the request that opened the stream.
	serviceString string
	// createdLocally records which side originated the OPEN.
	createdLocally bool

	// closeOnce guards the local-teardown sequence (optionally notifying
	// the peer, deregistering from the dispatcher, and unblocking local
	// callers).
	closeOnce sync.Once
	// closed is closed once the stream is fully torn down, from either
	// direction.
	closed chan struct{}
	// closeErr is the error subsequent Read/Write calls should report
	// once closed is closed, if any beyond the default ErrStreamClosed.
	closeErr error

	// readQueue carries inbound WRTE payloads awaiting consumption. Its
	// capacity is the dispatcher's configured StreamReadQueueCapacity;
	// a full queue is how backpressure reaches the peer (see enqueue).
	readQueue chan []byte
	// readBuf holds the unconsumed remainder of the most recently
	// dequeued payload, since a Read call may request fewer bytes than
	// one WRTE payload contained.
	readBuf []byte

	// writeGate holds a token (capacity one) exactly when the stream is
	// permitted to send its next WRTE: once on establishment, and once
	// per inbound OKAY thereafter. This is the entire flow-control
	// mechanism; there is no sliding window.
	writeGate chan struct{}

	readDeadlineLock sync.Mutex
	readDeadline     time.Time
	readTimedOut     uint32

	writeDeadlineLock sync.Mutex
	writeDeadline     time.Time
	writeTimedOut     uint32
}

// newStream constructs a stream that is not yet registered with d. Callers
// are responsible for inserting it into d's stream table (if accepted) and
// for calling establish once the peer's stream id is known.
func newStream(d *Dispatcher, localID uint32, createdLocally bool, serviceString string) *Stream {
	return &Stream{
		dispatcher:     d,
		localID:        localID,
		serviceString:  serviceString,
		createdLocally: createdLocally,
		closed:         make(chan struct{}),
		readQueue:      make(chan []byte, d.configuration.StreamReadQueueCapacity),
		writeGate:      make(chan struct{}, 1),
	}
}

// establish records the peer's stream identifier and grants the initial
// write token, making the stream ready for use. It must be called exactly
// once, before the stream is returned to the application.
func (s *Stream) establish(remoteID uint32) {
	s.remoteID = remoteID
	s.writeGate <- struct{}{}
}

// ServiceString returns the request string that opened the stream.
func (s *Stream) ServiceString() string {
	return s.serviceString
}

// CreatedLocally reports whether this side originated the OPEN.
func (s *Stream) CreatedLocally() bool {
	return s.createdLocally
}

// Read implements net.Conn.Read.
func (s *Stream) Read(buffer []byte) (int, error) {
	if len(s.readBuf) > 0 {
		n := copy(buffer, s.readBuf)
		s.readBuf = s.readBuf[n:]
		return n, nil
	}

	if isClosed(s.closed) {
		return 0, s.readTerminalError()
	}

	if atomic.LoadUint32(&s.readTimedOut) != 0 {
		return 0, os.ErrDeadlineExceeded
	}

	timeoutCh, stopTimeout := s.readTimeoutChannel()
	defer stopTimeout()

	var chunk []byte
	select {
	case chunk = <-s.readQueue:
	case <-s.closed:
		return 0, s.readTerminalError()
	case <-timeoutCh:
		atomic.StoreUint32(&s.readTimedOut, 1)
		return 0, os.ErrDeadlineExceeded
	}

	n := copy(buffer, chunk)
	if n < len(chunk) {
		s.readBuf = chunk[n:]
	}
	return n, nil
}

// Write implements net.Conn.Write. It fragments data across the
// dispatcher's configured maximum payload size and performs stop-and-wait:
// each fragment blocks until the prior one has been acknowledged with OKAY
// before being transmitted, and Write returns only once the last fragment
// has been acknowledged as well.
func (s *Stream) Write(data []byte) (int, error) {
	if isClosed(s.closed) {
		return 0, s.writeTerminalError()
	}
	if atomic.LoadUint32(&s.writeTimedOut) != 0 {
		return 0, os.ErrDeadlineExceeded
	}

	timeoutCh, stopTimeout := s.writeTimeoutChannel()
	defer stopTimeout()

	maxChunk := s.dispatcher.configuration.MaxPayloadSize
	var written int
	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}

		select {
		case <-s.writeGate:
		case <-s.closed:
			return written, s.writeTerminalError()
		case <-timeoutCh:
			atomic.StoreUint32(&s.writeTimedOut, 1)
			return written, os.ErrDeadlineExceeded
		}

		if err := s.dispatcher.sendPacket(wire.CommandWRTE, s.localID, s.remoteID, chunk); err != nil {
			return written, err
		}

		data = data[len(chunk):]
		written += len(chunk)
	}

	// Wait for the OKAY acknowledging the last fragment, then hand the
	// token back so the next write may proceed.
	if written > 0 {
		select {
		case <-s.writeGate:
			s.ack()
		case <-s.closed:
			return written, s.writeTerminalError()
		case <-timeoutCh:
			atomic.StoreUint32(&s.writeTimedOut, 1)
			return written, os.ErrDeadlineExceeded
		}
	}
	return written, nil
}

// enqueue is invoked by the dispatcher's inbound loop when a WRTE arrives
// for this stream. It blocks if readQueue is full, which is precisely the
// backpressure signal: the dispatcher withholds the reciprocating OKAY
// until this call returns. It reports false if the stream was torn down
// before the payload could be queued, in which case the dispatcher must
// not reply with OKAY.
func (s *Stream) enqueue(payload []byte) bool {
	select {
	case s.readQueue <- payload:
		return true
	case <-s.closed:
		return false
	}
}

// ack is invoked by the dispatcher's inbound loop when OKAY arrives for
// this stream, refilling the write token. A duplicate or out-of-protocol
// OKAY is tolerated as a no-op rather than panicking on a full channel.
func (s *Stream) ack() {
	select {
	case s.writeGate <- struct{}{}:
	default:
	}
}

// dispose forcibly tears down the stream's internal state: it unblocks any
// blocked Read or Write with err (or ErrStreamClosed if err is nil) and
// marks the stream closed. It does not touch the dispatcher's stream table
// or transmit anything; callers that need those side effects use Close or
// the dispatcher's teardown path.
func (s *Stream) dispose(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.closed)
	})
}

// readTerminalError reports the error Read should surface once closed is
// known to be closed: a transport/protocol failure if one caused the
// teardown, otherwise a clean io.EOF, since ADB has no notion of half
// closure distinct from full stream teardown.
func (s *Stream) readTerminalError() error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return io.EOF
}

// writeTerminalError is the write-side analogue of readTerminalError; an
// orderly close still rejects further writes outright rather than silently
// discarding them.
func (s *Stream) writeTerminalError() error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return ErrStreamClosed
}

// Close implements net.Conn.Close. It notifies the peer, removes the
// stream from the dispatcher's table, and unblocks local callers.
// Subsequent calls are no-ops returning nil.
func (s *Stream) Close() error {
	return s.dispatcher.teardownStream(s, true)
}

// LocalAddr implements net.Conn.LocalAddr.
func (s *Stream) LocalAddr() net.Addr {
	return &streamAddress{id: s.localID}
}

// RemoteAddr implements net.Conn.RemoteAddr.
func (s *Stream) RemoteAddr() net.Addr {
	return &streamAddress{remote: true, id: s.remoteID}
}

// SetDeadline implements net.Conn.SetDeadline.
func (s *Stream) SetDeadline(t time.Time) error {
	if err := s.SetReadDeadline(t); err != nil {
		return err
	}
	return s.SetWriteDeadline(t)
}

// SetReadDeadline implements net.Conn.SetReadDeadline.
func (s *Stream) SetReadDeadline(t time.Time) error {
	s.readDeadlineLock.Lock()
	defer s.readDeadlineLock.Unlock()
	s.readDeadline = t
	atomic.StoreUint32(&s.readTimedOut, 0)
	if !t.IsZero() && !t.After(time.Now()) {
		atomic.StoreUint32(&s.readTimedOut, 1)
	}
	return nil
}

// SetWriteDeadline implements net.Conn.SetWriteDeadline.
func (s *Stream) SetWriteDeadline(t time.Time) error {
	s.writeDeadlineLock.Lock()
	defer s.writeDeadlineLock.Unlock()
	s.writeDeadline = t
	atomic.StoreUint32(&s.writeTimedOut, 0)
	if !t.IsZero() && !t.After(time.Now()) {
		atomic.StoreUint32(&s.writeTimedOut, 1)
	}
	return nil
}

// readTimeoutChannel returns a channel that fires once the current read
// deadline (captured at call time) elapses, and a function to release the
// underlying timer. A deadline set concurrently with a blocked Read will
// not retroactively interrupt it until the next call; callers wanting
// immediate interruption should close the stream instead.
func (s *Stream) readTimeoutChannel() (<-chan time.Time, func()) {
	s.readDeadlineLock.Lock()
	deadline := s.readDeadline
	s.readDeadlineLock.Unlock()
	return deadlineChannel(deadline)
}

// writeTimeoutChannel is the write-side analogue of readTimeoutChannel.
func (s *Stream) writeTimeoutChannel() (<-chan time.Time, func()) {
	s.writeDeadlineLock.Lock()
	deadline := s.writeDeadline
	s.writeDeadlineLock.Unlock()
	return deadlineChannel(deadline)
}

// deadlineChannel returns a channel that fires at deadline, or a nil
// channel (which blocks forever in a select) if deadline is zero.
func deadlineChannel(deadline time.Time) (<-chan time.Time, func()) {
	if deadline.IsZero() {
		return nil, func() {}
	}
	timer := time.NewTimer(time.Until(deadline))
	return timer.C, func() { timer.Stop() }
}
