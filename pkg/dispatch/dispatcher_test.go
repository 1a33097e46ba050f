package dispatch

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/adblink/adblink/pkg/wire"
)

// scriptedTransport is a test double that lets a test script exactly which
// packets the "peer" sends and observe exactly what the dispatcher writes,
// without involving real bytes or a real carrier.
type scriptedTransport struct {
	inbound  chan wire.Packet
	outbound chan wire.Packet

	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		inbound:  make(chan wire.Packet, 16),
		outbound: make(chan wire.Packet, 16),
		closed:   make(chan struct{}),
	}
}

func (t *scriptedTransport) ReadPacket() (wire.Packet, error) {
	select {
	case p := <-t.inbound:
		return p, nil
	case <-t.closed:
		return wire.Packet{}, io.EOF
	}
}

func (t *scriptedTransport) WritePacket(p wire.Packet) error {
	select {
	case t.outbound <- p:
		return nil
	case <-t.closed:
		return io.EOF
	}
}

func (t *scriptedTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// peerSends injects an inbound packet as if the peer transmitted it.
func (t *scriptedTransport) peerSends(command wire.Command, arg0, arg1 uint32, payload []byte) {
	t.inbound <- wire.Packet{Command: command, Arg0: arg0, Arg1: arg1, Payload: payload}
}

// expectSent asserts that the dispatcher writes the given packet within a
// short deadline, failing the test otherwise.
func expectSent(t *testing.T, tr *scriptedTransport, command wire.Command, arg0, arg1 uint32) wire.Packet {
	t.Helper()
	select {
	case p := <-tr.outbound:
		if p.Command != command || p.Arg0 != arg0 || p.Arg1 != arg1 {
			t.Fatalf("unexpected packet sent: got %s(%d,%d), expected %s(%d,%d)", p.Command, p.Arg0, p.Arg1, command, arg0, arg1)
		}
		return p
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s(%d,%d)", command, arg0, arg1)
		return wire.Packet{}
	}
}

// expectNothingSent asserts that no packet is written within a short window,
// used to prove that stop-and-wait or backpressure is actually withholding
// transmission rather than racing ahead.
func expectNothingSent(t *testing.T, tr *scriptedTransport) {
	t.Helper()
	select {
	case p := <-tr.outbound:
		t.Fatalf("expected no packet, got %s(%d,%d)", p.Command, p.Arg0, p.Arg1)
	case <-time.After(50 * time.Millisecond):
	}
}

// S1 — Local open accepted.
func TestCreateStreamAccepted(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	type result struct {
		stream *Stream
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		s, err := d.CreateStream("shell:")
		resultCh <- result{s, err}
	}()

	expectSent(t, tr, wire.CommandOPEN, 1, 0)
	tr.peerSends(wire.CommandOKAY, 17, 1, nil)

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("CreateStream failed: %v", r.err)
		}
		if r.stream.localID != 1 || r.stream.remoteID != 17 {
			t.Fatalf("unexpected stream ids: local=%d remote=%d", r.stream.localID, r.stream.remoteID)
		}
	case <-time.After(time.Second):
		t.Fatal("CreateStream did not return")
	}
}

// S2 — Local open rejected.
func TestCreateStreamRejected(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	resultCh := make(chan error, 1)
	go func() {
		_, err := d.CreateStream("shell:")
		resultCh <- err
	}()

	expectSent(t, tr, wire.CommandOPEN, 1, 0)
	tr.peerSends(wire.CommandCLSE, 0, 1, nil)

	select {
	case err := <-resultCh:
		if err != ErrOpenRejected {
			t.Fatalf("expected ErrOpenRejected, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("CreateStream did not return")
	}

	if d.pendingOpens.contains(1) {
		t.Fatal("pending open for id 1 should have been removed")
	}
	d.streamsLock.Lock()
	_, exists := d.streams[1]
	d.streamsLock.Unlock()
	if exists {
		t.Fatal("stream 1 should not exist after rejection")
	}
}

// establishedStream is a test helper that drives the dispatcher through an
// S1-style open and returns the resulting stream.
func establishedStream(t *testing.T, tr *scriptedTransport, d *Dispatcher) *Stream {
	t.Helper()
	resultCh := make(chan *Stream, 1)
	errCh := make(chan error, 1)
	go func() {
		s, err := d.CreateStream("shell:")
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- s
	}()
	expectSent(t, tr, wire.CommandOPEN, 1, 0)
	tr.peerSends(wire.CommandOKAY, 17, 1, nil)
	select {
	case s := <-resultCh:
		return s
	case err := <-errCh:
		t.Fatalf("CreateStream failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("CreateStream did not return")
	}
	return nil
}

// S3 — Stop-and-wait.
func TestStopAndWait(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	stream := establishedStream(t, tr, d)

	writeErrs := make(chan error, 2)
	go func() { _, err := stream.Write([]byte("A")); writeErrs <- err }()

	expectSent(t, tr, wire.CommandWRTE, 1, 17)

	go func() { _, err := stream.Write([]byte("B")); writeErrs <- err }()
	expectNothingSent(t, tr)

	tr.peerSends(wire.CommandOKAY, 17, 1, nil)
	expectSent(t, tr, wire.CommandWRTE, 1, 17)

	tr.peerSends(wire.CommandOKAY, 17, 1, nil)

	for i := 0; i < 2; i++ {
		select {
		case err := <-writeErrs:
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("write did not complete")
		}
	}
}

// S4 — Inbound data with backpressure.
func TestInboundBackpressure(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	stream := establishedStream(t, tr, d)

	// The read queue is unbuffered (the default StreamReadQueueCapacity,
	// 0), so enqueue blocks until the application actually consumes the
	// payload; the reciprocating OKAY must be withheld until then.
	tr.peerSends(wire.CommandWRTE, 17, 1, []byte("first"))
	expectNothingSent(t, tr)

	buf := make([]byte, 16)
	n, err := stream.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "first" {
		t.Fatalf("unexpected read: %q", buf[:n])
	}

	// Consuming the payload unblocks enqueue and releases its OKAY.
	expectSent(t, tr, wire.CommandOKAY, 1, 17)

	// A second WRTE arrives before the application reads again; enqueue
	// blocks and the OKAY must again be withheld.
	tr.peerSends(wire.CommandWRTE, 17, 1, []byte("second"))
	expectNothingSent(t, tr)

	n, err = stream.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "second" {
		t.Fatalf("unexpected read: %q", buf[:n])
	}

	expectSent(t, tr, wire.CommandOKAY, 1, 17)
}

// S5 — Stale OKAY.
func TestStaleOKAY(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	tr.peerSends(wire.CommandOKAY, 9, 5, nil)
	expectSent(t, tr, wire.CommandCLSE, 0, 9)
}

// S6 — Peer-initiated open with hook accept.
func TestIncomingOpenAccepted(t *testing.T) {
	tr := newScriptedTransport()
	var captured *IncomingEvent
	eventCh := make(chan *IncomingEvent, 1)
	hook := func(event *IncomingEvent) {
		event.Handled = true
		eventCh <- event
	}
	d := New(tr, hook, nil, nil)
	defer d.Dispose()

	tr.peerSends(wire.CommandOPEN, 42, 0, []byte("sync:\x00"))

	select {
	case captured = <-eventCh:
	case <-time.After(time.Second):
		t.Fatal("hook was not invoked")
	}
	if captured.ServiceString != "sync:" {
		t.Fatalf("expected stripped service string %q, got %q", "sync:", captured.ServiceString)
	}

	expectSent(t, tr, wire.CommandOKAY, 1, 42)

	d.streamsLock.Lock()
	_, exists := d.streams[1]
	d.streamsLock.Unlock()
	if !exists {
		t.Fatal("accepted stream should be registered under id 1")
	}
}

// S6 (decline branch) — peer-initiated open rejected by the hook.
func TestIncomingOpenRejected(t *testing.T) {
	tr := newScriptedTransport()
	hook := func(event *IncomingEvent) {
		event.Handled = false
	}
	d := New(tr, hook, nil, nil)
	defer d.Dispose()

	tr.peerSends(wire.CommandOPEN, 42, 0, []byte("sync:"))

	expectSent(t, tr, wire.CommandCLSE, 0, 42)

	d.streamsLock.Lock()
	count := len(d.streams)
	d.streamsLock.Unlock()
	if count != 0 {
		t.Fatalf("expected no streams registered, found %d", count)
	}
}

// Round-trip property: close() on a stream N times behaves as once, and a
// full create+write+close sequence produces the expected protocol trace.
func TestCreateWriteCloseRoundTrip(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	stream := establishedStream(t, tr, d)

	writeErrs := make(chan error, 1)
	go func() { _, err := stream.Write([]byte("hi\n")); writeErrs <- err }()
	expectSent(t, tr, wire.CommandWRTE, 1, 17)
	tr.peerSends(wire.CommandOKAY, 17, 1, nil)
	if err := <-writeErrs; err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	expectSent(t, tr, wire.CommandCLSE, 1, 17)

	for i := 0; i < 3; i++ {
		if err := stream.Close(); err != nil {
			t.Fatalf("repeated Close should be a no-op, got: %v", err)
		}
	}
	expectNothingSent(t, tr)

	if _, err := stream.Write([]byte("x")); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed after close, got %v", err)
	}
	if _, err := stream.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}

// Dispose property: after dispose, every stream is closed, pending opens
// and reads/writes fail, and Disconnected resolves. Repeated Dispose calls
// behave as one.
func TestDisposeUnblocksEverything(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)

	stream := establishedStream(t, tr, d)

	pendingErrCh := make(chan error, 1)
	go func() {
		_, err := d.CreateStream("sync:")
		pendingErrCh <- err
	}()
	expectSent(t, tr, wire.CommandOPEN, 2, 0)

	readErrCh := make(chan error, 1)
	go func() {
		_, err := stream.Read(make([]byte, 1))
		readErrCh <- err
	}()

	for i := 0; i < 3; i++ {
		if err := d.Dispose(); err != nil {
			t.Fatalf("Dispose returned an error: %v", err)
		}
	}

	select {
	case <-d.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("Disconnected did not resolve")
	}

	select {
	case err := <-pendingErrCh:
		if err != ErrDispatcherClosed {
			t.Fatalf("expected ErrDispatcherClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending CreateStream did not unblock")
	}

	select {
	case err := <-readErrCh:
		if err == nil {
			t.Fatal("expected blocked Read to fail after dispose")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Read did not unblock")
	}

	if !isClosed(stream.closed) {
		t.Fatal("stream should be closed after dispatcher dispose")
	}
}

// Protocol violation handling: an unexpected handshake-phase command is
// reported on the error channel and discarded rather than killing the
// dispatcher.
func TestUnexpectedCommandReportsProtocolViolation(t *testing.T) {
	tr := newScriptedTransport()
	d := New(tr, nil, nil, nil)
	defer d.Dispose()

	violations := make(chan error, 1)
	d.OnError(func(err error) { violations <- err })

	tr.peerSends(wire.CommandCNXN, 0, 0, nil)

	select {
	case err := <-violations:
		if _, ok := err.(*ProtocolViolation); !ok {
			t.Fatalf("expected *ProtocolViolation, got %T", err)
		}
	case <-time.After(time.Second):
		t.Fatal("protocol violation was not reported")
	}

	if isClosed(d.closed) {
		t.Fatal("dispatcher should remain open after a discarded protocol violation")
	}
}
