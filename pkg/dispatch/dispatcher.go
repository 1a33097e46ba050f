package dispatch

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/adblink/adblink/pkg/logging"
	"github.com/adblink/adblink/pkg/transport"
	"github.com/adblink/adblink/pkg/wire"
)

// Dispatcher owns a transport, the table of live streams, and the table of
// pending outbound opens. It runs the ADB stream-relevant command state
// machine (OPEN/OKAY/CLSE/WRTE) over an already-authenticated transport.
//
// The source this protocol is distilled from runs a single cooperative
// task, so that each inbound packet is handled to completion before the
// next is considered, with explicit suspension points inside enqueue,
// sendPacket, and the incoming-stream hook. Go has no cooperative scheduler
// to match that with directly, so this type realizes the same guarantees a
// different way: streamsLock serializes access to the tables precisely the
// critical sections the source notes call out, and the reader goroutine
// spawns a short-lived goroutine for each suspension point (enqueue, hook
// invocation) rather than blocking itself on it, so a slow consumer of one
// stream never delays packets destined for another. Outbound packets all
// funnel through sendPacket, which serializes on the transport the same
// way the source's single writer ownership does.
type Dispatcher struct {
	configuration *Configuration
	transport     transport.Transport
	logger        *logging.Logger
	hook          IncomingStreamHook

	ids          *streamIDAllocator
	pendingOpens *pendingOpenTable

	streamsLock sync.Mutex
	streams     map[uint32]*Stream

	writeLock sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	errorsLock sync.Mutex
	errorFns   []func(error)
}

// New constructs a Dispatcher over an already-authenticated transport and
// immediately starts its inbound loop in a background goroutine. If
// configuration is nil, DefaultConfiguration is used. hook may be nil, in
// which case every peer-initiated OPEN is rejected.
func New(t transport.Transport, hook IncomingStreamHook, configuration *Configuration, logger *logging.Logger) *Dispatcher {
	if configuration == nil {
		configuration = DefaultConfiguration()
	} else {
		configuration.normalize()
	}
	if hook == nil {
		hook = func(event *IncomingEvent) {}
	}

	d := &Dispatcher{
		configuration: configuration,
		transport:     t,
		logger:        logger,
		hook:          hook,
		ids:           newStreamIDAllocator(),
		pendingOpens:  newPendingOpenTable(),
		streams:       make(map[uint32]*Stream),
		closed:        make(chan struct{}),
	}

	go d.read()

	return d
}

// Addr returns a net.Addr identifying this dispatcher, mirroring
// net.Listener.Addr for callers that want to treat peer-initiated streams
// like an accept loop.
func (d *Dispatcher) Addr() net.Addr {
	return &dispatcherAddress{}
}

// OnError registers a listener invoked (from the reader goroutine) whenever
// an inbound packet is discarded due to a ProtocolViolation. Listeners must
// not block.
func (d *Dispatcher) OnError(listener func(error)) {
	d.errorsLock.Lock()
	d.errorFns = append(d.errorFns, listener)
	d.errorsLock.Unlock()
}

func (d *Dispatcher) emitError(err error) {
	d.errorsLock.Lock()
	listeners := append([]func(error){}, d.errorFns...)
	d.errorsLock.Unlock()
	for _, listener := range listeners {
		listener(err)
	}
	if d.logger != nil {
		d.logger.Warn(err)
	}
}

// Disconnected returns a channel that's closed once the dispatcher has been
// fully disposed, whether via an explicit Dispose call or transport
// failure. It never carries an error value, matching the observed behavior
// of the source this protocol was distilled from (see design notes).
func (d *Dispatcher) Disconnected() <-chan struct{} {
	return d.closed
}

// sendPacket writes a single packet to the transport. Writes are
// serialized: the transport has exactly one owner.
func (d *Dispatcher) sendPacket(command wire.Command, arg0, arg1 uint32, payload []byte) error {
	if len(payload) > d.configuration.MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	d.writeLock.Lock()
	defer d.writeLock.Unlock()
	if isClosed(d.closed) {
		return ErrDispatcherClosed
	}
	err := d.transport.WritePacket(wire.Packet{Command: command, Arg0: arg0, Arg1: arg1, Payload: payload})
	if err != nil {
		go d.Dispose()
		return errors.Wrap(err, "transport write failed")
	}
	return nil
}

// CreateStream opens a new outbound stream for serviceString and blocks
// until the peer accepts (first OKAY) or rejects (CLSE) it, or the
// dispatcher closes.
func (d *Dispatcher) CreateStream(serviceString string) (*Stream, error) {
	if isClosed(d.closed) {
		return nil, ErrDispatcherClosed
	}

	localID := d.ids.allocate()
	entry := d.pendingOpens.add(localID)

	wireService := wire.EncodeServiceString(serviceString, d.configuration.AppendNullToServiceString)

	if err := d.sendPacket(wire.CommandOPEN, localID, 0, wireService); err != nil {
		d.pendingOpens.remove(localID)
		d.ids.release(localID)
		return nil, err
	}

	select {
	case result := <-entry.done:
		d.pendingOpens.remove(localID)
		if result.err != nil {
			d.ids.release(localID)
			return nil, result.err
		}
		stream := newStream(d, localID, true, serviceString)
		stream.establish(result.remoteID)
		d.streamsLock.Lock()
		d.streams[localID] = stream
		d.streamsLock.Unlock()
		return stream, nil
	case <-d.closed:
		d.pendingOpens.remove(localID)
		d.ids.release(localID)
		return nil, ErrDispatcherClosed
	}
}

// teardownStream tears down s: optionally notifying the peer with CLSE,
// removing it from the stream table, releasing its id for reuse, and
// unblocking any local Read/Write callers. It's idempotent, guarded by
// s's own closeOnce, so concurrent local Close calls and dispatcher-driven
// teardown (on inbound CLSE) never double-send or double-release.
func (d *Dispatcher) teardownStream(s *Stream, notifyPeer bool) error {
	var sendErr error
	s.closeOnce.Do(func() {
		if notifyPeer {
			sendErr = d.sendPacket(wire.CommandCLSE, s.localID, s.remoteID, nil)
		}
		close(s.closed)

		d.streamsLock.Lock()
		delete(d.streams, s.localID)
		d.streamsLock.Unlock()
		d.ids.release(s.localID)
	})
	return sendErr
}

// read is the dispatcher's inbound loop entry point.
func (d *Dispatcher) read() {
	for {
		packet, err := d.transport.ReadPacket()
		if err != nil {
			d.Dispose()
			return
		}
		d.dispatch(packet)
	}
}

// dispatch handles a single inbound packet, implementing the per-command
// state machine.
func (d *Dispatcher) dispatch(packet wire.Packet) {
	switch packet.Command {
	case wire.CommandOKAY:
		d.handleOKAY(packet)
	case wire.CommandCLSE:
		d.handleCLSE(packet)
	case wire.CommandWRTE:
		d.handleWRTE(packet)
	case wire.CommandOPEN:
		d.handleOPEN(packet)
	default:
		// SYNC/CNXN/AUTH are handshake-phase commands; the dispatcher
		// starts from an already-authenticated transport and has no
		// business seeing them again.
		d.emitError(newProtocolViolation("unexpected command after handshake: %s", packet.Command))
	}
}

// handleOKAY implements the OKAY case of section 4.4: resolve a pending
// open, ack an established stream, or reject a stale packet.
func (d *Dispatcher) handleOKAY(packet wire.Packet) {
	remoteID, localID := packet.Arg0, packet.Arg1

	if d.pendingOpens.resolve(localID, remoteID) {
		return
	}

	d.streamsLock.Lock()
	stream := d.streams[localID]
	d.streamsLock.Unlock()
	if stream != nil {
		stream.ack()
		return
	}

	// Stale packet from a prior connection/stream: tell the peer to
	// forget it.
	_ = d.sendPacket(wire.CommandCLSE, 0, remoteID, nil)
}

// handleCLSE implements the CLSE case of section 4.4.
func (d *Dispatcher) handleCLSE(packet wire.Packet) {
	remoteID, localID := packet.Arg0, packet.Arg1

	if remoteID == 0 && d.pendingOpens.reject(localID, ErrOpenRejected) {
		return
	}

	d.streamsLock.Lock()
	stream := d.streams[localID]
	d.streamsLock.Unlock()
	if stream == nil {
		return
	}
	if isClosed(stream.closed) {
		return
	}
	// Reply with our own CLSE to acknowledge the close, then tear down.
	// stream.closeOnce and the isClosed check above prevent this from
	// looping back and forth with the peer on a local-initiated close,
	// where the stream is already removed before the peer's CLSE arrives.
	go d.teardownStream(stream, true)
}

// handleWRTE implements the WRTE case of section 4.4. It runs in its own
// goroutine per packet so that a slow consumer on this stream never stalls
// delivery to any other stream; the reciprocating OKAY is withheld until
// enqueue returns, which is precisely how backpressure reaches the peer.
func (d *Dispatcher) handleWRTE(packet wire.Packet) {
	remoteID, localID := packet.Arg0, packet.Arg1

	d.streamsLock.Lock()
	stream := d.streams[localID]
	d.streamsLock.Unlock()
	if stream == nil {
		return
	}

	go func() {
		if stream.enqueue(packet.Payload) {
			_ = d.sendPacket(wire.CommandOKAY, localID, remoteID, nil)
		}
	}()
}

// handleOPEN implements the OPEN case of section 4.4.
func (d *Dispatcher) handleOPEN(packet wire.Packet) {
	remoteID := packet.Arg0
	serviceString := wire.DecodeServiceString(packet.Payload)

	localID := d.ids.allocate()

	stream := newStream(d, localID, false, serviceString)
	stream.establish(remoteID)

	go func() {
		event := &IncomingEvent{ServiceString: serviceString, Stream: stream}
		d.hook(event)

		if event.Handled && !isClosed(d.closed) {
			d.streamsLock.Lock()
			d.streams[localID] = stream
			d.streamsLock.Unlock()
			_ = d.sendPacket(wire.CommandOKAY, localID, remoteID, nil)
		} else if event.Handled {
			// The dispatcher was disposed while the hook was running;
			// there's no transport left to accept onto.
			stream.dispose(ErrDispatcherClosed)
		} else {
			d.ids.release(localID)
			_ = d.sendPacket(wire.CommandCLSE, 0, remoteID, nil)
		}
	}()
}

// Dispose tears down the dispatcher: every live stream is disposed and
// deregistered, every pending open is failed, the transport is closed, and
// Disconnected resolves. It's idempotent.
func (d *Dispatcher) Dispose() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.transport.Close()

		d.streamsLock.Lock()
		streams := make([]*Stream, 0, len(d.streams))
		for _, s := range d.streams {
			streams = append(streams, s)
		}
		d.streams = make(map[uint32]*Stream)
		d.streamsLock.Unlock()
		for _, s := range streams {
			s.dispose(ErrDispatcherClosed)
		}

		close(d.closed)
	})
	return err
}
