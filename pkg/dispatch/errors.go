package dispatch

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrDispatcherClosed is returned from operations that fail because the
	// dispatcher has been disposed, either explicitly or due to transport
	// failure.
	ErrDispatcherClosed = errors.New("dispatcher closed")
	// ErrOpenRejected is returned from CreateStream when the peer closes the
	// stream before it is established, i.e. rejects the open request.
	ErrOpenRejected = errors.New("peer rejected stream open")
	// ErrStreamClosed is returned from stream operations performed after the
	// stream has been torn down.
	ErrStreamClosed = errors.New("stream closed")
	// ErrPayloadTooLarge is returned when an outbound payload exceeds the
	// dispatcher's configured maximum payload size.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")
)

// ProtocolViolation indicates that an inbound packet carried field values
// that are impossible under the protocol's own rules (for example, a
// handshake-phase command such as CNXN arriving after the dispatcher has
// been constructed). Stale OKAY/CLSE/WRTE packets are not reported this
// way; they are tolerated as the dispatcher's handlers describe. It is logged and
// the offending packet discarded; it is not escalated to dispatcher closure.
type ProtocolViolation struct {
	// Reason describes what was wrong with the packet.
	Reason string
}

// Error implements error.Error.
func (v *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", v.Reason)
}

// newProtocolViolation constructs a ProtocolViolation with a formatted reason.
func newProtocolViolation(format string, v ...interface{}) *ProtocolViolation {
	return &ProtocolViolation{Reason: fmt.Sprintf(format, v...)}
}
