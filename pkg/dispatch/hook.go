package dispatch

// IncomingEvent is passed to an IncomingStreamHook for a peer-initiated
// OPEN. The hook accepts the stream by setting Handled to true before
// returning; the zero value rejects it.
type IncomingEvent struct {
	// ServiceString is the decoded request string the peer opened the
	// stream with (e.g. "shell:ls"), with any trailing NUL stripped.
	ServiceString string
	// Stream is the not-yet-registered stream the hook may accept. It must
	// not be used (read, written, or closed) unless Handled is set to true;
	// a rejected stream is discarded without ever being registered in the
	// dispatcher's stream table.
	Stream *Stream
	// Handled must be set to true by the hook to accept the stream.
	Handled bool
}

// IncomingStreamHook decides the fate of a peer-initiated stream open. The
// OPEN that triggered it is not acknowledged (accepted with OKAY or refused
// with CLSE) until the hook returns, but the dispatcher's reader goroutine
// moves on to the next inbound packet immediately rather than waiting on it,
// so a slow hook delays only the stream it was invoked for.
type IncomingStreamHook func(event *IncomingEvent)
