package dispatch

import "fmt"

// dispatcherAddress implements net.Addr for a Dispatcher, standing in for
// net.Listener.Addr since Dispatcher plays that role for peer-initiated
// streams.
type dispatcherAddress struct{}

// Network implements net.Addr.Network.
func (a *dispatcherAddress) Network() string {
	return "adb"
}

// String implements net.Addr.String.
func (a *dispatcherAddress) String() string {
	return "adb:dispatcher"
}

// streamAddress implements net.Addr for a Stream.
type streamAddress struct {
	// remote indicates whether this address names the remote (true) or
	// local (false) side of the stream.
	remote bool
	// id is the stream identifier in the corresponding namespace.
	id uint32
}

// Network implements net.Addr.Network.
func (a *streamAddress) Network() string {
	return "adb"
}

// String implements net.Addr.String.
func (a *streamAddress) String() string {
	if a.remote {
		return fmt.Sprintf("remote-stream:%d", a.id)
	}
	return fmt.Sprintf("local-stream:%d", a.id)
}
