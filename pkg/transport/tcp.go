package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// DialTCP dials an ADB host transport over TCP, the common case for talking
// to an emulator's console port or a port forwarded by adb-server. timeout
// of zero or less disables the dial timeout.
func DialTCP(address string, timeout time.Duration, options Options) (Transport, error) {
	if timeout < 0 {
		timeout = 0
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, errors.Wrap(err, "unable to dial TCP transport")
	}
	return NewStreamTransport(conn, options), nil
}
