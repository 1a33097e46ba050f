package dispatch

import "github.com/adblink/adblink/pkg/wire"

// Configuration encodes dispatcher configuration. Checksum handling is a
// wire-level concern and lives on the transport's own Options instead (see
// pkg/transport), since the dispatcher never touches raw bytes.
type Configuration struct {
	// AppendNullToServiceString controls whether outbound service strings
	// carry a trailing NUL byte, required to interoperate with daemons
	// older than Android 9 that parse service strings with C semantics.
	AppendNullToServiceString bool
	// MaxPayloadSize is the hard upper bound for any single outbound
	// payload; a Write exceeding it is fragmented across multiple WRTE
	// packets. If less than or equal to 0, wire.MaxPayloadSizeV2 is used.
	MaxPayloadSize int
	// StreamReadQueueCapacity is the number of unconsumed inbound WRTE
	// payloads that will be buffered per stream before enqueue blocks
	// (and, per the stop-and-wait protocol, before the reciprocating OKAY
	// is withheld). The default, 0, makes the read queue unbuffered: the
	// reciprocating OKAY for a WRTE is withheld until the application has
	// actually consumed it via Read, the strictest possible stop-and-wait
	// behavior. Negative values are clamped to 0.
	StreamReadQueueCapacity int
}

// DefaultConfiguration returns the default dispatcher configuration.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		AppendNullToServiceString: false,
		MaxPayloadSize:            wire.MaxPayloadSizeV2,
		StreamReadQueueCapacity:   0,
	}
}

// normalize normalizes out-of-range configuration values.
func (c *Configuration) normalize() {
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = wire.MaxPayloadSizeV2
	}
	if c.StreamReadQueueCapacity < 0 {
		c.StreamReadQueueCapacity = 0
	}
}
