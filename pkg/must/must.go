// Package must provides small helpers for operations whose error return
// can't be handled meaningfully at the call site (most often during
// best-effort cleanup) but shouldn't be silently discarded either.
package must

import (
	"io"

	"github.com/adblink/adblink/pkg/logging"
)

// Close closes c, logging a warning if it fails.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// CloseWrite half-closes cw for writing, logging a warning if it fails.
func CloseWrite(cw interface{ CloseWrite() error }, logger *logging.Logger) {
	if err := cw.CloseWrite(); err != nil {
		logger.Warnf("unable to close for writing: %s", err.Error())
	}
}

// IOCopy copies from src to dst, logging a warning if the copy fails partway
// through.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy: %s", err.Error())
	}
}
