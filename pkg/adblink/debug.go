package adblink

import "os"

// DebugEnabled controls whether verbose internal diagnostics are enabled. It
// is set automatically based on the ADBLINK_DEBUG environment variable.
var DebugEnabled = os.Getenv("ADBLINK_DEBUG") == "1"
