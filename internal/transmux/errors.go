package transmux

import "errors"

// ErrInvariantViolation is returned when the coalescer is asked to emit a
// segment while no track is registered at all — a caller
// error, not a malformed-input condition, which would otherwise produce
// a ftyp+moov with no tracks. The instance must be reset before it can
// be used again.
var ErrInvariantViolation = errors.New("transmux: invariant violation: no tracks registered")
