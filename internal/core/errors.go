// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and test
// with errors.Is.
var (
	// Packet buffer errors: contiguity or growth could not be satisfied.
	// Fatal for the current packet only, which is dropped.
	ErrBuffer = errors.New("gtpstamp: packet buffer error")

	// A header field implies an offset outside the buffer's logical bounds,
	// or the declared lengths disagree. The packet passes through untouched.
	ErrMalformedHeader = errors.New("gtpstamp: malformed header")

	// Configuration errors
	ErrConfigInvalid = errors.New("gtpstamp: invalid configuration")

	// Interception point errors
	ErrQueueClosed = errors.New("gtpstamp: queue closed")
)
