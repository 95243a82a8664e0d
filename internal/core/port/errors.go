// If you are AI: This file defines the sentinel errors returned by port operations.

package port

import "errors"

var (
	// ErrBadName is returned for names not of the form endpoint@host[:port].
	ErrBadName = errors.New("malformed port name")
	// ErrUnknownTransport is returned for unrecognised transport type tokens.
	ErrUnknownTransport = errors.New("unknown transport type")
	// ErrPortClosed is returned when writing to a closed, refused or released port.
	ErrPortClosed = errors.New("port closed")
	// ErrNotWritable is returned when writing to a read or listen port.
	ErrNotWritable = errors.New("port not writable")
	// ErrPendingFull is returned when a write would exceed the pending-outbound cap.
	ErrPendingFull = errors.New("pending outbound buffer full")
)
