// Package sseerr defines the error kinds shared by every scheme core,
// the encrypted store, and the key-management layer.
package sseerr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", KindX) so callers can
// recover the kind with errors.Is while still getting a human message.
var (
	// ErrMissingState is returned when a required key file or counter-map
	// directory is absent while opening an existing client/server.
	ErrMissingState = errors.New("sse: missing state")

	// ErrCorruptState is returned when a key file has the wrong length or
	// a counter map fails to open.
	ErrCorruptState = errors.New("sse: corrupt state")

	// ErrInvalidStateTransition is returned for a duplicate setup, a search
	// before setup, or a bulk-update call without an open session.
	ErrInvalidStateTransition = errors.New("sse: invalid state transition")

	// ErrStorageUnavailable wraps a KV put/get/flush failure.
	ErrStorageUnavailable = errors.New("sse: storage unavailable")

	// ErrMissingToken marks a server-side integrity warning: an update
	// token that should be in the store was not found. Never fatal.
	ErrMissingToken = errors.New("sse: missing token")

	// ErrTransportFailed marks a non-OK RPC status from a peer.
	ErrTransportFailed = errors.New("sse: transport failed")

	// ErrInvalidArgument marks an out-of-range or misaligned argument to a
	// lower-level primitive (wrong posting width, bad key length, etc).
	ErrInvalidArgument = errors.New("sse: invalid argument")
)
