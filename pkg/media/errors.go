package media

import "errors"

var (
	// ErrEngine marks pipeline or endpoint creation failures.
	// Non-fatal to the process: the affected room or endpoint reports it
	// and stays releasable.
	ErrEngine = errors.New("media engine failure")
	// ErrNegotiation marks a failed offer/answer exchange. The endpoint
	// remains releasable but not usable.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrEndpointReleased is returned by any operation on an endpoint
	// after its release.
	ErrEndpointReleased = errors.New("endpoint released")
)
