package realtime

import "errors"

// Per-event failures. All of these are reported to the originating
// connection as an error frame and never terminate the connection loop.
var (
	ErrNotAParticipant = errors.New("not a participant of this conversation")
	ErrStoreTimeout    = errors.New("store operation timed out")
	ErrStoreFailure    = errors.New("store operation failed")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrEmptyMessage    = errors.New("message needs content or media")
)
