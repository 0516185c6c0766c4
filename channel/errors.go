package channel

import "errors"

var (
	// ErrTimeout is the completion error when a call's timeout fires
	// before a response arrives, or the manager stops while calls are
	// still pending.
	ErrTimeout = errors.New("TIMEOUT")
	// ErrCanceled is the completion error when a pending call is removed
	// via cancellation before a response or timeout reaches it first.
	ErrCanceled = errors.New("CANCELED")
	// ErrUnknownService is returned by CallMethod when the method name
	// does not parse into service/method components, or when it is called
	// on a server-side Channel that has no remote peer.
	ErrUnknownService = errors.New("channel: malformed method name")
)
