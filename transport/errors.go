package transport

import "errors"

// Error kinds surfaced to callers.
var (
	ErrBindFailed         = errors.New("transport: bind failed")
	ErrResourceFailed     = errors.New("transport: worker could not be started")
	ErrUnknownConnection  = errors.New("transport: unknown connection")
	ErrConnectFailed      = errors.New("transport: connect failed")
	ErrStopped            = errors.New("transport: engine stopped")
	ErrMalformedFrame     = errors.New("transport: malformed frame")
	ErrNoRendezvousPeer   = errors.New("transport: no rendezvous peer configured")
	ErrHolePunchingFailed = errors.New("transport: hole punching failed")
)
