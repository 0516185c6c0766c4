// Package controller implements the per-call Controller: the object a
// caller passes into CallMethod to observe or influence one RPC's
// timeout, round-trip time, failure text, and cancellation.
package controller

import (
	"sync"
	"time"
)

// DefaultTimeout is the timeout a call gets when none is set explicitly.
const DefaultTimeout = 7000 * time.Millisecond

// Controller carries the mutable state of a single in-flight (or
// completed) RPC call. All fields are guarded by an internal mutex since
// a call's timeout fires on the timer's goroutine while the caller may
// concurrently read rtt/failure text or call StartCancel from its own
// goroutine.
type Controller struct {
	mu          sync.Mutex
	timeoutMs   int64
	rttMs       int64
	failureText string
	requestID   uint32
	cancelled   bool
}

// New returns a Controller with the default timeout and no failure.
func New() *Controller {
	return &Controller{timeoutMs: DefaultTimeout.Milliseconds()}
}

// SetTimeout stores the given duration, expressed in seconds, as
// milliseconds.
func (c *Controller) SetTimeout(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutMs = int64(seconds * 1000)
}

// Timeout returns the configured timeout, falling back to DefaultTimeout
// if none (or a non-positive value) was set.
func (c *Controller) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeoutMs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.timeoutMs) * time.Millisecond
}

// SetTimeoutMillis sets the timeout directly in milliseconds.
func (c *Controller) SetTimeoutMillis(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutMs = ms
}

// StartCancel marks this call cancelled. It does not abort an in-flight
// send; it only races the manager's pending-request removal against a
// response or timeout that may already be in flight.
func (c *Controller) StartCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// IsCancelled reports whether StartCancel has been called.
func (c *Controller) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// SetRTT records the measured round-trip time for a completed call.
func (c *Controller) SetRTT(rtt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rttMs = rtt.Milliseconds()
}

// RTT returns the recorded round-trip time.
func (c *Controller) RTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.rttMs) * time.Millisecond
}

// SetFailureText records why a call failed. Passing "" clears it.
func (c *Controller) SetFailureText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureText = text
}

// FailureText returns the recorded failure, if any.
func (c *Controller) FailureText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureText
}

// Failed reports whether a failure has been recorded. Failure text empty
// implies Failed() == false by construction, since this is the only
// predicate derived from it.
func (c *Controller) Failed() bool {
	return c.FailureText() != ""
}

// SetRequestID records the message id this controller is attached to.
func (c *Controller) SetRequestID(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestID = id
}

// RequestID returns the message id this controller is attached to.
func (c *Controller) RequestID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID
}

// Reset clears failure text, round-trip time, request id, and restores
// the default timeout — but does not clear cancelled. This lets a
// Controller be reused across a retried call while still honoring a
// cancellation requested mid-retry.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureText = ""
	c.rttMs = 0
	c.timeoutMs = DefaultTimeout.Milliseconds()
	c.requestID = 0
}
