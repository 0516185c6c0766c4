// Package middleware implements an onion-model middleware chain wrapping
// the channel manager's inbound dispatch path. Because channel.Channel's
// service invocation is asynchronous — a handler completes via a
// callback, not a return value — HandlerFunc takes that callback as an
// explicit third parameter instead of returning a response.
//
// Execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after(via done) → B.after → A.after
package middleware

import (
	"context"

	"p2prpc/message"
)

// HandlerFunc processes one inbound request, eventually invoking done
// exactly once with the response envelope to send back.
type HandlerFunc func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage))

// Middleware wraps a HandlerFunc to add cross-cutting behavior around it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one given is the outermost
// layer: executed first on the way in, last on the way out (via done).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
