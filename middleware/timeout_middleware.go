package middleware

import (
	"context"
	"sync"
	"time"

	"p2prpc/message"
)

// TimeOutMiddleware enforces a maximum duration for each RPC dispatch.
// Because next is callback-based (it calls done instead of returning), no
// extra goroutine+channel is needed to race it against the deadline — a
// timer and a sync.Once suffice to make sure done fires exactly once,
// whichever arrives first. The handler is not cancelled if the timeout
// wins; it keeps running and its eventual done call becomes a no-op.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage)) {
			var once sync.Once
			timer := time.AfterFunc(timeout, func() {
				once.Do(func() {
					done(&message.RPCMessage{
						MessageID: req.MessageID,
						Type:      message.RpcTypeResponse,
						Service:   req.Service,
						Method:    req.Method,
						Error:     "request timed out",
					})
				})
			})

			next(ctx, req, func(resp *message.RPCMessage) {
				timer.Stop()
				once.Do(func() { done(resp) })
			})
		}
	}
}
