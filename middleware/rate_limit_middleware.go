package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"p2prpc/message"
)

// RateLimitMiddleware guards against a request flood using one token
// bucket shared by every request passing through this middleware, whatever
// connection it arrived on: r tokens refill per second, up to burst.
//
// CRITICAL: the limiter is created in the outer closure (once per
// middleware construction), not inside the inner handler — otherwise
// every request would see a fresh full bucket.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage)) {
			if !limiter.Allow() {
				done(&message.RPCMessage{
					MessageID: req.MessageID,
					Type:      message.RpcTypeResponse,
					Service:   req.Service,
					Method:    req.Method,
					Error:     "rate limit exceeded",
				})
				return
			}
			next(ctx, req, done)
		}
	}
}
