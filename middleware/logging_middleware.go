package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"p2prpc/message"
)

// LoggingMiddleware records the service/method, duration, and any error
// for each inbound RPC, via the ambient zap logger rather than log.Printf.
func LoggingMiddleware(log *zap.SugaredLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage)) {
			start := time.Now()
			next(ctx, req, func(resp *message.RPCMessage) {
				duration := time.Since(start)
				if resp.Error != "" {
					log.Warnw("rpc failed", "service", req.Service, "method", req.Method, "duration", duration, "error", resp.Error)
				} else {
					log.Debugw("rpc completed", "service", req.Service, "method", req.Method, "duration", duration)
				}
				done(resp)
			})
		}
	}
}
