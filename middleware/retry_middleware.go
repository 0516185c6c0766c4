package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"p2prpc/message"
)

// RetryMiddleware retries a retryable failure with exponential backoff.
// Because the wrapped handler completes asynchronously (it calls done
// rather than returning), the retry delay is driven by time.AfterFunc
// rather than a blocking sleep — a worker-goroutine sleep would block
// whichever goroutine is carrying the inbound dispatch for the whole
// backoff window, which this design never does.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, log *zap.SugaredLogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.RPCMessage, done func(*message.RPCMessage)) {
			var attempt func(n int)
			attempt = func(n int) {
				next(ctx, req, func(resp *message.RPCMessage) {
					if resp.Error == "" || n >= maxRetries || !isRetryable(resp.Error) {
						done(resp)
						return
					}
					delay := baseDelay * time.Duration(1<<uint(n))
					log.Debugw("retrying rpc", "service", req.Service, "method", req.Method, "attempt", n+1, "delay", delay, "error", resp.Error)
					time.AfterFunc(delay, func() { attempt(n + 1) })
				})
			}
			attempt(0)
		}
	}
}

func isRetryable(errText string) bool {
	return strings.Contains(errText, "timeout") || strings.Contains(errText, "connection refused")
}
