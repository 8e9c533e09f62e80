package middleware

import (
	"time"

	"go.uber.org/zap"

	"ipcrpc/message"
)

// Logging writes an access log line per call. Failed calls carry the error,
// which is never sent back to the client.
func Logging[S any](logger *zap.Logger) Middleware[S] {
	return func(next HandlerFunc[S]) HandlerFunc[S] {
		return func(state *S, call *message.Call) error {
			start := time.Now()
			err := next(state, call)
			fields := []zap.Field{
				zap.Uint32("function_id", call.FunctionID()),
				zap.Uint32("call_id", call.CallID()),
				zap.Duration("duration", time.Since(start)),
				zap.Int("reply_bytes", len(call.Reply())),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			logger.Info("call", fields...)
			return err
		}
	}
}
