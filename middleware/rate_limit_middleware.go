package middleware

import (
	"errors"

	"golang.org/x/time/rate"

	"ipcrpc/message"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimit rejects calls beyond r per second (token bucket with the given
// burst). The limiter is shared by every function and connection the
// middleware wraps; rejected calls fail before the function lock is taken.
func RateLimit[S any](r float64, burst int) Middleware[S] {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc[S]) HandlerFunc[S] {
		return func(state *S, call *message.Call) error {
			if !limiter.Allow() {
				return ErrRateLimited
			}
			return next(state, call)
		}
	}
}
