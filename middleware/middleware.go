// Package middleware wraps registered function handlers. Middlewares compose
// like an onion:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
//
// so A runs first on the way in and last on the way out.
package middleware

import (
	"ipcrpc/message"
)

// HandlerFunc is the signature of a registered function. state is the
// calling connection's session state.
type HandlerFunc[S any] func(state *S, call *message.Call) error

type Middleware[S any] func(next HandlerFunc[S]) HandlerFunc[S]

// Chain composes middlewares into one.
func Chain[S any](middlewares ...Middleware[S]) Middleware[S] {
	return func(next HandlerFunc[S]) HandlerFunc[S] {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
