package middleware

import (
	"fmt"

	"ipcrpc/message"
)

// Recover turns a handler panic into an error so the connection survives
// and the client receives ServerInternalError.
func Recover[S any]() Middleware[S] {
	return func(next HandlerFunc[S]) HandlerFunc[S] {
		return func(state *S, call *message.Call) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("function %d panicked: %v", call.FunctionID(), r)
				}
			}()
			return next(state, call)
		}
	}
}
