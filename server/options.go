package server

import "go.uber.org/zap"

// Option configures a Server.
type Option func(*options)

type options struct {
	logger *zap.Logger
	cloner any // func(S) S, checked against the session type in NewServer
}

// WithLogger sets the server's logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCloner sets how the session template is copied for each new
// connection. Use it when S holds maps, slices or pointers that must not be
// shared between connections.
func WithCloner[S any](clone func(S) S) Option {
	return func(o *options) { o.cloner = clone }
}
