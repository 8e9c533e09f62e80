package client

import (
	"time"

	"go.uber.org/zap"

	"ipcrpc/transport"
)

// DefaultPoolSize is the number of connections kept per server instance.
const DefaultPoolSize = 4

type Option func(*options)

type options struct {
	logger   *zap.Logger
	poolSize int
	retries  int
	backoff  time.Duration
	dialer   transport.Dialer
}

func defaultOptions() options {
	return options{
		logger:   zap.NewNop(),
		poolSize: DefaultPoolSize,
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPoolSize limits the connections per server instance.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithRetry retries a call up to n more times when it failed before the
// request reached the transport, waiting backoff between attempts. A call
// whose request was sent is never repeated, whether or not a reply came back.
func WithRetry(n int, backoff time.Duration) Option {
	return func(o *options) {
		o.retries = n
		o.backoff = backoff
	}
}

// WithDialer replaces the stream dialer, for example with a
// transport.PipeListener's. The instance network is ignored then.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}
