// Package transport supplies the message channels the RPC core runs over.
//
// The core only relies on the contract below: a Listener hands out
// Channels, and a Channel moves whole messages. Framing inside a byte
// stream is this package's business, not the server's.
//
//	Listener.Accept ──► Channel ──Recv──► one complete request
//	                            ◄─Send─── one complete response
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by Accept once the listener stops handing out
	// connections, and by Send on a closed channel.
	ErrClosed = errors.New("transport: closed")
	// ErrMessageTooLarge rejects messages over MaxMessageSize.
	ErrMessageTooLarge = errors.New("transport: message too large")
)

// Channel carries complete messages in both directions. Recv returns io.EOF
// when the peer closed the channel cleanly between messages.
type Channel interface {
	Recv() ([]byte, error)
	Send(msg []byte) error
	Close() error
}

// Listener accepts channels. Accept returns ErrClosed after Close.
type Listener interface {
	Accept() (Channel, error)
	Close() error
	Addr() string
}

// Dialer opens a channel to addr.
type Dialer func(ctx context.Context, addr string) (Channel, error)
