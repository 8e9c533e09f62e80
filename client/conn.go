package client

import (
	"errors"
	"fmt"
	"sync"

	"ipcrpc/message"
	"ipcrpc/protocol"
	"ipcrpc/transport"
)

var (
	// ErrBroken is returned by calls on a connection that already saw a
	// transport failure or an out-of-sequence response.
	ErrBroken = errors.New("client: connection broken")
	// ErrCallIDMismatch means a response answered a different call.
	ErrCallIDMismatch = errors.New("client: response call id mismatch")
)

// unsentError marks a failure that happened before the request left, so
// the server cannot have run the function.
type unsentError struct{ err error }

func (e *unsentError) Error() string { return e.err.Error() }
func (e *unsentError) Unwrap() error { return e.err }

// NotSent reports whether a Call error happened before the request was
// handed to the transport. Only such calls are safe to repeat; after a
// successful send the function may have run even though no reply arrived.
func NotSent(err error) bool {
	var u *unsentError
	return errors.As(err, &u)
}

// Conn is one client connection to a server. The server answers the
// requests of a connection strictly in order, so Conn allows a single call
// in flight; concurrent callers queue on its lock.
type Conn struct {
	ch transport.Channel

	mu     sync.Mutex
	seq    uint32 // last call id used
	broken bool
}

func NewConn(ch transport.Channel) *Conn {
	return &Conn{ch: ch}
}

// Call sends one request and waits for its response. A non-Ok result code
// is not an error here; see Invoke. Any failure to exchange a well-formed
// response with the right call id breaks the connection.
func (c *Conn) Call(functionID uint32, args *message.Args) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, &unsentError{ErrBroken}
	}

	c.seq++
	callID := c.seq
	if err := c.ch.Send(protocol.EncodeRequest(callID, functionID, args.Count(), args.Bytes())); err != nil {
		return nil, c.fail(&unsentError{fmt.Errorf("send call %d: %w", callID, err)})
	}
	msg, err := c.ch.Recv()
	if err != nil {
		return nil, c.fail(fmt.Errorf("receive call %d: %w", callID, err))
	}
	resp, err := protocol.DecodeResponse(msg)
	if err != nil {
		return nil, c.fail(fmt.Errorf("call %d: %w", callID, err))
	}
	if resp.CallID != callID {
		return nil, c.fail(fmt.Errorf("%w: sent %d, got %d", ErrCallIDMismatch, callID, resp.CallID))
	}
	return resp, nil
}

// Invoke calls functionID and returns the reply payload, or the error
// matching a non-Ok result code (protocol.ErrInvalidArg and friends).
func (c *Conn) Invoke(functionID uint32, args *message.Args) ([]byte, error) {
	resp, err := c.Call(functionID, args)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckError(resp.Result); err != nil {
		return nil, fmt.Errorf("function %d: %w", functionID, err)
	}
	return resp.Data, nil
}

// fail marks the connection broken and closes the channel. Called with
// c.mu held.
func (c *Conn) fail(err error) error {
	c.broken = true
	c.ch.Close()
	return err
}

// Broken reports whether the connection can no longer be used.
func (c *Conn) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
	return c.ch.Close()
}
