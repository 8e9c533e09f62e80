package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
)

// MaxMessageSize bounds a single message on a stream channel.
const MaxMessageSize = 64 * 1024 * 1024

// streamChannel frames messages over a byte stream with a 4-byte
// big-endian length prefix:
//
//	┌──────────┬───────────────┐
//	│ len (BE) │ len bytes ... │
//	└──────────┴───────────────┘
type streamChannel struct {
	conn    net.Conn
	header  [4]byte
	writeMu sync.Mutex
}

// NewStreamChannel wraps conn. Recv must not be called concurrently.
func NewStreamChannel(conn net.Conn) Channel {
	return &streamChannel{conn: conn}
}

func (c *streamChannel) Recv() ([]byte, error) {
	if _, err := io.ReadFull(c.conn, c.header[:]); err != nil {
		// io.ReadFull only reports io.EOF when nothing was read, i.e. the
		// peer hung up between messages.
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(c.header[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(c.conn, msg); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

func (c *streamChannel) Send(msg []byte) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}
	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(msg)))
	copy(buf[4:], msg)

	// Header and body go out in one write so concurrent senders can't interleave.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(buf); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *streamChannel) Close() error {
	return c.conn.Close()
}

func (c *streamChannel) String() string {
	return c.conn.RemoteAddr().String()
}

type streamListener struct {
	listener net.Listener
	network  string
}

// Listen opens a stream listener. For unix sockets a stale socket file left
// by a previous process is removed first.
func Listen(network, address string) (Listener, error) {
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	l, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &streamListener{listener: l, network: network}, nil
}

func (l *streamListener) Accept() (Channel, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return NewStreamChannel(conn), nil
}

func (l *streamListener) Close() error {
	return l.listener.Close()
}

func (l *streamListener) Addr() string {
	return l.listener.Addr().String()
}

// Dial connects a stream channel.
func Dial(ctx context.Context, network, address string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("transport dial %s %s: %w", network, address, err)
	}
	return NewStreamChannel(conn), nil
}

// StreamDialer returns a Dialer for the given network ("unix" or "tcp").
func StreamDialer(network string) Dialer {
	return func(ctx context.Context, addr string) (Channel, error) {
		return Dial(ctx, network, addr)
	}
}
