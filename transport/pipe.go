package transport

import (
	"context"
	"io"
	"sync"
)

// PipeListener is an in-memory Listener. Channels obtained through Dial are
// connected to the ones returned by Accept; no sockets are involved.
type PipeListener struct {
	name  string
	conns chan Channel
	done  chan struct{}
	once  sync.Once
}

func NewPipeListener(name string) *PipeListener {
	return &PipeListener{
		name:  name,
		conns: make(chan Channel),
		done:  make(chan struct{}),
	}
}

func (l *PipeListener) Accept() (Channel, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *PipeListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *PipeListener) Addr() string {
	return l.name
}

// Dial connects a new pipe to the listener. It blocks until the pipe is
// accepted, ctx is done or the listener is closed.
func (l *PipeListener) Dial(ctx context.Context) (Channel, error) {
	client, server := Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

// Dialer returns a Dialer that ignores the address and dials l.
func (l *PipeListener) Dialer() Dialer {
	return func(ctx context.Context, _ string) (Channel, error) {
		return l.Dial(ctx)
	}
}

type pipe struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	p   *pipe
	in  <-chan []byte
	out chan<- []byte
}

// Pipe returns two connected in-memory channels. Sends are synchronous:
// Send returns once the peer's Recv has taken the message. Closing either
// end closes both.
func Pipe() (Channel, Channel) {
	p := &pipe{done: make(chan struct{})}
	ab := make(chan []byte)
	ba := make(chan []byte)
	return &pipeEnd{p: p, in: ba, out: ab}, &pipeEnd{p: p, in: ab, out: ba}
}

func (e *pipeEnd) Recv() ([]byte, error) {
	select {
	case msg := <-e.in:
		return msg, nil
	case <-e.p.done:
		return nil, io.EOF
	}
}

func (e *pipeEnd) Send(msg []byte) error {
	if len(msg) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}
	buf := append([]byte(nil), msg...)
	select {
	case e.out <- buf:
		return nil
	case <-e.p.done:
		return ErrClosed
	}
}

func (e *pipeEnd) Close() error {
	e.p.once.Do(func() { close(e.p.done) })
	return nil
}

func (e *pipeEnd) String() string { return "pipe" }
