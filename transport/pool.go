// ConnPool hands out connections for exclusive use: one caller holds a
// connection for the whole call and returns it afterwards. This fits the
// server's one-call-at-a-time-per-connection model.
//
// Pool design: a buffered channel is the idle queue. Buffered channels are
// goroutine-safe and block when empty, which gives the wait-for-a-free-
// connection behaviour for free.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/multierr"
)

var ErrPoolClosed = errors.New("transport: connection pool closed")

// ConnPool manages up to maxConns connections to one address. T is usually
// a client connection wrapping a Channel.
type ConnPool[T io.Closer] struct {
	mu       sync.Mutex
	conns    chan T
	maxConns int
	curConns int
	closed   bool
	factory  func(ctx context.Context) (T, error)
}

// NewConnPool creates an empty pool; connections are created lazily.
func NewConnPool[T io.Closer](maxConns int, factory func(ctx context.Context) (T, error)) *ConnPool[T] {
	if maxConns < 1 {
		maxConns = 1
	}
	return &ConnPool[T]{
		conns:    make(chan T, maxConns),
		maxConns: maxConns,
		factory:  factory,
	}
}

// Get borrows a connection:
//  1. an idle one if available,
//  2. otherwise a new one while under the limit,
//  3. otherwise wait until one is returned or ctx is done.
func (p *ConnPool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return zero, ErrPoolClosed
		}
		return conn, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrPoolClosed
	}
	if p.curConns < p.maxConns {
		// Reserve the slot before dialing so concurrent Gets can't overshoot.
		p.curConns++
		p.mu.Unlock()
		conn, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.curConns--
			p.mu.Unlock()
			return zero, err
		}
		return conn, nil
	}
	p.mu.Unlock()

	select {
	case conn, ok := <-p.conns:
		if !ok {
			return zero, ErrPoolClosed
		}
		return conn, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Put returns a healthy connection to the pool.
func (p *ConnPool[T]) Put(conn T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.curConns--
		conn.Close()
		return
	}
	p.conns <- conn
}

// Discard closes a broken connection and frees its slot.
func (p *ConnPool[T]) Discard(conn T) error {
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
	return conn.Close()
}

// Len returns the number of live connections, idle or borrowed.
func (p *ConnPool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns
}

// Close closes the idle connections. Borrowed connections are closed when
// they are put back.
func (p *ConnPool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.conns)
	var err error
	for conn := range p.conns {
		err = multierr.Append(err, conn.Close())
		p.curConns--
	}
	return err
}
