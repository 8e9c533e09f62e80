// Package server implements the RPC dispatch server: a function table keyed
// by numeric id, and a worker per connection that decodes requests, calls
// the matching function and sends back responses.
//
// Per connection:
//
//	AwaitRequest → Validating → Dispatching → Replying → AwaitRequest
//	      │             │
//	      └─ EOF/error ─┴─ contract violation ──► Closed
//
// Calls on one connection are strictly sequential. Connections run in
// parallel; calls to the same function id are serialised by that function's
// lock.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ipcrpc/message"
	"ipcrpc/middleware"
	"ipcrpc/protocol"
	"ipcrpc/registry"
	"ipcrpc/transport"
)

// ErrShortRequest means a message was too short to carry even a call id.
// Nothing can be answered, so the connection is dropped.
var ErrShortRequest = errors.New("server: request too short")

// Server dispatches calls to registered functions. S is the per-connection
// session state type; every connection gets its own copy of the template
// passed to NewServer.
type Server[S any] struct {
	template S
	clone    func(S) S
	logger   *zap.Logger

	mu          sync.Mutex
	funcs       []FuncInfo[S]
	middlewares []middleware.Middleware[S]
	listener    transport.Listener
	registry    registry.Registry
	advertised  []advertisement

	table    atomic.Pointer[table[S]]
	wg       sync.WaitGroup // one per live connection
	shutdown atomic.Bool
}

type advertisement struct {
	service string
	addr    string
}

// NewServer creates a server for the given functions. state is the session
// template; by default each connection receives a plain value copy of it,
// see WithCloner for deep copies.
func NewServer[S any](state S, funcs []FuncInfo[S], opts ...Option) (*Server[S], error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server[S]{
		template: state,
		clone:    func(v S) S { return v },
		logger:   o.logger,
	}
	if o.cloner != nil {
		clone, ok := o.cloner.(func(S) S)
		if !ok {
			return nil, fmt.Errorf("server: cloner %T does not match session type %T", o.cloner, state)
		}
		s.clone = clone
	}
	if err := s.SetFunctions(funcs); err != nil {
		return nil, err
	}
	s.logger.Debug("rpc server created", zap.Int("functions", len(funcs)))
	return s, nil
}

// SetFunctions replaces the whole function table. Connections accepted
// earlier keep using the table they started with.
func (s *Server[S]) SetFunctions(funcs []FuncInfo[S]) error {
	normalized, err := normalizeFuncs(funcs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs = normalized
	s.table.Store(newTable(s.funcs, s.middlewares))
	return nil
}

// Use appends middlewares around every function. Like SetFunctions it only
// affects connections accepted afterwards.
func (s *Server[S]) Use(mws ...middleware.Middleware[S]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mws...)
	s.table.Store(newTable(s.funcs, s.middlewares))
}

// Advertise registers the server in reg under serviceName. The entry is
// removed again by Shutdown.
func (s *Server[S]) Advertise(reg registry.Registry, serviceName string, instance registry.ServiceInstance, ttl int64) error {
	if err := reg.Register(serviceName, instance, ttl); err != nil {
		return fmt.Errorf("advertise %s at %s: %w", serviceName, instance.Addr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = reg
	s.advertised = append(s.advertised, advertisement{service: serviceName, addr: instance.Addr})
	return nil
}

// Serve accepts connections from l until it reports transport.ErrClosed,
// then waits for every connection to finish before returning. In-flight
// calls are never cut short. Any other accept error is returned, also after
// the drain.
func (s *Server[S]) Serve(l transport.Listener) error {
	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		return l.Close()
	}
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("rpc server listening", zap.String("addr", l.Addr()))

	var acceptErr error
	for {
		ch, err := l.Accept()
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && !s.shutdown.Load() {
				acceptErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		// Snapshot the table and copy the session before the worker starts,
		// so later SetFunctions calls don't reach this connection.
		tbl := s.table.Load()
		state := s.clone(s.template)

		// Shutdown may already be waiting on wg; Add only while it isn't.
		s.mu.Lock()
		if s.shutdown.Load() {
			s.mu.Unlock()
			ch.Close()
			break
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handleConn(ch, tbl, state)
	}

	s.logger.Debug("no more connections, waiting for workers")
	s.wg.Wait()
	s.logger.Info("rpc server stopped", zap.String("addr", l.Addr()))
	return acceptErr
}

// handleConn runs the request loop for one connection.
func (s *Server[S]) handleConn(ch transport.Channel, tbl *table[S], state S) {
	defer s.wg.Done()
	defer ch.Close()

	logger := s.logger.With(zap.String("remote", channelName(ch)))
	logger.Debug("accepted connection")
	for {
		more, err := s.handleCall(ch, tbl, &state, logger)
		if err != nil {
			logger.Error("connection aborted", zap.Error(err))
			return
		}
		if !more {
			logger.Debug("client disconnected")
			return
		}
	}
}

// handleCall serves one request. It returns false when the peer has gone
// away, and an error when the connection can't continue.
func (s *Server[S]) handleCall(ch transport.Channel, tbl *table[S], state *S, logger *zap.Logger) (bool, error) {
	msg, err := ch.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("receive: %w", err)
	}

	hdr, args, err := protocol.DecodeRequestHeader(msg)
	if err != nil {
		if len(msg) < 8 {
			return false, fmt.Errorf("%w: %d bytes", ErrShortRequest, len(msg))
		}
		logger.Debug("malformed request", zap.Uint32("call_id", hdr.CallID), zap.Error(err))
		return true, reply(ch, hdr.CallID, protocol.ResultInvalidArg, nil)
	}

	fn, ok := tbl.lookup(hdr.FunctionID)
	if !ok {
		logger.Debug("unknown function", zap.Uint32("call_id", hdr.CallID), zap.Uint32("function_id", hdr.FunctionID))
		return true, reply(ch, hdr.CallID, protocol.ResultServerInvalidFunction, nil)
	}

	// More arguments than declared is fine; the extra ones are never read.
	if hdr.ArgsCount < uint32(len(fn.argTypes)) {
		logger.Debug("too few arguments",
			zap.Uint32("call_id", hdr.CallID),
			zap.Uint32("function_id", hdr.FunctionID),
			zap.Uint32("args_count", hdr.ArgsCount),
			zap.Int("expected", len(fn.argTypes)))
		return true, reply(ch, hdr.CallID, protocol.ResultInvalidArg, nil)
	}

	call := message.NewCall(hdr.CallID, hdr.FunctionID, fn.argTypes, args)
	if err := invoke(fn, state, call); err != nil {
		logger.Warn("function failed",
			zap.Uint32("call_id", hdr.CallID),
			zap.Uint32("function_id", hdr.FunctionID),
			zap.Error(err))
		return true, reply(ch, hdr.CallID, protocol.ResultServerInternalError, nil)
	}

	return true, reply(ch, hdr.CallID, protocol.ResultOk, call.Reply())
}

// invoke runs the function, turning a panic into an error so that one bad
// call costs only its own reply.
func invoke[S any](fn *function[S], state *S, call *message.Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function %d panicked: %v", call.FunctionID(), r)
		}
	}()
	return fn.handle(state, call)
}

func reply(ch transport.Channel, callID uint32, result protocol.ResultCode, data []byte) error {
	if err := ch.Send(protocol.EncodeResponse(callID, result, data)); err != nil {
		return fmt.Errorf("send %s response for call %d: %w", result, callID, err)
	}
	return nil
}

func channelName(ch transport.Channel) string {
	if s, ok := ch.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%p", ch)
}

// Shutdown performs graceful shutdown:
//  1. Deregister advertised services so clients stop picking this server
//  2. Set the shutdown flag so Serve treats the accept error as intentional
//  3. Close the listener to stop accepting connections
//  4. Wait for live connections to finish, up to timeout
//
// Connections end when their clients disconnect; Shutdown does not cut them.
func (s *Server[S]) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	reg, advertised := s.registry, s.advertised
	s.advertised = nil
	s.mu.Unlock()

	var err error
	for _, a := range advertised {
		err = multierr.Append(err, reg.Deregister(a.service, a.addr))
	}

	s.mu.Lock()
	s.shutdown.Store(true)
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		err = multierr.Append(err, l.Close())
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		err = multierr.Append(err, fmt.Errorf("timeout waiting for connections to finish"))
	}
	return err
}
