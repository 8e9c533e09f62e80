package server

import (
	"errors"
	"fmt"
	"sync"

	"ipcrpc/message"
	"ipcrpc/middleware"
	"ipcrpc/protocol"
)

var (
	ErrDuplicateFunction = errors.New("server: duplicate function id")
	ErrInvalidFunction   = errors.New("server: invalid function registration")
)

// FuncInfo registers one function: its id, handler and the ordered types of
// the arguments it reads.
//
// Every FuncInfo carries a mutex. All connections, and every table snapshot
// built from the same FuncInfo, share it, so concurrent calls to one id run
// one at a time while different ids run in parallel. Handlers may therefore
// keep mutable captured state without their own locking.
type FuncInfo[S any] struct {
	ID       uint32
	Handler  middleware.HandlerFunc[S]
	ArgTypes []protocol.ArgType

	mu *sync.Mutex
}

// NewFunc builds a FuncInfo with its own lock.
func NewFunc[S any](id uint32, handler middleware.HandlerFunc[S], argTypes ...protocol.ArgType) FuncInfo[S] {
	return FuncInfo[S]{
		ID:       id,
		Handler:  handler,
		ArgTypes: argTypes,
		mu:       new(sync.Mutex),
	}
}

// invoke runs the handler holding the function lock for exactly the
// duration of the call.
func (f FuncInfo[S]) invoke(state *S, call *message.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Handler(state, call)
}

// function is a table entry: the registration plus its middleware-wrapped
// entry point.
type function[S any] struct {
	id       uint32
	argTypes []protocol.ArgType
	handle   middleware.HandlerFunc[S]
}

// table is an immutable id → function snapshot. Connections keep the
// snapshot they started with; replacing the server's functions builds a new
// table.
type table[S any] struct {
	funcs map[uint32]*function[S]
}

// normalizeFuncs validates a registration batch and makes sure every entry
// owns a lock. The returned slice is a copy.
func normalizeFuncs[S any](infos []FuncInfo[S]) ([]FuncInfo[S], error) {
	out := make([]FuncInfo[S], len(infos))
	seen := make(map[uint32]struct{}, len(infos))
	for i, info := range infos {
		if _, dup := seen[info.ID]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateFunction, info.ID)
		}
		seen[info.ID] = struct{}{}
		if info.Handler == nil {
			return nil, fmt.Errorf("%w: function %d has no handler", ErrInvalidFunction, info.ID)
		}
		for pos, t := range info.ArgTypes {
			if !t.Valid() {
				return nil, fmt.Errorf("%w: function %d argument %d has %s", ErrInvalidFunction, info.ID, pos, t)
			}
		}
		if info.mu == nil {
			info.mu = new(sync.Mutex)
		}
		info.ArgTypes = append([]protocol.ArgType(nil), info.ArgTypes...)
		out[i] = info
	}
	return out, nil
}

func newTable[S any](infos []FuncInfo[S], middlewares []middleware.Middleware[S]) *table[S] {
	chain := middleware.Chain(middlewares...)
	t := &table[S]{funcs: make(map[uint32]*function[S], len(infos))}
	for _, info := range infos {
		t.funcs[info.ID] = &function[S]{
			id:       info.ID,
			argTypes: info.ArgTypes,
			handle:   chain(info.invoke),
		}
	}
	return t
}

func (t *table[S]) lookup(id uint32) (*function[S], bool) {
	f, ok := t.funcs[id]
	return f, ok
}
