package main

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"ipcrpc/codec"
	"ipcrpc/message"
	"ipcrpc/protocol"
	"ipcrpc/server"
)

// Function ids served by rpc-server.
const (
	fnEcho        = 1
	fnAdd         = 2
	fnCounterIncr = 3
	fnKVPut       = 4
	fnKVGet       = 5
	fnGreet       = 6
	fnKVKeys      = 7
)

var errKeyNotFound = errors.New("key not found")

// session is the per-connection state.
type session struct {
	counter uint64
}

// store is shared by every connection. kv.put and kv.get are different
// functions and may run at the same time, so it has its own lock.
type store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newStore() *store {
	return &store{data: make(map[string][]byte)}
}

func functions(kv *store) []server.FuncInfo[session] {
	return []server.FuncInfo[session]{
		server.NewFunc(fnEcho, echo, protocol.ArgString),
		server.NewFunc(fnAdd, add, protocol.ArgI64, protocol.ArgI64),
		server.NewFunc(fnCounterIncr, counterIncr, protocol.ArgU32),
		server.NewFunc(fnKVPut, kv.put, protocol.ArgString, protocol.ArgBuffer),
		server.NewFunc(fnKVGet, kv.get, protocol.ArgString),
		server.NewFunc(fnGreet, greet, protocol.ArgBuffer),
		server.NewFunc(fnKVKeys, kv.keys),
	}
}

func echo(_ *session, call *message.Call) error {
	s, err := call.String(0)
	if err != nil {
		return err
	}
	_, err = call.WriteString(s)
	return err
}

func add(_ *session, call *message.Call) error {
	a, err := call.I64(0)
	if err != nil {
		return err
	}
	b, err := call.I64(1)
	if err != nil {
		return err
	}
	call.WriteU64(uint64(a + b))
	return nil
}

// counterIncr adds to the connection's counter and replies with the new
// value.
func counterIncr(s *session, call *message.Call) error {
	n, err := call.U32(0)
	if err != nil {
		return err
	}
	s.counter += uint64(n)
	call.WriteU64(s.counter)
	return nil
}

func (kv *store) put(_ *session, call *message.Call) error {
	key, err := call.String(0)
	if err != nil {
		return err
	}
	value, err := call.Buffer(1)
	if err != nil {
		return err
	}
	kv.mu.Lock()
	kv.data[key] = value
	kv.mu.Unlock()
	return nil
}

func (kv *store) get(_ *session, call *message.Call) error {
	key, err := call.String(0)
	if err != nil {
		return err
	}
	kv.mu.RLock()
	value, ok := kv.data[key]
	kv.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", errKeyNotFound, key)
	}
	_, err = call.Write(value)
	return err
}

// keys replies with the sorted stored keys as a JSON array.
func (kv *store) keys(_ *session, call *message.Call) error {
	kv.mu.RLock()
	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	kv.mu.RUnlock()
	slices.Sort(keys)
	return call.Encode(codec.GetCodec(codec.CodecTypeJSON), keys)
}

// greet takes a protobuf StringValue name and answers with one.
func greet(_ *session, call *message.Call) error {
	pb := codec.GetCodec(codec.CodecTypeProto)
	var name wrapperspb.StringValue
	if err := call.Decode(0, pb, &name); err != nil {
		return err
	}
	return call.Encode(pb, wrapperspb.String("hello, "+name.GetValue()))
}
