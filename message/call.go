// Package message holds the contents of a single RPC call: the typed view
// over a request's argument frames that handlers read from, the reply
// buffer they write to, and the builder clients use to produce arguments.
package message

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"ipcrpc/codec"
	"ipcrpc/protocol"
)

var (
	ErrArgIndex     = errors.New("message: argument index out of range")
	ErrTypeMismatch = errors.New("message: argument type mismatch")
	ErrArgSize      = errors.New("message: argument size does not match its type")
	ErrInvalidUTF8  = errors.New("message: string argument is not valid UTF-8")
)

// Call is the per-call decode context handed to a handler. It lives for one
// request/response cycle and is owned by the goroutine serving it.
//
// Argument accessors re-walk the raw argument bytes from the start on every
// access instead of keeping a cursor, so they may be called in any order and
// any number of times.
type Call struct {
	callID     uint32
	functionID uint32
	argTypes   []protocol.ArgType
	data       []byte
	reply      bytes.Buffer
}

// NewCall creates a context over data, the argument frames that followed a
// request header. argTypes is the signature declared for the function.
func NewCall(callID, functionID uint32, argTypes []protocol.ArgType, data []byte) *Call {
	return &Call{
		callID:     callID,
		functionID: functionID,
		argTypes:   argTypes,
		data:       data,
	}
}

func (c *Call) CallID() uint32 { return c.callID }

func (c *Call) FunctionID() uint32 { return c.functionID }

// NumArgs returns the number of declared arguments.
func (c *Call) NumArgs() int { return len(c.argTypes) }

// arg locates argument index and returns its payload. want is the type the
// caller is about to interpret the payload as.
func (c *Call) arg(index uint32, want protocol.ArgType) ([]byte, error) {
	if uint64(index) >= uint64(len(c.argTypes)) {
		return nil, fmt.Errorf("%w: %d (function %d declares %d)", ErrArgIndex, index, c.functionID, len(c.argTypes))
	}
	declared := c.argTypes[index]
	if declared != want {
		return nil, fmt.Errorf("%w: argument %d declared %s, read as %s", ErrTypeMismatch, index, declared, want)
	}

	buf := c.data
	for i := uint32(0); i < index; i++ {
		var err error
		if buf, err = protocol.SkipArg(buf); err != nil {
			return nil, fmt.Errorf("message: skipping argument %d: %w", i, err)
		}
	}

	h, payload, err := protocol.DecodeArgHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("message: argument %d: %w", index, err)
	}
	if h.Type != declared {
		return nil, fmt.Errorf("%w: argument %d declared %s, sent %s", ErrTypeMismatch, index, declared, h.Type)
	}
	if w := want.Width(); w != 0 && len(payload) != w {
		return nil, fmt.Errorf("%w: argument %d is %s but carries %d bytes", ErrArgSize, index, want, len(payload))
	}
	return payload, nil
}

func (c *Call) I8(index uint32) (int8, error) {
	b, err := c.arg(index, protocol.ArgI8)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (c *Call) I16(index uint32) (int16, error) {
	b, err := c.arg(index, protocol.ArgI16)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (c *Call) I32(index uint32) (int32, error) {
	b, err := c.arg(index, protocol.ArgI32)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (c *Call) I64(index uint32) (int64, error) {
	b, err := c.arg(index, protocol.ArgI64)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (c *Call) U8(index uint32) (uint8, error) {
	b, err := c.arg(index, protocol.ArgU8)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Call) U16(index uint32) (uint16, error) {
	b, err := c.arg(index, protocol.ArgU16)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Call) U32(index uint32) (uint32, error) {
	b, err := c.arg(index, protocol.ArgU32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Call) U64(index uint32) (uint64, error) {
	b, err := c.arg(index, protocol.ArgU64)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// String returns a string argument. The payload must be valid UTF-8.
func (c *Call) String(index uint32) (string, error) {
	b, err := c.arg(index, protocol.ArgString)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: argument %d", ErrInvalidUTF8, index)
	}
	return string(b), nil
}

// Buffer returns a copy of a buffer argument's payload.
func (c *Call) Buffer(index uint32) ([]byte, error) {
	b, err := c.arg(index, protocol.ArgBuffer)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// Decode parses a buffer argument with cdc into v.
func (c *Call) Decode(index uint32, cdc codec.Codec, v any) error {
	b, err := c.arg(index, protocol.ArgBuffer)
	if err != nil {
		return err
	}
	if err := cdc.Decode(b, v); err != nil {
		return fmt.Errorf("message: argument %d: %s decode: %w", index, cdc.Type(), err)
	}
	return nil
}
