package message

import (
	"encoding/binary"

	"ipcrpc/codec"
	"ipcrpc/protocol"
)

// Args builds the argument frames of a request.
//
//	args := message.NewArgs().U32(42).String("hello")
type Args struct {
	buf   []byte
	types []protocol.ArgType
}

func NewArgs() *Args {
	return &Args{}
}

// Append adds a frame with an explicit type tag and payload. The typed
// helpers below are preferred; Append exists for tools that build frames
// from user input.
func (a *Args) Append(t protocol.ArgType, data []byte) *Args {
	a.buf = protocol.AppendArg(a.buf, t, data)
	a.types = append(a.types, t)
	return a
}

func (a *Args) I8(v int8) *Args { return a.Append(protocol.ArgI8, []byte{byte(v)}) }

func (a *Args) I16(v int16) *Args {
	return a.Append(protocol.ArgI16, binary.LittleEndian.AppendUint16(nil, uint16(v)))
}

func (a *Args) I32(v int32) *Args {
	return a.Append(protocol.ArgI32, binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (a *Args) I64(v int64) *Args {
	return a.Append(protocol.ArgI64, binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (a *Args) U8(v uint8) *Args { return a.Append(protocol.ArgU8, []byte{v}) }

func (a *Args) U16(v uint16) *Args {
	return a.Append(protocol.ArgU16, binary.LittleEndian.AppendUint16(nil, v))
}

func (a *Args) U32(v uint32) *Args {
	return a.Append(protocol.ArgU32, binary.LittleEndian.AppendUint32(nil, v))
}

func (a *Args) U64(v uint64) *Args {
	return a.Append(protocol.ArgU64, binary.LittleEndian.AppendUint64(nil, v))
}

func (a *Args) String(s string) *Args { return a.Append(protocol.ArgString, []byte(s)) }

func (a *Args) Buffer(b []byte) *Args { return a.Append(protocol.ArgBuffer, b) }

// Encode appends v, encoded with cdc, as a buffer argument.
func (a *Args) Encode(cdc codec.Codec, v any) error {
	b, err := cdc.Encode(v)
	if err != nil {
		return err
	}
	a.Append(protocol.ArgBuffer, b)
	return nil
}

// Count returns the number of frames appended.
func (a *Args) Count() uint32 {
	if a == nil {
		return 0
	}
	return uint32(len(a.types))
}

// Types returns the type tags in order.
func (a *Args) Types() []protocol.ArgType {
	if a == nil {
		return nil
	}
	return a.types
}

// Bytes returns the concatenated frames.
func (a *Args) Bytes() []byte {
	if a == nil {
		return nil
	}
	return a.buf
}
