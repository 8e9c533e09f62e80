// Package protocol implements the binary wire format of ipcrpc.
//
// Three kinds of frame travel over a channel. Each starts with a 4-byte
// magic written big-endian; every other integer is little-endian. The
// asymmetry is part of the wire contract and must not be "fixed".
//
// Argument frame (12-byte header):
//
//	0        4         8        12
//	┌────────┬─────────┬────────┬──────────────┐
//	│ "RPCA" │ argtype │  size  │ size bytes   │
//	│   BE   │   LE    │   LE   │              │
//	└────────┴─────────┴────────┴──────────────┘
//
// Request frame (16-byte header, followed by args_count argument frames):
//
//	0        4         8             12           16
//	┌────────┬─────────┬─────────────┬────────────┬──────────┐
//	│ "RPC>" │ call_id │ function_id │ args_count │ args ... │
//	└────────┴─────────┴─────────────┴────────────┴──────────┘
//
// Response frame (24-byte header):
//
//	0        4         8             16           24
//	┌────────┬─────────┬─────────────┬────────────┬─────────────────┐
//	│ "RPC<" │ call_id │ result (u64)│ size (u64) │ size bytes      │
//	└────────┴─────────┴─────────────┴────────────┴─────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic sentinels, compared as big-endian u32.
const (
	ArgMagic      uint32 = 'R'<<24 | 'P'<<16 | 'C'<<8 | 'A'
	RequestMagic  uint32 = 'R'<<24 | 'P'<<16 | 'C'<<8 | '>'
	ResponseMagic uint32 = 'R'<<24 | 'P'<<16 | 'C'<<8 | '<'
)

// Header sizes in bytes.
const (
	ArgHeaderSize      = 12
	RequestHeaderSize  = 16
	ResponseHeaderSize = 24
)

var (
	ErrTruncated      = errors.New("protocol: truncated frame")
	ErrBadMagic       = errors.New("protocol: invalid magic")
	ErrUnknownArgType = errors.New("protocol: unknown argument type")
	ErrUnknownResult  = errors.New("protocol: unknown result code")
)

// ArgType tags the primitive kind of one argument position.
type ArgType uint32

const (
	ArgI8 ArgType = iota
	ArgI16
	ArgI32
	ArgI64
	ArgU8
	ArgU16
	ArgU32
	ArgU64
	ArgString
	ArgBuffer
	numArgTypes
)

var argTypeNames = [...]string{
	ArgI8:     "i8",
	ArgI16:    "i16",
	ArgI32:    "i32",
	ArgI64:    "i64",
	ArgU8:     "u8",
	ArgU16:    "u16",
	ArgU32:    "u32",
	ArgU64:    "u64",
	ArgString: "string",
	ArgBuffer: "buffer",
}

// Valid reports whether t is a member of the enumeration.
func (t ArgType) Valid() bool { return t < numArgTypes }

func (t ArgType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("argtype(%d)", uint32(t))
	}
	return argTypeNames[t]
}

// Width returns the fixed payload width of integer types, or 0 for
// variable-length types.
func (t ArgType) Width() int {
	switch t {
	case ArgI8, ArgU8:
		return 1
	case ArgI16, ArgU16:
		return 2
	case ArgI32, ArgU32:
		return 4
	case ArgI64, ArgU64:
		return 8
	}
	return 0
}

// ParseArgType maps a type name ("u32", "string", ...) back to its tag.
func ParseArgType(name string) (ArgType, error) {
	for i, n := range argTypeNames {
		if n == name {
			return ArgType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownArgType, name)
}

// ResultCode is carried in every response. Values are stable across versions.
type ResultCode uint64

const (
	ResultOk                    ResultCode = 0
	ResultInvalidArg            ResultCode = 1
	ResultServerInvalidFunction ResultCode = 2
	ResultServerInternalError   ResultCode = 3
)

func (r ResultCode) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultInvalidArg:
		return "InvalidArg"
	case ResultServerInvalidFunction:
		return "ServerInvalidFunction"
	case ResultServerInternalError:
		return "ServerInternalError"
	}
	return fmt.Sprintf("ResultCode(%d)", uint64(r))
}

// ArgHeader is the fixed part of an argument frame.
type ArgHeader struct {
	Type ArgType
	Size uint32
}

// RequestHeader is the fixed part of a request frame.
type RequestHeader struct {
	Magic      uint32
	CallID     uint32
	FunctionID uint32
	ArgsCount  uint32
}

// Response is a decoded response frame. Data aliases the input buffer.
type Response struct {
	CallID uint32
	Result ResultCode
	Data   []byte
}

// AppendArg appends one argument frame to dst.
func AppendArg(dst []byte, t ArgType, data []byte) []byte {
	var hdr [ArgHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], ArgMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(t))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(data)))
	dst = append(dst, hdr[:]...)
	return append(dst, data...)
}

// DecodeArgHeader parses the argument frame header at the start of buf and
// checks that the declared payload is present. It returns the header and
// the payload; the payload aliases buf.
func DecodeArgHeader(buf []byte) (ArgHeader, []byte, error) {
	if len(buf) < ArgHeaderSize {
		return ArgHeader{}, nil, fmt.Errorf("%w: argument header needs %d bytes, have %d",
			ErrTruncated, ArgHeaderSize, len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != ArgMagic {
		return ArgHeader{}, nil, fmt.Errorf("%w: argument frame %#08x", ErrBadMagic, magic)
	}
	h := ArgHeader{
		Type: ArgType(binary.LittleEndian.Uint32(buf[4:8])),
		Size: binary.LittleEndian.Uint32(buf[8:12]),
	}
	rest := buf[ArgHeaderSize:]
	if uint64(h.Size) > uint64(len(rest)) {
		return h, nil, fmt.Errorf("%w: argument declares %d bytes, have %d",
			ErrTruncated, h.Size, len(rest))
	}
	if !h.Type.Valid() {
		return h, nil, fmt.Errorf("%w: %d", ErrUnknownArgType, uint32(h.Type))
	}
	return h, rest[:h.Size], nil
}

// SkipArg returns the bytes following the argument frame at the start of
// buf. Only the magic and size are validated.
func SkipArg(buf []byte) ([]byte, error) {
	if len(buf) < ArgHeaderSize {
		return nil, fmt.Errorf("%w: argument header needs %d bytes, have %d",
			ErrTruncated, ArgHeaderSize, len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != ArgMagic {
		return nil, fmt.Errorf("%w: argument frame %#08x", ErrBadMagic, magic)
	}
	size := binary.LittleEndian.Uint32(buf[8:12])
	rest := buf[ArgHeaderSize:]
	if uint64(size) > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: argument declares %d bytes, have %d", ErrTruncated, size, len(rest))
	}
	return rest[size:], nil
}

// EncodeRequest builds a request frame. args must already be a
// concatenation of argsCount argument frames.
func EncodeRequest(callID, functionID, argsCount uint32, args []byte) []byte {
	buf := make([]byte, RequestHeaderSize, RequestHeaderSize+len(args))
	binary.BigEndian.PutUint32(buf[0:4], RequestMagic)
	binary.LittleEndian.PutUint32(buf[4:8], callID)
	binary.LittleEndian.PutUint32(buf[8:12], functionID)
	binary.LittleEndian.PutUint32(buf[12:16], argsCount)
	return append(buf, args...)
}

// DecodeRequestHeader parses the request header and returns the raw
// argument bytes that follow it.
//
// When the magic is wrong the parsed header is still returned along with
// ErrBadMagic, so the caller can answer using the call id. When the buffer
// holds the magic and call id but not the rest of the header, the partial
// header is returned with ErrTruncated. Fewer than 8 bytes yields a zero
// header.
func DecodeRequestHeader(buf []byte) (RequestHeader, []byte, error) {
	var h RequestHeader
	if len(buf) < 8 {
		return h, nil, fmt.Errorf("%w: request of %d bytes has no call id", ErrTruncated, len(buf))
	}
	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.CallID = binary.LittleEndian.Uint32(buf[4:8])
	if len(buf) < RequestHeaderSize {
		return h, nil, fmt.Errorf("%w: request header needs %d bytes, have %d",
			ErrTruncated, RequestHeaderSize, len(buf))
	}
	h.FunctionID = binary.LittleEndian.Uint32(buf[8:12])
	h.ArgsCount = binary.LittleEndian.Uint32(buf[12:16])
	if h.Magic != RequestMagic {
		return h, nil, fmt.Errorf("%w: request frame %#08x", ErrBadMagic, h.Magic)
	}
	return h, buf[RequestHeaderSize:], nil
}

// EncodeResponse builds a response frame.
func EncodeResponse(callID uint32, result ResultCode, data []byte) []byte {
	buf := make([]byte, ResponseHeaderSize, ResponseHeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[0:4], ResponseMagic)
	binary.LittleEndian.PutUint32(buf[4:8], callID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(result))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(data)))
	return append(buf, data...)
}

// DecodeResponse parses a complete response frame. Trailing bytes beyond
// data_size are ignored.
func DecodeResponse(buf []byte) (*Response, error) {
	if len(buf) < ResponseHeaderSize {
		return nil, fmt.Errorf("%w: response header needs %d bytes, have %d",
			ErrTruncated, ResponseHeaderSize, len(buf))
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != ResponseMagic {
		return nil, fmt.Errorf("%w: response frame %#08x", ErrBadMagic, magic)
	}
	resp := &Response{
		CallID: binary.LittleEndian.Uint32(buf[4:8]),
		Result: ResultCode(binary.LittleEndian.Uint64(buf[8:16])),
	}
	size := binary.LittleEndian.Uint64(buf[16:24])
	rest := buf[ResponseHeaderSize:]
	if size > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: response declares %d bytes, have %d", ErrTruncated, size, len(rest))
	}
	resp.Data = rest[:size]
	return resp, nil
}
