package message

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ipcrpc/codec"
	"ipcrpc/protocol"
)

func newCallFromArgs(args *Args) *Call {
	return NewCall(1, 7, args.Types(), args.Bytes())
}

func TestRoundTripAllTypes(t *testing.T) {
	args := NewArgs().
		I8(math.MinInt8).
		I16(-12345).
		I32(math.MinInt32).
		I64(math.MaxInt64).
		U8(math.MaxUint8).
		U16(54321).
		U32(0xDEADBEEF).
		U64(math.MaxUint64).
		String("héllo, wörld").
		Buffer([]byte{0, 1, 2, 3}).
		String("").
		Buffer(nil)
	call := newCallFromArgs(args)
	require.Equal(t, 12, call.NumArgs())

	i8, err := call.I8(0)
	require.NoError(t, err)
	assert.Equal(t, int8(math.MinInt8), i8)

	i16, err := call.I16(1)
	require.NoError(t, err)
	assert.Equal(t, int16(-12345), i16)

	i32, err := call.I32(2)
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	i64, err := call.I64(3)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), i64)

	u8, err := call.U8(4)
	require.NoError(t, err)
	assert.Equal(t, uint8(math.MaxUint8), u8)

	u16, err := call.U16(5)
	require.NoError(t, err)
	assert.Equal(t, uint16(54321), u16)

	u32, err := call.U32(6)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := call.U64(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u64)

	s, err := call.String(8)
	require.NoError(t, err)
	assert.Equal(t, "héllo, wörld", s)

	b, err := call.Buffer(9)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, b)

	empty, err := call.String(10)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	emptyBuf, err := call.Buffer(11)
	require.NoError(t, err)
	assert.Empty(t, emptyBuf)
}

func TestAccessOrderIndependent(t *testing.T) {
	args := NewArgs().U32(1).String("two").U64(3)
	call := newCallFromArgs(args)

	// Reverse order, repeated reads: every access walks from the start.
	for i := 0; i < 3; i++ {
		v3, err := call.U64(2)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), v3)

		v1, err := call.U32(0)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), v1)
	}

	v2, err := call.String(1)
	require.NoError(t, err)
	assert.Equal(t, "two", v2)
}

func TestTypeMismatch(t *testing.T) {
	// Declared signature says U32, the frame on the wire says I32.
	args := NewArgs().I32(5)
	call := NewCall(1, 7, []protocol.ArgType{protocol.ArgU32}, args.Bytes())

	_, err := call.U32(0)
	require.ErrorIs(t, err, ErrTypeMismatch)

	// Accessor disagrees with the declared signature.
	call = newCallFromArgs(NewArgs().U32(5))
	_, err = call.I64(0)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestArgIndexOutOfRange(t *testing.T) {
	call := newCallFromArgs(NewArgs().U8(1))
	_, err := call.U8(1)
	require.ErrorIs(t, err, ErrArgIndex)
	_, err = call.U8(math.MaxUint32)
	require.ErrorIs(t, err, ErrArgIndex)
}

func TestTruncatedArguments(t *testing.T) {
	full := NewArgs().U32(1).U32(2).Bytes()
	types := []protocol.ArgType{protocol.ArgU32, protocol.ArgU32}

	for cut := 0; cut < len(full); cut++ {
		call := NewCall(1, 1, types, full[:cut])
		_, err := call.U32(1)
		require.ErrorIs(t, err, protocol.ErrTruncated, "cut at %d", cut)
	}
}

func TestDeclaredMoreThanSent(t *testing.T) {
	// Function declares two args but only one frame exists.
	call := NewCall(1, 1, []protocol.ArgType{protocol.ArgU8, protocol.ArgU8}, NewArgs().U8(1).Bytes())
	_, err := call.U8(1)
	require.ErrorIs(t, err, protocol.ErrTruncated)
}

func TestBadArgumentMagic(t *testing.T) {
	raw := NewArgs().U16(9).Bytes()
	raw[0] = 'X'
	call := NewCall(1, 1, []protocol.ArgType{protocol.ArgU16}, raw)
	_, err := call.U16(0)
	require.ErrorIs(t, err, protocol.ErrBadMagic)
}

func TestIntegerSizeMustMatchWidth(t *testing.T) {
	// Source peers that pad a u32 to 8 bytes are rejected rather than truncated.
	args := NewArgs().Append(protocol.ArgU32, []byte{0x2A, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF})
	_, err := newCallFromArgs(args).U32(0)
	require.ErrorIs(t, err, ErrArgSize)

	args = NewArgs().Append(protocol.ArgU64, []byte{1, 2})
	_, err = newCallFromArgs(args).U64(0)
	require.ErrorIs(t, err, ErrArgSize)
}

func TestInvalidUTF8(t *testing.T) {
	args := NewArgs().Append(protocol.ArgString, []byte{0xff, 0xfe})
	_, err := newCallFromArgs(args).String(0)
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestBufferIsCopied(t *testing.T) {
	args := NewArgs().Buffer([]byte("abc"))
	call := newCallFromArgs(args)
	b, err := call.Buffer(0)
	require.NoError(t, err)
	b[0] = 'z'

	again, err := call.Buffer(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestDecodeStructuredArgument(t *testing.T) {
	args := NewArgs()
	require.NoError(t, args.Encode(codec.GetCodec(codec.CodecTypeProto), wrapperspb.String("gopher")))
	require.NoError(t, args.Encode(codec.GetCodec(codec.CodecTypeJSON), map[string]int{"a": 1}))
	call := newCallFromArgs(args)

	var name wrapperspb.StringValue
	require.NoError(t, call.Decode(0, codec.GetCodec(codec.CodecTypeProto), &name))
	assert.Equal(t, "gopher", name.GetValue())

	var m map[string]int
	require.NoError(t, call.Decode(1, codec.GetCodec(codec.CodecTypeJSON), &m))
	assert.Equal(t, 1, m["a"])

	var bad map[string]int
	assert.Error(t, call.Decode(0, codec.GetCodec(codec.CodecTypeJSON), &bad))
}

func TestReplyBuilder(t *testing.T) {
	call := NewCall(1, 1, nil, nil)
	assert.Empty(t, call.Reply())

	call.Write([]byte{0x2A})
	call.WriteString("ok")
	require.NoError(t, call.WriteByte('!'))
	call.WriteU32(1)
	call.WriteU64(2)
	require.NoError(t, call.Encode(codec.GetCodec(codec.CodecTypeJSON), "raw"))

	want := []byte{0x2A, 'o', 'k', '!', 1, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, '"', 'r', 'a', 'w', '"'}
	assert.Equal(t, want, call.Reply())
}

func TestNilArgs(t *testing.T) {
	var args *Args
	assert.Equal(t, uint32(0), args.Count())
	assert.Nil(t, args.Bytes())
	assert.Nil(t, args.Types())
}
