package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMagicByteOrder(t *testing.T) {
	// Magics go out big-endian, so the ASCII reads left to right on the wire.
	resp := EncodeResponse(1, ResultOk, nil)
	if !bytes.Equal(resp[0:4], []byte("RPC<")) {
		t.Fatalf("response magic bytes: got %q", resp[0:4])
	}
	req := EncodeRequest(1, 2, 0, nil)
	if !bytes.Equal(req[0:4], []byte("RPC>")) {
		t.Fatalf("request magic bytes: got %q", req[0:4])
	}
	arg := AppendArg(nil, ArgU32, []byte{1, 0, 0, 0})
	if !bytes.Equal(arg[0:4], []byte("RPCA")) {
		t.Fatalf("argument magic bytes: got %q", arg[0:4])
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	args := AppendArg(nil, ArgU32, []byte{0x2A, 0, 0, 0})
	frame := EncodeRequest(1, 7, 1, args)

	want := []byte{
		'R', 'P', 'C', '>',
		1, 0, 0, 0, // call_id
		7, 0, 0, 0, // function_id
		1, 0, 0, 0, // args_count
		'R', 'P', 'C', 'A',
		byte(ArgU32), 0, 0, 0,
		4, 0, 0, 0,
		0x2A, 0, 0, 0,
	}
	assert.Equal(t, want, frame)
}

func TestEncodeResponseLayout(t *testing.T) {
	frame := EncodeResponse(1, ResultOk, []byte{0x2A})
	want := []byte{
		'R', 'P', 'C', '<',
		1, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
		1, 0, 0, 0, 0, 0, 0, 0,
		0x2A,
	}
	assert.Equal(t, want, frame)

	resp, err := DecodeResponse(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), resp.CallID)
	assert.Equal(t, ResultOk, resp.Result)
	assert.Equal(t, []byte{0x2A}, resp.Data)
}

func TestDecodeRequestHeader(t *testing.T) {
	args := AppendArg(nil, ArgString, []byte("hi"))
	frame := EncodeRequest(99, 3, 1, args)

	h, rest, err := DecodeRequestHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, RequestHeader{Magic: RequestMagic, CallID: 99, FunctionID: 3, ArgsCount: 1}, h)
	assert.Equal(t, args, rest)
}

func TestDecodeRequestHeaderBadMagicKeepsCallID(t *testing.T) {
	frame := []byte{
		0xDE, 0xAD, 0xBE, 0xEF,
		0x34, 0x12, 0, 0,
		0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x01, 0x02,
	}
	h, _, err := DecodeRequestHeader(frame)
	require.ErrorIs(t, err, ErrBadMagic)
	assert.Equal(t, uint32(0x1234), h.CallID)
}

func TestDecodeRequestHeaderShort(t *testing.T) {
	_, _, err := DecodeRequestHeader([]byte{'R', 'P', 'C'})
	require.ErrorIs(t, err, ErrTruncated)

	h, _, err := DecodeRequestHeader([]byte{'R', 'P', 'C', '>', 5, 0, 0, 0, 1})
	require.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, uint32(5), h.CallID)
}

func TestDecodeArgHeader(t *testing.T) {
	buf := AppendArg(nil, ArgBuffer, []byte("payload"))
	buf = AppendArg(buf, ArgU8, []byte{9})

	h, data, err := DecodeArgHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, ArgBuffer, h.Type)
	assert.Equal(t, uint32(7), h.Size)
	assert.Equal(t, []byte("payload"), data)

	rest, err := SkipArg(buf)
	require.NoError(t, err)
	h, data, err = DecodeArgHeader(rest)
	require.NoError(t, err)
	assert.Equal(t, ArgU8, h.Type)
	assert.Equal(t, []byte{9}, data)
}

func TestDecodeArgHeaderFailures(t *testing.T) {
	good := AppendArg(nil, ArgU16, []byte{1, 2})

	cases := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short header", good[:11], ErrTruncated},
		{"short payload", good[:13], ErrTruncated},
		{"bad magic", append([]byte{0, 0, 0, 0}, good[4:]...), ErrBadMagic},
		{"unknown type", AppendArg(nil, ArgType(200), nil), ErrUnknownArgType},
		{"huge size", []byte{'R', 'P', 'C', 'A', 0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}, ErrTruncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DecodeArgHeader(tc.buf)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expect %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeResponseFailures(t *testing.T) {
	_, err := DecodeResponse(make([]byte, ResponseHeaderSize-1))
	require.ErrorIs(t, err, ErrTruncated)

	frame := EncodeResponse(1, ResultOk, []byte("abc"))
	_, err = DecodeResponse(frame[:len(frame)-1])
	require.ErrorIs(t, err, ErrTruncated)

	frame[0] = 'X'
	_, err = DecodeResponse(frame)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeLargeResponse(t *testing.T) {
	large := make([]byte, 1024*1024)
	for i := range large {
		large[i] = byte(i % 256)
	}
	resp, err := DecodeResponse(EncodeResponse(999, ResultOk, large))
	require.NoError(t, err)
	if !bytes.Equal(resp.Data, large) {
		t.Errorf("large response body mismatch")
	}
}

func TestArgTypeNames(t *testing.T) {
	for typ := ArgI8; typ < numArgTypes; typ++ {
		parsed, err := ParseArgType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseArgType("f32")
	assert.ErrorIs(t, err, ErrUnknownArgType)
	assert.Equal(t, "argtype(77)", ArgType(77).String())
}

func TestCheckError(t *testing.T) {
	assert.NoError(t, CheckError(ResultOk))
	assert.ErrorIs(t, CheckError(ResultInvalidArg), ErrInvalidArg)
	assert.ErrorIs(t, CheckError(ResultServerInvalidFunction), ErrInvalidFunction)
	assert.ErrorIs(t, CheckError(ResultServerInternalError), ErrInternalError)
	assert.ErrorIs(t, CheckError(ResultCode(42)), ErrUnknownResult)
}
