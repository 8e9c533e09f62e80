package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"ipcrpc/codec"
	"ipcrpc/message"
	"ipcrpc/protocol"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// splitFields splits a command line on spaces, keeping double-quoted
// sections together. Quotes are kept so values can be unquoted later.
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote, escaped := false, false
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if inQuote {
		return nil, errUnterminatedQuote
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// parseArgs turns "<type>:<value>" tokens into request arguments.
//
//	i8..i64, u8..u64   decimal, or 0x-prefixed hex
//	string             text, optionally "quoted" with Go escapes
//	buffer             hex bytes
//	pb                 text sent as a protobuf StringValue in a buffer
//	json               a JSON document sent in a buffer; no spaces outside strings
func parseArgs(tokens []string) (*message.Args, error) {
	args := message.NewArgs()
	for i, tok := range tokens {
		name, value, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("argument %d: want <type>:<value>, got %q", i, tok)
		}
		if err := appendArg(args, name, value); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return args, nil
}

func appendArg(args *message.Args, name, value string) error {
	if name == "json" {
		jsonCodec := codec.GetCodec(codec.CodecTypeJSON)
		var doc any
		if err := jsonCodec.Decode([]byte(value), &doc); err != nil {
			return err
		}
		return args.Encode(jsonCodec, doc)
	}
	if name == "pb" {
		s, err := unquote(value)
		if err != nil {
			return err
		}
		return args.Encode(codec.GetCodec(codec.CodecTypeProto), wrapperspb.String(s))
	}

	t, err := protocol.ParseArgType(name)
	if err != nil {
		return err
	}
	switch t {
	case protocol.ArgString:
		s, err := unquote(value)
		if err != nil {
			return err
		}
		args.String(s)
	case protocol.ArgBuffer:
		b, err := hex.DecodeString(value)
		if err != nil {
			return fmt.Errorf("buffer: %w", err)
		}
		args.Buffer(b)
	case protocol.ArgI8, protocol.ArgI16, protocol.ArgI32, protocol.ArgI64:
		v, err := strconv.ParseInt(value, 0, t.Width()*8)
		if err != nil {
			return err
		}
		appendInt(args, t, uint64(v))
	default:
		v, err := strconv.ParseUint(value, 0, t.Width()*8)
		if err != nil {
			return err
		}
		appendInt(args, t, v)
	}
	return nil
}

func appendInt(args *message.Args, t protocol.ArgType, v uint64) {
	switch t {
	case protocol.ArgI8:
		args.I8(int8(v))
	case protocol.ArgI16:
		args.I16(int16(v))
	case protocol.ArgI32:
		args.I32(int32(v))
	case protocol.ArgI64:
		args.I64(int64(v))
	case protocol.ArgU8:
		args.U8(uint8(v))
	case protocol.ArgU16:
		args.U16(uint16(v))
	case protocol.ArgU32:
		args.U32(uint32(v))
	case protocol.ArgU64:
		args.U64(v)
	}
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, `"`) {
		return strconv.Unquote(s)
	}
	return s, nil
}
