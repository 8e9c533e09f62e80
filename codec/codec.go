// Package codec provides the payload encodings used inside buffer arguments
// and replies. The wire format treats those payloads as opaque bytes; a
// codec is only consulted when a handler or client asks for structured data.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON  CodecType = 0
	CodecTypeProto CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeProto:
		return "proto"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

// GetCodec returns the codec for codecType, or nil for an unknown type.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}
	case CodecTypeProto:
		return &ProtoCodec{}
	}
	return nil
}
