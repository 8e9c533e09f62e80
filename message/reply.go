package message

import (
	"encoding/binary"
	"fmt"

	"ipcrpc/codec"
)

// Write appends p to the reply. It never fails; the signature satisfies
// io.Writer so handlers can stream into the reply.
func (c *Call) Write(p []byte) (int, error) {
	return c.reply.Write(p)
}

func (c *Call) WriteString(s string) (int, error) {
	return c.reply.WriteString(s)
}

func (c *Call) WriteByte(b byte) error {
	return c.reply.WriteByte(b)
}

// WriteU32 appends v little-endian.
func (c *Call) WriteU32(v uint32) {
	c.reply.Write(binary.LittleEndian.AppendUint32(nil, v))
}

// WriteU64 appends v little-endian.
func (c *Call) WriteU64(v uint64) {
	c.reply.Write(binary.LittleEndian.AppendUint64(nil, v))
}

// Encode appends v encoded with cdc.
func (c *Call) Encode(cdc codec.Codec, v any) error {
	b, err := cdc.Encode(v)
	if err != nil {
		return fmt.Errorf("message: reply %s encode: %w", cdc.Type(), err)
	}
	c.reply.Write(b)
	return nil
}

// Reply returns the bytes written so far.
func (c *Call) Reply() []byte {
	return c.reply.Bytes()
}
