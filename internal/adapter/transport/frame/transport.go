// Package frame exchanges fixed-size binary values over a byte stream.
// Variable-size values are preceded by an 8-byte little-endian length.
package frame

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const SizeLen = 8

var ErrDecode = errors.New("decode")

type Transport struct {
	rw io.ReadWriter
}

func New(rw io.ReadWriter) *Transport {
	return &Transport{rw: rw}
}

func (t *Transport) Send(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if _, err := t.rw.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// SendWithVarsize writes the length prefix and the payload in a single write.
func (t *Transport) SendWithVarsize(v encoding.BinaryMarshaler) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	out := make([]byte, 0, SizeLen+len(data))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(data)))
	out = append(out, data...)
	if _, err := t.rw.Write(out); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Receive blocks until exactly size bytes arrive, then decodes them into v.
func (t *Transport) Receive(v encoding.BinaryUnmarshaler, size int) error {
	buf := make([]byte, size)
	if _, err := io.ReadFull(t.rw, buf); err != nil {
		return fmt.Errorf("read %d bytes: %w", size, err)
	}
	if err := v.UnmarshalBinary(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
