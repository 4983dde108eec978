package entity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrBadSize      = errors.New("unexpected encoded size")
	ErrUnknownState = errors.New("unknown solution state")
	ErrBadText      = errors.New("invalid response text")
)

func checkSize(data []byte, want int) error {
	if len(data) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBadSize, len(data), want)
	}
	return nil
}

func (p Puzzle) MarshalBinary() ([]byte, error) {
	out := make([]byte, PuzzleSize)
	out[0] = p.Complexity
	copy(out[1:], p.Value[:])
	return out, nil
}

func (p *Puzzle) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, PuzzleSize); err != nil {
		return err
	}
	p.Complexity = data[0]
	copy(p.Value[:], data[1:])
	return nil
}

func (s Solution) MarshalBinary() ([]byte, error) {
	out := make([]byte, SolutionSize)
	copy(out, s[:])
	return out, nil
}

func (s *Solution) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, SolutionSize); err != nil {
		return err
	}
	copy(s[:], data)
	return nil
}

func (s SolutionState) MarshalBinary() ([]byte, error) {
	if s != Accepted && s != Rejected {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, uint32(s))
	}
	return binary.LittleEndian.AppendUint32(nil, uint32(s)), nil
}

func (s *SolutionState) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, SolutionStateSize); err != nil {
		return err
	}
	v := SolutionState(binary.LittleEndian.Uint32(data))
	if v != Accepted && v != Rejected {
		return fmt.Errorf("%w: %d", ErrUnknownState, uint32(v))
	}
	*s = v
	return nil
}

func (n PayloadSize) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, uint64(n)), nil
}

func (n *PayloadSize) UnmarshalBinary(data []byte) error {
	if err := checkSize(data, PayloadSizeSize); err != nil {
		return err
	}
	*n = PayloadSize(binary.LittleEndian.Uint64(data))
	return nil
}

// MarshalBinary encodes the text as an 8-byte little-endian length followed by its UTF-8 bytes.
func (r Response) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, PayloadSizeSize+len(r))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(r)))
	return append(out, r...), nil
}

func (r *Response) UnmarshalBinary(data []byte) error {
	if len(data) < PayloadSizeSize {
		return fmt.Errorf("%w: got %d bytes, want at least %d", ErrBadSize, len(data), PayloadSizeSize)
	}
	n := binary.LittleEndian.Uint64(data)
	body := data[PayloadSizeSize:]
	if n != uint64(len(body)) {
		return fmt.Errorf("%w: text length %d, frame carries %d", ErrBadSize, n, len(body))
	}
	if !utf8.Valid(body) {
		return ErrBadText
	}
	*r = Response(body)
	return nil
}
