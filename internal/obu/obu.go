// Package obu frames coded data into open bitstream units: every unit is a
// one-byte header followed by a LEB128 payload size and the payload. It
// also writes and parses the sequence and frame headers carried in them.
package obu

import (
	"errors"
	"fmt"

	"github.com/deepteams/av1/internal/bitio"
)

// Type identifies the content of a unit.
type Type uint8

const (
	TypeSequenceHeader    Type = 1
	TypeTemporalDelimiter Type = 2
	TypeFrameHeader       Type = 3
	TypeFrame             Type = 6
	TypePadding           Type = 15
)

func (t Type) String() string {
	switch t {
	case TypeSequenceHeader:
		return "SEQUENCE_HEADER"
	case TypeTemporalDelimiter:
		return "TEMPORAL_DELIMITER"
	case TypeFrameHeader:
		return "FRAME_HEADER"
	case TypeFrame:
		return "FRAME"
	case TypePadding:
		return "PADDING"
	}
	return fmt.Sprintf("OBU(%d)", uint8(t))
}

var (
	// ErrTruncated is returned when a unit or field extends past the data.
	ErrTruncated = errors.New("obu: truncated data")
	// ErrHeader is returned for a unit header this package does not write:
	// forbidden bit set, extension present or size field missing.
	ErrHeader = errors.New("obu: unsupported unit header")
	// ErrSyntax is returned for a header field outside its legal range.
	ErrSyntax = errors.New("obu: invalid header field")
)

const hasSizeFlag = 0x02

// Unit is one parsed unit. Payload is a sub-slice of the parsed data.
type Unit struct {
	Type    Type
	Payload []byte
}

// Append appends a unit of type t carrying payload to dst.
func Append(dst []byte, t Type, payload []byte) []byte {
	dst = append(dst, byte(t)<<3|hasSizeFlag)
	dst = bitio.AppendLeb128(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// Size returns the framed size of a payload of n bytes.
func Size(n int) int {
	return 1 + bitio.Leb128Size(uint64(n)) + n
}

// AppendPadding appends a padding unit of exactly n bytes in total, or of
// two bytes when n is 1. Nothing is appended when n is not positive. The
// size field is widened with redundant LEB128 bytes where needed.
func AppendPadding(dst []byte, n int) []byte {
	if n <= 0 {
		return dst
	}
	n = max(n, 2)
	width, payload := 1, n-2
	for bitio.Leb128Size(uint64(payload)) > width {
		width++
		payload--
	}
	dst = append(dst, byte(TypePadding)<<3|hasSizeFlag)
	v := payload
	for i := 0; i < width; i++ {
		b := byte(v & 0x7f)
		v >>= 7
		if i < width-1 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	for i := 0; i < payload; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// Split parses data into units.
func Split(data []byte) ([]Unit, error) {
	var units []Unit
	for len(data) > 0 {
		h := data[0]
		if h&0x80 != 0 || h&0x04 != 0 || h&hasSizeFlag == 0 {
			return nil, fmt.Errorf("%w: 0x%02x", ErrHeader, h)
		}
		size, n, err := bitio.ReadLeb128(data[1:])
		if err != nil {
			return nil, ErrTruncated
		}
		start := 1 + n
		if size > uint64(len(data)-start) {
			return nil, fmt.Errorf("%w: %s unit of %d bytes, %d left", ErrTruncated, Type(h>>3&0xf), size, len(data)-start)
		}
		end := start + int(size)
		units = append(units, Unit{Type: Type(h >> 3 & 0xf), Payload: data[start:end]})
		data = data[end:]
	}
	return units, nil
}
