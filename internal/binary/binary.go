// Package binary translates integer values to and from the order their bits appear on the wire.
// Unlike encoding/binary it works at any bit width from 1 to 64, including widths that are not a
// multiple of 8.
package binary

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/bearlytools/bitcodec/errors"
)

// Endian is the byte order used to translate a value to its wire bits.
type Endian uint8

const (
	// Big puts the most significant byte first. This is the default.
	Big Endian = 0
	// Little puts the least significant byte first.
	Little Endian = 1
)

// String implements fmt.Stringer.
func (e Endian) String() string {
	switch e {
	case Big:
		return "big"
	case Little:
		return "little"
	}
	return fmt.Sprintf("Endian(%d)", uint8(e))
}

// ParseEndian converts "big" or "little" (or "be"/"le") to an Endian.
func ParseEndian(s string) (Endian, error) {
	switch s {
	case "big", "be", "":
		return Big, nil
	case "little", "le":
		return Little, nil
	}
	return Big, errors.Wrapf(errors.ErrDomain, "unknown endian %q", s)
}

// ToWire converts the n bit value v into the integer whose bits, most significant first, are the
// n bits emitted on the wire. n must be in [1, 64].
//
// With Big the value is emitted unchanged. With Little the n/8 low order whole bytes are emitted
// least significant first, followed by the remaining n%8 high order bits. For n <= 8 both orders
// are the same.
func ToWire(v uint64, n int, e Endian) uint64 {
	checkWidth(n)
	v &= mask(n)
	if e == Big || n <= 8 {
		return v
	}

	k, r := n/8, n%8
	var raw uint64
	for j := 0; j < k; j++ {
		raw = raw<<8 | (v>>(8*j))&0xFF
	}
	if r > 0 {
		raw = raw<<r | v>>(8*k)
	}
	return raw
}

// FromWire is the inverse of ToWire.
func FromWire(raw uint64, n int, e Endian) uint64 {
	checkWidth(n)
	raw &= mask(n)
	if e == Big || n <= 8 {
		return raw
	}

	k, r := n/8, n%8
	high := raw & mask(r)
	rest := raw >> r
	var v uint64
	for j := 0; j < k; j++ {
		v |= ((rest >> (8 * (k - 1 - j))) & 0xFF) << (8 * j)
	}
	return v | high<<(8*k)
}

// SignExtend interprets the low n bits of v as a two's complement number.
func SignExtend(v uint64, n int) int64 {
	checkWidth(n)
	shift := 64 - n
	return int64(v<<shift) >> shift
}

func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

func checkWidth(n int) {
	if n < 1 || n > 64 {
		panic(fmt.Sprintf("bit width must be in [1, 64], was %d", n))
	}
}

// Get gets any fixed size integer from the front of b in byte order e.
func Get[T constraints.Integer](b []byte, e Endian) T {
	var order binary.ByteOrder = binary.BigEndian
	if e == Little {
		order = binary.LittleEndian
	}

	var r T // This is only used for type detection.
	switch any(r).(type) {
	case int8:
		return T(int8(b[0]))
	case uint8:
		return T(b[0])
	case int16:
		return T(int16(order.Uint16(b)))
	case uint16:
		return T(order.Uint16(b))
	case int32:
		return T(int32(order.Uint32(b)))
	case uint32:
		return T(order.Uint32(b))
	case int64:
		return T(int64(order.Uint64(b)))
	case uint64:
		return T(order.Uint64(b))
	}
	panic(fmt.Sprintf("unsupported type that passed the type constraint %T", r))
}

// Put puts any fixed size integer at the front of b in byte order e.
func Put[T constraints.Integer](b []byte, v T, e Endian) {
	var order binary.ByteOrder = binary.BigEndian
	if e == Little {
		order = binary.LittleEndian
	}

	switch any(v).(type) {
	case int8, uint8:
		b[0] = byte(v)
	case int16, uint16:
		order.PutUint16(b, uint16(v))
	case int32, uint32:
		order.PutUint32(b, uint32(v))
	default:
		order.PutUint64(b, uint64(v))
	}
}
