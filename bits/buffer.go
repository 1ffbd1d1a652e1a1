// Package bits provides the bit buffer used by every field in bitcodec, plus generic helpers
// for working with bits inside unsigned integers.
//
// A Buffer is an ordered sequence of bits. Position 0 is the first bit on the wire, which is the
// most significant bit of the first wire byte. Internally bits are packed least significant bit
// first: stream bit i lives at bit i%8 of byte i/8. Converting to and from wire bytes reverses
// the bit order of each byte.
//
// Buffers are immutable by convention. Every operation returns a new Buffer and Take and Skip
// share the underlying storage with the receiver.
package bits

import (
	"fmt"
	"math/bits"
	"strings"
)

// Buffer is an ordered sequence of bits. The zero value is an empty Buffer.
type Buffer struct {
	data []byte
	off  int
	n    int
}

// New returns a Buffer of n zero bits.
func New(n int) Buffer {
	if n < 0 {
		panic(fmt.Sprintf("bits.New(%d): negative length", n))
	}
	return Buffer{data: make([]byte, (n+7)/8), n: n}
}

// FromBytes returns a Buffer holding the bits of b in wire order. b is copied.
func FromBytes(b []byte) Buffer {
	data := make([]byte, len(b))
	for i, c := range b {
		data[i] = bits.Reverse8(c)
	}
	return Buffer{data: data, n: len(b) * 8}
}

// FromBools returns a Buffer where bit i is set if v[i] is true.
func FromBools(v []bool) Buffer {
	b := New(len(v))
	for i, set := range v {
		if set {
			b.data[i/8] = SetBit(b.data[i/8], uint8(i%8), true)
		}
	}
	return b
}

// FromUint returns an n bit Buffer holding the low n bits of v, most significant bit first.
// n must be between 0 and 64.
func FromUint(v uint64, n int) Buffer {
	if n < 0 || n > 64 {
		panic(fmt.Sprintf("bits.FromUint(): n must be in [0, 64], was %d", n))
	}
	b := New(n)
	for i := 0; i < n; i++ {
		if v&(uint64(1)<<(n-1-i)) != 0 {
			b.data[i/8] = SetBit(b.data[i/8], uint8(i%8), true)
		}
	}
	return b
}

// Len returns the number of bits in the Buffer.
func (b Buffer) Len() int {
	return b.n
}

// Bit returns the bit at stream position i.
func (b Buffer) Bit(i int) bool {
	if i < 0 || i >= b.n {
		panic(fmt.Sprintf("bits.Buffer.Bit(%d): out of range for length %d", i, b.n))
	}
	p := b.off + i
	return GetBit(b.data[p/8], uint8(p%8))
}

// Take returns the first n bits.
func (b Buffer) Take(n int) Buffer {
	b.check("Take", n)
	return Buffer{data: b.data, off: b.off, n: n}
}

// Skip returns the bits after the first n bits.
func (b Buffer) Skip(n int) Buffer {
	b.check("Skip", n)
	return Buffer{data: b.data, off: b.off + n, n: b.n - n}
}

// DropTail returns the Buffer without its last n bits.
func (b Buffer) DropTail(n int) Buffer {
	b.check("DropTail", n)
	return Buffer{data: b.data, off: b.off, n: b.n - n}
}

func (b Buffer) check(op string, n int) {
	if n < 0 || n > b.n {
		panic(fmt.Sprintf("bits.Buffer.%s(%d): out of range for length %d", op, n, b.n))
	}
}

// Concat returns the bits of b followed by the bits of o.
func (b Buffer) Concat(o Buffer) Buffer {
	return Join(b, o)
}

// Join concatenates the Buffers in order.
func Join(bufs ...Buffer) Buffer {
	total := 0
	for _, b := range bufs {
		total += b.n
	}
	out := New(total)
	pos := 0
	for _, b := range bufs {
		if pos%8 == 0 && b.off%8 == 0 {
			copy(out.data[pos/8:], b.data[b.off/8:(b.off+b.n+7)/8])
			pos += b.n
			// The copy may carry bits past the end of b in its last byte.
			if pos%8 != 0 {
				out.data[pos/8] &= Mask[uint8](0, uint64(pos%8))
			}
			continue
		}
		for i := 0; i < b.n; i++ {
			if b.Bit(i) {
				out.data[pos/8] = SetBit(out.data[pos/8], uint8(pos%8), true)
			}
			pos++
		}
	}
	return out
}

// And returns b with every bit cleared where mask is not set. Positions past the end of mask
// are cleared.
func (b Buffer) And(mask Buffer) Buffer {
	out := New(b.n)
	for i := 0; i < b.n && i < mask.n; i++ {
		if b.Bit(i) && mask.Bit(i) {
			out.data[i/8] = SetBit(out.data[i/8], uint8(i%8), true)
		}
	}
	return out
}

// Clone returns a copy of b that shares no storage with it.
func (b Buffer) Clone() Buffer {
	return Join(b)
}

// Bytes returns the bits in wire order. If Len() is not a multiple of 8, the last byte is padded
// with zero bits on the right.
func (b Buffer) Bytes() []byte {
	c := b
	if b.off%8 != 0 {
		c = Join(b)
	}
	out := make([]byte, (c.n+7)/8)
	for i := range out {
		out[i] = bits.Reverse8(c.data[c.off/8+i])
	}
	if c.n%8 != 0 {
		out[len(out)-1] &= ^Mask[uint8](0, uint64(8-c.n%8))
	}
	return out
}

// Uint returns the bits as an unsigned integer with the first bit as the most significant bit.
// Len() must be <= 64.
func (b Buffer) Uint() uint64 {
	if b.n > 64 {
		panic(fmt.Sprintf("bits.Buffer.Uint(): length %d exceeds 64 bits", b.n))
	}
	var v uint64
	for i := 0; i < b.n; i++ {
		v <<= 1
		if b.Bit(i) {
			v |= 1
		}
	}
	return v
}

// Bools returns the bits as a slice of bools.
func (b Buffer) Bools() []bool {
	out := make([]bool, b.n)
	for i := range out {
		out[i] = b.Bit(i)
	}
	return out
}

// Equal reports if b and o hold the same bits.
func (b Buffer) Equal(o Buffer) bool {
	if b.n != o.n {
		return false
	}
	for i := 0; i < b.n; i++ {
		if b.Bit(i) != o.Bit(i) {
			return false
		}
	}
	return true
}

// String returns the bits in stream order as 0s and 1s.
func (b Buffer) String() string {
	sb := strings.Builder{}
	sb.Grow(b.n)
	for i := 0; i < b.n; i++ {
		if b.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// StringLSB returns the bits in reverse stream order, which is the order they are packed in.
func (b Buffer) StringLSB() string {
	sb := strings.Builder{}
	sb.Grow(b.n)
	for i := b.n - 1; i >= 0; i-- {
		if b.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
