package bits

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// GetBit reports if bit pos of store is set. Bit 0 is the least significant.
func GetBit[U constraints.Unsigned](store U, pos uint8) bool {
	checkPos(store, pos)
	return store>>pos&1 == 1
}

// SetBit returns store with bit pos set to val.
func SetBit[U constraints.Unsigned](store U, pos uint8, val bool) U {
	checkPos(store, pos)
	if val {
		return store | U(1)<<pos
	}
	return store &^ (U(1) << pos)
}

// GetValue returns bits [start, end) of store, shifted down to bit 0.
func GetValue[U, U1 constraints.Unsigned](store U, start, end uint64) U1 {
	return U1((store & Mask[U](start, end)) >> start)
}

// SetValue returns store with bits [start, end) replaced by the low bits of val. Higher bits of
// val are dropped.
func SetValue[I, U constraints.Unsigned](val I, store U, start, end uint64) U {
	m := Mask[U](start, end)
	return store&^m | U(val)<<start&m
}

// Mask returns a U with bits [start, end) set. Mask[uint8](1, 4) is 0b00001110.
// It panics if start >= end or end is wider than U.
func Mask[U constraints.Unsigned](start, end uint64) U {
	var zero U
	width := widthOf(zero)
	switch {
	case start >= end:
		panic(fmt.Sprintf("bits.Mask(%d, %d): start must be < end", start, end))
	case end > width:
		panic(fmt.Sprintf("bits.Mask(%d, %d): %T only has %d bits", start, end, zero, width))
	}
	n := end - start
	if n == 64 {
		return ^zero
	}
	return U((uint64(1)<<n - 1) << start)
}

func widthOf[U constraints.Unsigned](n U) uint64 {
	return uint64(unsafe.Sizeof(n)) * 8
}

func checkPos[U constraints.Unsigned](store U, pos uint8) {
	if w := widthOf(store); uint64(pos) >= w {
		panic(fmt.Sprintf("bit %d is outside of a %d bit %T", pos, w, store))
	}
}

// BytesInBinary renders each byte as 8 binary digits, separated by spaces.
func BytesInBinary(bs []byte) string {
	var sb strings.Builder
	for i, n := range bs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%08b", n)
	}
	return sb.String()
}
