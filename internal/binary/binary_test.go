package binary

import (
	"math"
	"testing"

	"github.com/bearlytools/bitcodec/errors"
)

func TestToWire(t *testing.T) {
	tests := []struct {
		name string
		v    uint64
		n    int
		e    Endian
		want uint64
	}{
		{"Success: 16 bit big", 0x0102, 16, Big, 0x0102},
		{"Success: 16 bit little", 0x0102, 16, Little, 0x0201},
		{"Success: 32 bit little", 0x3F800000, 32, Little, 0x0000803F},
		{"Success: 8 bit little is big", 0xAB, 8, Little, 0xAB},
		{"Success: 5 bit little is big", 0x15, 5, Little, 0x15},
		{"Success: 12 bit little", 0xABC, 12, Little, 0xBCA},
		{"Success: 20 bit little", 0xABCDE, 20, Little, 0xDEBCA},
		{"Success: 64 bit little", 0x0102030405060708, 64, Little, 0x0807060504030201},
		{"Success: extra bits are dropped", 0x1FF, 8, Big, 0xFF},
	}

	for _, test := range tests {
		got := ToWire(test.v, test.n, test.e)
		if got != test.want {
			t.Errorf("TestToWire(%s): got %#x, want %#x", test.name, got, test.want)
		}
		if back := FromWire(got, test.n, test.e); back != test.v&mask(test.n) {
			t.Errorf("TestToWire(%s): FromWire() got %#x, want %#x", test.name, back, test.v&mask(test.n))
		}
	}
}

func TestRoundTripAllWidths(t *testing.T) {
	values := []uint64{0, 1, 0x5A5A5A5A5A5A5A5A, math.MaxUint64, 0x123456789ABCDEF0}
	for n := 1; n <= 64; n++ {
		for _, e := range []Endian{Big, Little} {
			for _, v := range values {
				v &= mask(n)
				if got := FromWire(ToWire(v, n, e), n, e); got != v {
					t.Fatalf("TestRoundTripAllWidths(n: %d, e: %s, v: %#x): got %#x", n, e, v, got)
				}
			}
		}
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		v    uint64
		n    int
		want int64
	}{
		{0x01, 8, 1},
		{0xFF, 8, -1},
		{0x80, 8, -128},
		{0x7, 3, -1},
		{0x3, 3, 3},
		{math.MaxUint64, 64, -1},
	}

	for _, test := range tests {
		if got := SignExtend(test.v, test.n); got != test.want {
			t.Errorf("TestSignExtend(%#x, %d): got %d, want %d", test.v, test.n, got, test.want)
		}
	}
}

func TestGetPut(t *testing.T) {
	b := make([]byte, 8)

	Put(b, uint16(0x0102), Big)
	if b[0] != 0x01 || b[1] != 0x02 {
		t.Errorf("TestGetPut(uint16 big): got % x", b[:2])
	}
	if got := Get[uint16](b, Little); got != 0x0201 {
		t.Errorf("TestGetPut(uint16 little): got %#x, want 0x0201", got)
	}

	Put(b, int32(-2), Little)
	if got := Get[int32](b, Little); got != -2 {
		t.Errorf("TestGetPut(int32): got %d, want -2", got)
	}

	Put(b, uint64(0xA1B2C3D4E5F60718), Big)
	if got := Get[uint64](b, Big); got != 0xA1B2C3D4E5F60718 {
		t.Errorf("TestGetPut(uint64): got %#x", got)
	}
}

func TestParseEndian(t *testing.T) {
	tests := []struct {
		in      string
		want    Endian
		wantErr bool
	}{
		{"big", Big, false},
		{"", Big, false},
		{"le", Little, false},
		{"little", Little, false},
		{"middle", Big, true},
	}

	for _, test := range tests {
		got, err := ParseEndian(test.in)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestParseEndian(%s): got err == nil, want err != nil", test.in)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestParseEndian(%s): got err == %s, want err == nil", test.in, err)
			continue
		case err != nil:
			if !errors.Is(err, errors.ErrDomain) {
				t.Errorf("TestParseEndian(%s): got err == %s, want ErrDomain", test.in, err)
			}
			continue
		}
		if got != test.want {
			t.Errorf("TestParseEndian(%s): got %s, want %s", test.in, got, test.want)
		}
	}
}
