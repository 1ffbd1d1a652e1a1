package field

import (
	"math"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/internal/binary"
)

// Uint is an unsigned integer of 1 to 64 bits. Its value is a uint64.
type Uint struct {
	Base
	n int
}

// NewUint creates an n bit unsigned integer field that starts at zero.
func NewUint(name string, n int, opts ...Option) *Uint {
	checkWidth("Uint", n, 1, 64)
	o := newOptions(opts)
	u := &Uint{}
	u.initUint(u, name, n, o)
	applyDefault(u, o)
	return u
}

func (u *Uint) initUint(self Field, name string, n int, o *options) {
	u.setup(self, name, o)
	u.n = n
	u.bits = bits.New(n)
}

// Parse implements Field.Parse().
func (u *Uint) Parse(in bits.Buffer) (bits.Buffer, error) {
	return u.take(in, u.n)
}

// Value implements Field.Value(). It returns a uint64.
func (u *Uint) Value() any {
	return u.Uint64()
}

// Uint64 returns the field's value.
func (u *Uint) Uint64() uint64 {
	return binary.FromWire(u.bits.Uint(), u.n, u.endian)
}

// SetValue implements Field.SetValue(). It accepts any Go integer.
func (u *Uint) SetValue(v any) error {
	x, err := asUint(v)
	if err != nil {
		return errors.Wrapf(err, "%s: can't set %v(%T)", Path(u.me()), v, v)
	}
	return u.SetUint64(x)
}

// SetUint64 sets the field's value.
func (u *Uint) SetUint64(x uint64) error {
	if x > maxUint(u.n) {
		return errors.Wrapf(errors.ErrDomain, "%s: %d does not fit in %d bits", Path(u.me()), x, u.n)
	}
	u.bits = bits.FromUint(binary.ToWire(x, u.n, u.endian), u.n)
	return nil
}

// Int is a two's complement signed integer of 1 to 64 bits. Its value is an int64.
type Int struct {
	Base
	n int
}

// NewInt creates an n bit signed integer field that starts at zero.
func NewInt(name string, n int, opts ...Option) *Int {
	checkWidth("Int", n, 1, 64)
	o := newOptions(opts)
	i := &Int{n: n}
	i.setup(i, name, o)
	i.bits = bits.New(n)
	applyDefault(i, o)
	return i
}

// Parse implements Field.Parse().
func (i *Int) Parse(in bits.Buffer) (bits.Buffer, error) {
	return i.take(in, i.n)
}

// Value implements Field.Value(). It returns an int64.
func (i *Int) Value() any {
	return i.Int64()
}

// Int64 returns the field's value.
func (i *Int) Int64() int64 {
	return binary.SignExtend(binary.FromWire(i.bits.Uint(), i.n, i.endian), i.n)
}

// SetValue implements Field.SetValue(). It accepts any Go integer.
func (i *Int) SetValue(v any) error {
	x, err := asInt(v)
	if err != nil {
		return errors.Wrapf(err, "%s: can't set %v(%T)", Path(i.me()), v, v)
	}
	return i.SetInt64(x)
}

// SetInt64 sets the field's value.
func (i *Int) SetInt64(x int64) error {
	if i.n < 64 {
		lo, hi := -(int64(1) << (i.n - 1)), int64(1)<<(i.n-1)
		if x < lo || x >= hi {
			return errors.Wrapf(errors.ErrDomain, "%s: %d does not fit in %d signed bits", Path(i.me()), x, i.n)
		}
	}
	i.bits = bits.FromUint(binary.ToWire(bits.SetValue(uint64(x), uint64(0), 0, uint64(i.n)), i.n, i.endian), i.n)
	return nil
}

// Bool is a single bit. Its value is a bool.
type Bool struct {
	Base
}

// NewBool creates a one bit field that starts false.
func NewBool(name string, opts ...Option) *Bool {
	o := newOptions(opts)
	b := &Bool{}
	b.setup(b, name, o)
	b.bits = bits.New(1)
	applyDefault(b, o)
	return b
}

// Parse implements Field.Parse().
func (b *Bool) Parse(in bits.Buffer) (bits.Buffer, error) {
	return b.take(in, 1)
}

// Value implements Field.Value(). It returns a bool.
func (b *Bool) Value() any {
	return b.bits.Bit(0)
}

// SetValue implements Field.SetValue(). It accepts a bool or the integers 0 and 1.
func (b *Bool) SetValue(v any) error {
	switch x := v.(type) {
	case bool:
		b.bits = bits.FromBools([]bool{x})
		return nil
	}
	x, err := asUint(v)
	if err != nil {
		return errors.Wrapf(err, "%s: can't set %v(%T)", Path(b.me()), v, v)
	}
	if x > 1 {
		return errors.Wrapf(errors.ErrDomain, "%s: %d is not 0 or 1", Path(b.me()), x)
	}
	b.bits = bits.FromUint(x, 1)
	return nil
}

// Uint64 returns 1 if the bit is set.
func (b *Bool) Uint64() uint64 {
	return b.bits.Uint()
}

// Float32 is an IEEE-754 single precision number. Its value is a float32.
type Float32 struct {
	Base
}

// NewFloat32 creates a 32 bit float field that starts at zero.
func NewFloat32(name string, opts ...Option) *Float32 {
	o := newOptions(opts)
	f := &Float32{}
	f.setup(f, name, o)
	f.bits = bits.New(32)
	applyDefault(f, o)
	return f
}

// Parse implements Field.Parse().
func (f *Float32) Parse(in bits.Buffer) (bits.Buffer, error) {
	return f.take(in, 32)
}

// Value implements Field.Value(). It returns a float32.
func (f *Float32) Value() any {
	return f.Float32()
}

// Float32 returns the field's value.
func (f *Float32) Float32() float32 {
	return math.Float32frombits(uint32(binary.FromWire(f.bits.Uint(), 32, f.endian)))
}

// SetValue implements Field.SetValue(). It accepts float32, float64 and integers.
func (f *Float32) SetValue(v any) error {
	var x float32
	switch t := v.(type) {
	case float32:
		x = t
	case float64:
		if !math.IsInf(t, 0) && !math.IsNaN(t) && math.Abs(t) > math.MaxFloat32 {
			return errors.Wrapf(errors.ErrDomain, "%s: %v overflows a float32", Path(f.me()), t)
		}
		x = float32(t)
	default:
		i, err := asInt(v)
		if err != nil {
			return errors.Wrapf(err, "%s: can't set %v(%T)", Path(f.me()), v, v)
		}
		x = float32(i)
	}
	f.bits = bits.FromUint(binary.ToWire(uint64(math.Float32bits(x)), 32, f.endian), 32)
	return nil
}

// Raw holds bits that have no interpretation. Its value is a []byte, zero padded on the right.
type Raw struct {
	Base
	n int
}

// NewRaw creates an n bit opaque field that starts as all zeros.
func NewRaw(name string, n int, opts ...Option) *Raw {
	if n < 0 {
		panic("field.NewRaw(): width cannot be negative")
	}
	o := newOptions(opts)
	r := &Raw{n: n}
	r.setup(r, name, o)
	r.bits = bits.New(n)
	applyDefault(r, o)
	return r
}

// Parse implements Field.Parse().
func (r *Raw) Parse(in bits.Buffer) (bits.Buffer, error) {
	return r.take(in, r.n)
}

// Value implements Field.Value(). It returns a []byte.
func (r *Raw) Value() any {
	return r.bits.Bytes()
}

// SetValue implements Field.SetValue(). It accepts a []byte holding at least the field's bits;
// bits past the field's width must be zero.
func (r *Raw) SetValue(v any) error {
	b, ok := v.([]byte)
	if !ok {
		return errors.Wrapf(errors.ErrType, "%s: can't set %T, need []byte", Path(r.me()), v)
	}
	if len(b)*8 < r.n {
		return errors.Wrapf(errors.ErrDomain, "%s: %d bytes can't fill %d bits", Path(r.me()), len(b), r.n)
	}
	all := bits.FromBytes(b)
	if !all.Skip(r.n).Equal(bits.New(all.Len() - r.n)) {
		return errors.Wrapf(errors.ErrDomain, "%s: value is wider than %d bits", Path(r.me()), r.n)
	}
	r.bits = all.Take(r.n).Clone()
	return nil
}
