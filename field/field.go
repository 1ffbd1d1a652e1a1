/*
Package field is a declarative, bit accurate binary codec. A wire format is described as a tree of
named fields. Parsing walks the tree left to right, with each field consuming a prefix of the
input bits and handing the remainder to its right sibling. Emitting concatenates each field's bits
in the same order, so a parsed tree re-emits the exact bytes it was parsed from.

Leaf fields (Uint, Int, Bool, Float32, Char, Raw, DateTime, Enum, Flags, Checksum) hold a fixed
number of bits and convert between those bits and a Go value. Composite fields (Map, Seq, Array,
Union, String, Octets) hold ordered children and their bits are the concatenation of their
children's bits.

Example, a frame with a one byte id, a big endian count and that many data bytes:

	frame := field.NewMap("frame", field.WithChildren(
		field.NewInt("id", 8),
		field.NewUint("count", 16),
		field.NewArray("data", field.ByName("count"), func(int) field.Field {
			return field.NewUint("", 8)
		}),
	))

	if err := field.Unmarshal([]byte{0x01, 0x00, 0x02, 0x7F, 0x0F}, frame); err != nil {
		// Do something
	}
	fmt.Println(frame.Get("data").Value()) // [127 15]

Fields are not safe for concurrent use.
*/
package field

import (
	"encoding/hex"
	"fmt"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/internal/binary"
)

// Endian is the byte order used to translate a value to its wire bits.
type Endian = binary.Endian

const (
	// Big puts the most significant byte first. This is the default.
	Big = binary.Big
	// Little puts the least significant byte first.
	Little = binary.Little
)

// Field is a node in a codec tree.
type Field interface {
	// Name is the field's name. It is unique within its parent.
	Name() string
	// BitCount is the number of bits the field currently holds.
	BitCount() int
	// Endian is the byte order of the field's value.
	Endian() Endian
	// Bits returns the field's bits in wire order.
	Bits() bits.Buffer
	// Bytes returns Bits() as bytes, zero padded on the right.
	Bytes() []byte
	// Parse consumes the bits the field needs from the front of b and returns the rest.
	Parse(b bits.Buffer) (bits.Buffer, error)
	// Value decodes the field's bits into a Go value.
	Value() any
	// SetValue encodes v into the field's bits. On error the field is not changed.
	SetValue(v any) error
	// Parent returns the Container holding this field, if any.
	Parent() Container
	// Children returns the field's children in order. Leaves have none.
	Children() []Field
	// Format renders Value() with the field's format.
	Format() string
	// HexString renders Bytes() as 0x prefixed lowercase hex.
	HexString() string
	// BinaryString renders Bits() as 0s and 1s in wire order.
	BinaryString() string
	// BinaryStringLSB renders Bits() as 0s and 1s in reverse wire order.
	BinaryStringLSB() string

	base() *Base
}

// Container is a Field with children that can be looked up by name or position.
type Container interface {
	Field

	// Len is the number of children.
	Len() int
	// At returns the ith child. It panics if i is out of range.
	At(i int) Field
	// Get returns the child named name or nil.
	Get(name string) Field
	// Names returns the children's names in order.
	Names() []string
	// IndexOf returns the position of the child named name or -1.
	IndexOf(name string) int
	// Remove detaches the child named name.
	Remove(name string) error
	// SetChildren replaces all children. It accepts []Field, []Named, map[string]Field or
	// []any holding Field or Named values.
	SetChildren(v any) error
}

// Named pairs a name with a Field, for ordered assignment with SetChildren().
type Named struct {
	Name  string
	Field Field
}

// Base holds the state common to all fields and provides the default behavior. Parse() and
// SetValue() return ErrNotImplemented. Custom fields embed Base and call Init().
type Base struct {
	self   Field
	name   string
	endian Endian
	format string
	parent Container
	bits   bits.Buffer
	synth  bool
}

// Init sets up Base for the field self that embeds it.
func (b *Base) Init(self Field, name string, opts ...Option) {
	o := newOptions(opts)
	b.setup(self, name, o)
}

func (b *Base) setup(self Field, name string, o *options) {
	b.self = self
	b.name = name
	b.endian = o.endian
	b.format = o.format
}

func (b *Base) base() *Base {
	return b
}

func (b *Base) me() Field {
	if b.self == nil {
		return b
	}
	return b.self
}

// Name implements Field.Name().
func (b *Base) Name() string {
	return b.name
}

// Endian implements Field.Endian().
func (b *Base) Endian() Endian {
	return b.endian
}

// BitCount implements Field.BitCount().
func (b *Base) BitCount() int {
	return b.me().Bits().Len()
}

// Bits implements Field.Bits().
func (b *Base) Bits() bits.Buffer {
	return b.bits
}

// Bytes implements Field.Bytes().
func (b *Base) Bytes() []byte {
	return b.me().Bits().Bytes()
}

// Parse implements Field.Parse().
func (b *Base) Parse(in bits.Buffer) (bits.Buffer, error) {
	return in, errors.Wrapf(errors.ErrNotImplemented, "%s: Parse", Path(b.me()))
}

// Value implements Field.Value().
func (b *Base) Value() any {
	return nil
}

// SetValue implements Field.SetValue().
func (b *Base) SetValue(v any) error {
	return errors.Wrapf(errors.ErrNotImplemented, "%s: SetValue", Path(b.me()))
}

// Parent implements Field.Parent().
func (b *Base) Parent() Container {
	return b.parent
}

// Children implements Field.Children().
func (b *Base) Children() []Field {
	return nil
}

// Format implements Field.Format().
func (b *Base) Format() string {
	return fmt.Sprintf(b.format, b.me().Value())
}

// HexString implements Field.HexString().
func (b *Base) HexString() string {
	return "0x" + hex.EncodeToString(b.me().Bytes())
}

// BinaryString implements Field.BinaryString().
func (b *Base) BinaryString() string {
	return b.me().Bits().String()
}

// BinaryStringLSB implements Field.BinaryStringLSB().
func (b *Base) BinaryStringLSB() string {
	return b.me().Bits().StringLSB()
}

// String implements fmt.Stringer.
func (b *Base) String() string {
	return fmt.Sprintf("%s(%s)", b.name, b.me().Format())
}

// take stores the first n bits of in as the field's bits.
func (b *Base) take(in bits.Buffer, n int) (bits.Buffer, error) {
	if in.Len() < n {
		return in, errors.Wrapf(errors.ErrInsufficientData, "%s: need %d bits, have %d", Path(b.me()), n, in.Len())
	}
	b.bits = in.Take(n).Clone()
	return in.Skip(n), nil
}

// applyDefault assigns the WithDefault() value. A bad default is a programming error.
func applyDefault(f Field, o *options) {
	if !o.hasDef {
		return
	}
	if err := f.SetValue(o.def); err != nil {
		panic(fmt.Sprintf("field %q: bad default %v: %s", f.Name(), o.def, err))
	}
}

func checkWidth(kind string, n, lo, hi int) {
	if n < lo || n > hi {
		panic(fmt.Sprintf("field.New%s(): width must be in [%d, %d], was %d", kind, lo, hi, n))
	}
}
