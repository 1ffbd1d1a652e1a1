package field

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// Char is one 8 bit character in a single byte character set (ISO-8859-1 by default).
// Its value is a one rune string.
type Char struct {
	Base
	cmap *charmap.Charmap
}

// NewChar creates a character field that starts as the zero byte.
func NewChar(name string, opts ...Option) *Char {
	o := newOptions(opts)
	c := &Char{cmap: o.cmap}
	c.setup(c, name, o)
	c.bits = bits.New(8)
	applyDefault(c, o)
	return c
}

// Parse implements Field.Parse().
func (c *Char) Parse(in bits.Buffer) (bits.Buffer, error) {
	return c.take(in, 8)
}

// Byte returns the encoded character.
func (c *Char) Byte() byte {
	return byte(c.bits.Uint())
}

// Rune returns the decoded character.
func (c *Char) Rune() rune {
	return c.cmap.DecodeByte(c.Byte())
}

// Value implements Field.Value(). It returns a string holding one rune.
func (c *Char) Value() any {
	return string(c.Rune())
}

// SetValue implements Field.SetValue(). It accepts a one rune string, a rune or a byte, which is
// stored as is.
func (c *Char) SetValue(v any) error {
	switch x := v.(type) {
	case byte:
		c.bits = bits.FromUint(uint64(x), 8)
		return nil
	case rune:
		return c.setRune(x)
	case string:
		if utf8.RuneCountInString(x) != 1 {
			return errors.Wrapf(errors.ErrDomain, "%s: %q is not one character", Path(c.me()), x)
		}
		r, _ := utf8.DecodeRuneInString(x)
		return c.setRune(r)
	}
	return errors.Wrapf(errors.ErrType, "%s: can't set %T", Path(c.me()), v)
}

func (c *Char) setRune(r rune) error {
	b, ok := c.cmap.EncodeRune(r)
	if !ok {
		return errors.Wrapf(errors.ErrDomain, "%s: %q is not in the character set", Path(c.me()), r)
	}
	c.bits = bits.FromUint(uint64(b), 8)
	return nil
}

// String is an Array of Chars whose value is their text. A fixed length String is padded with
// its pad character (a space by default), which is trimmed from Value().
type String struct {
	Array
	cmap *charmap.Charmap
	pad  byte
}

// NewString creates a String of exactly n characters.
func NewString(name string, n int, opts ...Option) *String {
	o := newOptions(opts)
	s := newString(o)
	s.initArray(s, name, Ref{}, n, s.newChar, o)
	s.padAll()
	applyDefault(s, o)
	return s
}

// NewStringRef creates a String whose length in characters is read from the sibling count
// refers to, or computed by WithCountFunc().
func NewStringRef(name string, count Ref, opts ...Option) *String {
	o := newOptions(opts)
	s := newString(o)
	s.initArray(s, name, count, -1, s.newChar, o)
	applyDefault(s, o)
	return s
}

func newString(o *options) *String {
	s := &String{cmap: o.cmap, pad: ' '}
	if o.hasPad {
		s.pad = o.pad
	}
	// Each character is one byte, so the count is the same either way.
	o.byteCount = false
	return s
}

func (s *String) newChar(int) Field {
	return NewChar("", WithCharmap(s.cmap))
}

func (s *String) padAll() {
	for _, f := range s.list {
		f.(*Char).bits = bits.FromUint(uint64(s.pad), 8)
	}
}

// Text returns the characters as a string. Trailing padding of a fixed length String is removed.
func (s *String) Text() string {
	sb := strings.Builder{}
	for _, f := range s.list {
		if c, ok := f.(*Char); ok {
			sb.WriteRune(c.Rune())
		}
	}
	if s.fixed < 0 {
		return sb.String()
	}
	return strings.TrimRight(sb.String(), string(s.cmap.DecodeByte(s.pad)))
}

// Value implements Field.Value(). It returns Text().
func (s *String) Value() any {
	return s.Text()
}

// SetValue implements Field.SetValue(). It accepts a string. A fixed length String pads shorter
// strings and rejects longer ones, otherwise the String is resized to fit.
func (s *String) SetValue(v any) error {
	str, ok := v.(string)
	if !ok {
		return errors.Wrapf(errors.ErrType, "%s: can't set %T, need string", Path(s.me()), v)
	}
	encoded := make([]byte, 0, len(str))
	for _, r := range str {
		b, ok := s.cmap.EncodeRune(r)
		if !ok {
			return errors.Wrapf(errors.ErrDomain, "%s: %q is not in the character set", Path(s.me()), r)
		}
		encoded = append(encoded, b)
	}
	if s.fixed >= 0 {
		if len(encoded) > s.fixed {
			return errors.Wrapf(errors.ErrDomain, "%s: %d characters don't fit in %d", Path(s.me()), len(encoded), s.fixed)
		}
		for len(encoded) < s.fixed {
			encoded = append(encoded, s.pad)
		}
	} else {
		s.Resize(len(encoded))
	}
	for i, b := range encoded {
		s.list[i].(*Char).bits = bits.FromUint(uint64(b), 8)
	}
	return nil
}

// Octets is an Array of 8 bit unsigned integers whose value is a []byte.
type Octets struct {
	Array
	pad byte
}

// NewOctets creates Octets of exactly n bytes.
func NewOctets(name string, n int, opts ...Option) *Octets {
	o := newOptions(opts)
	b := &Octets{pad: o.pad}
	o.byteCount = false
	b.initArray(b, name, Ref{}, n, newOctet, o)
	if b.pad != 0 {
		for _, f := range b.list {
			f.(*Uint).SetUint64(uint64(b.pad))
		}
	}
	applyDefault(b, o)
	return b
}

// NewOctetsRef creates Octets whose length in bytes is read from the sibling count refers to,
// or computed by WithCountFunc().
func NewOctetsRef(name string, count Ref, opts ...Option) *Octets {
	o := newOptions(opts)
	b := &Octets{pad: o.pad}
	o.byteCount = false
	b.initArray(b, name, count, -1, newOctet, o)
	applyDefault(b, o)
	return b
}

func newOctet(int) Field {
	return NewUint("", 8)
}

// Data returns the bytes.
func (b *Octets) Data() []byte {
	out := make([]byte, 0, len(b.list))
	for _, f := range b.list {
		out = append(out, f.Bytes()...)
	}
	return out
}

// Value implements Field.Value(). It returns Data().
func (b *Octets) Value() any {
	return b.Data()
}

// SetValue implements Field.SetValue(). It accepts a []byte. Fixed length Octets pad shorter
// values and reject longer ones, otherwise the Octets are resized to fit.
func (b *Octets) SetValue(v any) error {
	data, ok := v.([]byte)
	if !ok {
		return errors.Wrapf(errors.ErrType, "%s: can't set %T, need []byte", Path(b.me()), v)
	}
	if b.fixed >= 0 {
		if len(data) > b.fixed {
			return errors.Wrapf(errors.ErrDomain, "%s: %d bytes don't fit in %d", Path(b.me()), len(data), b.fixed)
		}
		padded := make([]byte, b.fixed)
		copy(padded, data)
		for i := len(data); i < b.fixed; i++ {
			padded[i] = b.pad
		}
		data = padded
	} else {
		b.Resize(len(data))
	}
	for i, c := range data {
		b.list[i].(*Uint).SetUint64(uint64(c))
	}
	return nil
}
