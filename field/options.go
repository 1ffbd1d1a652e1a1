package field

import (
	"golang.org/x/text/encoding/charmap"
)

// Option is an optional argument to a field constructor. Options that do not apply to a field
// type are ignored.
type Option func(o *options)

type options struct {
	endian Endian
	format string
	def    any
	hasDef bool

	utc        bool
	dateFormat string

	cmap   *charmap.Charmap
	pad    byte
	hasPad bool

	strict    bool
	byteCount bool
	countFunc CountFunc

	children []Field
}

func newOptions(opts []Option) *options {
	o := &options{
		endian:     Big,
		format:     "%v",
		dateFormat: "%Y-%m-%d %H:%M:%S",
		cmap:       charmap.ISO8859_1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithEndian sets the byte order of the field's value. The default is Big. On a Map it applies to the
// Map alone, not to its children.
func WithEndian(e Endian) Option {
	return func(o *options) {
		o.endian = e
	}
}

// WithFormat sets the fmt verb string used by Format(). The default is "%v".
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithDefault sets the field's initial value. The constructor panics if the field rejects it.
func WithDefault(v any) Option {
	return func(o *options) {
		o.def = v
		o.hasDef = true
	}
}

// WithUTC makes a DateTime present its value in UTC instead of the local time zone.
func WithUTC(utc bool) Option {
	return func(o *options) {
		o.utc = utc
	}
}

// WithDateFormat sets the strftime pattern a DateTime uses for Format().
// The default is "%Y-%m-%d %H:%M:%S".
func WithDateFormat(pattern string) Option {
	return func(o *options) {
		o.dateFormat = pattern
	}
}

// WithCharmap sets the single byte character set of a Char or String. The default is ISO-8859-1.
func WithCharmap(cm *charmap.Charmap) Option {
	return func(o *options) {
		o.cmap = cm
	}
}

// WithPad sets the byte used to fill a fixed length String or Octets. The default is a space
// for String and 0 for Octets.
func WithPad(b byte) Option {
	return func(o *options) {
		o.pad = b
		o.hasPad = true
	}
}

// Strict makes an Enum reject numbers that are not in its group.
func Strict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// ByteCount makes an Array's count a number of bytes instead of a number of elements.
func ByteCount() Option {
	return func(o *options) {
		o.byteCount = true
	}
}

// WithCountFunc makes an Array compute its count with fn instead of reading a sibling.
func WithCountFunc(fn CountFunc) Option {
	return func(o *options) {
		o.countFunc = fn
	}
}

// WithChildren adds children to a Map or Seq at construction. The constructor panics if a child
// can't be added.
func WithChildren(children ...Field) Option {
	return func(o *options) {
		o.children = append(o.children, children...)
	}
}
