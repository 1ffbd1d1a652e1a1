package field

import (
	"fmt"
	"strings"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
)

// Enum is an unsigned integer whose values are named by an enums.Group. Its value is the
// enums.Enum for known numbers and the raw uint64 for others.
type Enum struct {
	Uint
	group  *enums.Group
	strict bool
}

// NewEnum creates an n bit Enum. If n is 0, the group's Size() is used.
func NewEnum(name string, g *enums.Group, n int, opts ...Option) *Enum {
	if g == nil {
		panic("field.NewEnum(): group cannot be nil")
	}
	if n == 0 {
		n = g.Size()
	}
	checkWidth("Enum", n, 1, 64)
	o := newOptions(opts)
	e := &Enum{group: g, strict: o.strict}
	e.initUint(e, name, n, o)
	applyDefault(e, o)
	return e
}

// Group returns the group naming the values.
func (e *Enum) Group() *enums.Group {
	return e.group
}

// Enum returns the named value, if the number is in the group.
func (e *Enum) Enum() (enums.Enum, bool) {
	return e.group.ByValue(e.Uint64())
}

// Value implements Field.Value().
func (e *Enum) Value() any {
	if v, ok := e.Enum(); ok {
		return v
	}
	return e.Uint64()
}

// SetValue implements Field.SetValue(). It accepts an enums.Enum of the group, a value name or an
// integer. Integers outside the group are stored unless the field is Strict().
func (e *Enum) SetValue(v any) error {
	switch x := v.(type) {
	case enums.Enum:
		if !e.group.Contains(x) {
			return errors.Wrapf(errors.ErrDomain, "%s: %s is not in %s", Path(e.me()), x, e.group.Name())
		}
		return e.SetUint64(x.Number())
	case string:
		ev, ok := e.group.ByName(x)
		if !ok {
			return errors.Wrapf(errors.ErrDomain, "%s: %s has no value %q", Path(e.me()), e.group.Name(), x)
		}
		return e.SetUint64(ev.Number())
	}
	n, err := asUint(v)
	if err != nil {
		return errors.Wrapf(err, "%s: can't set %v(%T)", Path(e.me()), v, v)
	}
	if _, ok := e.group.ByValue(n); !ok && e.strict {
		return errors.Wrapf(errors.ErrDomain, "%s: %d is not in %s", Path(e.me()), n, e.group.Name())
	}
	return e.SetUint64(n)
}

// FlagSet is the value of a Flags field.
type FlagSet struct {
	// Raw holds all bits, including ones without a name.
	Raw uint64
	// Names are the names of the set flags, in number order.
	Names []string
}

// Has reports if the flag called name is set.
func (f FlagSet) Has(name string) bool {
	for _, n := range f.Names {
		if n == name {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (f FlagSet) String() string {
	if len(f.Names) == 0 {
		return fmt.Sprintf("%#x", f.Raw)
	}
	return strings.Join(f.Names, "|")
}

// Flags is an unsigned integer whose bits are named by an enums.Group. Each value in the group
// is a mask of one or more bits. Its value is a FlagSet.
type Flags struct {
	Uint
	group *enums.Group
}

// NewFlags creates an n bit Flags field.
func NewFlags(name string, g *enums.Group, n int, opts ...Option) *Flags {
	if g == nil {
		panic("field.NewFlags(): group cannot be nil")
	}
	checkWidth("Flags", n, 1, 64)
	o := newOptions(opts)
	f := &Flags{group: g}
	f.initUint(f, name, n, o)
	applyDefault(f, o)
	return f
}

// Group returns the group naming the flags.
func (f *Flags) Group() *enums.Group {
	return f.group
}

// Set returns the FlagSet for the current value.
func (f *Flags) Set() FlagSet {
	raw := f.Uint64()
	fs := FlagSet{Raw: raw}
	for _, e := range f.group.Enums() {
		if e.Number() != 0 && raw&e.Number() == e.Number() {
			fs.Names = append(fs.Names, e.Name())
		}
	}
	return fs
}

// Value implements Field.Value(). It returns a FlagSet.
func (f *Flags) Value() any {
	return f.Set()
}

// SetValue implements Field.SetValue(). It accepts an integer, a FlagSet, a flag name, an
// enums.Enum, or a []string or []enums.Enum to combine. Integers are masked to the field width.
func (f *Flags) SetValue(v any) error {
	var raw uint64
	switch x := v.(type) {
	case FlagSet:
		raw = x.Raw
	case string:
		return f.SetValue([]string{x})
	case []string:
		for _, name := range x {
			e, ok := f.group.ByName(name)
			if !ok {
				return errors.Wrapf(errors.ErrDomain, "%s: %s has no flag %q", Path(f.me()), f.group.Name(), name)
			}
			raw |= e.Number()
		}
	case enums.Enum:
		return f.SetValue([]enums.Enum{x})
	case []enums.Enum:
		for _, e := range x {
			if !f.group.Contains(e) {
				return errors.Wrapf(errors.ErrDomain, "%s: %s is not in %s", Path(f.me()), e, f.group.Name())
			}
			raw |= e.Number()
		}
	default:
		n, err := asUint(v)
		if err != nil {
			return errors.Wrapf(err, "%s: can't set %v(%T)", Path(f.me()), v, v)
		}
		raw = n
	}
	return f.SetUint64(bits.GetValue[uint64, uint64](raw, 0, uint64(f.n)))
}
