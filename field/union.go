package field

import (
	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// Chooser returns the payload a Union holds for the value of its tag field. Returning a nil
// Field means the payload is empty.
type Chooser func(tag Field) (Field, error)

// Union holds one payload field chosen by the value of a sibling tag, such as a function code or
// frame type. Its value is the payload's value.
type Union struct {
	Base
	children

	tag    Ref
	choose Chooser
}

// NewUnion creates a Union whose payload is chosen by choose from the sibling tag refers to.
func NewUnion(name string, tag Ref, choose Chooser, opts ...Option) *Union {
	if choose == nil {
		panic("field.NewUnion(): choose cannot be nil")
	}
	o := newOptions(opts)
	u := &Union{tag: tag, choose: choose}
	u.setup(u, name, o)
	u.owner = u
	u.reindex()
	applyDefault(u, o)
	return u
}

// Payload returns the current payload or nil.
func (u *Union) Payload() Field {
	if len(u.list) == 0 {
		return nil
	}
	return u.list[0]
}

// Tag returns the tag field, if it can be resolved.
func (u *Union) Tag() (Field, bool) {
	return u.tag.Resolve(u)
}

// Select makes f the payload, detaching the previous one. A nil f empties the Union.
func (u *Union) Select(f Field) error {
	if f == nil {
		for _, old := range u.list {
			old.base().parent = nil
		}
		u.list = nil
		u.reindex()
		return nil
	}
	if err := u.canAttach(f); err != nil {
		return err
	}
	name := f.Name()
	if name == "" {
		name = u.name
	}
	if len(u.list) == 0 {
		u.attach(f, name, false)
		u.list = []Field{f}
		u.reindex()
		return nil
	}
	u.replaceAt(0, f, name, false)
	return nil
}

// Choose selects a new payload for the tag's current value, as Parse() would.
func (u *Union) Choose() error {
	t, ok := u.Tag()
	if !ok {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: tag %s not found", Path(u), u.tag)
	}
	f, err := u.choose(t)
	if err != nil {
		return errors.Wrapf(err, "%s: tag %s", Path(u), t.Format())
	}
	return u.Select(f)
}

// Parse implements Field.Parse().
func (u *Union) Parse(in bits.Buffer) (bits.Buffer, error) {
	if err := u.Choose(); err != nil {
		return in, err
	}
	p := u.Payload()
	if p == nil {
		return in, nil
	}
	return p.Parse(in)
}

// Children implements Field.Children().
func (u *Union) Children() []Field {
	return u.all()
}

// SetChildren implements Container.SetChildren(). It accepts at most one field.
func (u *Union) SetChildren(v any) error {
	named, _, err := toNamed(v, nil)
	if err != nil {
		return errors.Wrapf(err, "%s", Path(u))
	}
	switch len(named) {
	case 0:
		return u.Select(nil)
	case 1:
		if err := u.Select(named[0].Field); err != nil {
			return err
		}
		if named[0].Name != "" {
			u.list[0].base().name = named[0].Name
			u.reindex()
		}
		return nil
	}
	return errors.Wrapf(errors.ErrDomain, "%s: a union holds one field, got %d", Path(u), len(named))
}

// Bits implements Field.Bits().
func (u *Union) Bits() bits.Buffer {
	return u.join()
}

// Value implements Field.Value(). It returns the payload's value, or nil.
func (u *Union) Value() any {
	if p := u.Payload(); p != nil {
		return p.Value()
	}
	return nil
}

// SetValue implements Field.SetValue(). A Field becomes the payload, anything else is assigned
// to the current payload.
func (u *Union) SetValue(v any) error {
	if f, ok := v.(Field); ok {
		return u.Select(f)
	}
	p := u.Payload()
	if p == nil {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: no payload selected", Path(u))
	}
	return p.SetValue(v)
}
