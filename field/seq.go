package field

import (
	"fmt"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// Seq is an ordered composite whose children are mostly used by position. Children added
// without a name are named f0, f1, ... after their position. Its value is a []any.
type Seq struct {
	Base
	children
}

// NewSeq creates an empty Seq. Use WithChildren() to declare its children.
func NewSeq(name string, opts ...Option) *Seq {
	o := newOptions(opts)
	s := &Seq{}
	s.initSeq(s, name, o)
	for _, c := range o.children {
		if err := s.Append(c); err != nil {
			panic(fmt.Sprintf("field.NewSeq(%s): %s", name, err))
		}
	}
	applyDefault(s, o)
	return s
}

func (s *Seq) initSeq(self Container, name string, o *options) {
	s.setup(self, name, o)
	s.owner = self
	s.reindex()
}

// Append adds f to the end. If f has no name it is named after its position. If a child
// already has f's name, that child is replaced in place.
func (s *Seq) Append(f Field) error {
	return s.Insert(len(s.list), f)
}

// Insert adds f at position i, shifting later children right. Generated names are renumbered
// to match the new positions. If a child already has f's name, that child is replaced in place
// and i is ignored.
func (s *Seq) Insert(i int, f Field) error {
	if f == nil {
		return errors.Wrapf(errors.ErrType, "%s: can't add a nil field", Path(s.me()))
	}
	if i < 0 || i > len(s.list) {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: position %d is out of range", Path(s.me()), i)
	}
	if err := s.canAttach(f); err != nil {
		return err
	}

	name, synth := f.Name(), false
	if f.Parent() == s.owner {
		// Moving a child within the Seq.
		if err := s.Remove(name); err != nil {
			return err
		}
		if i > len(s.list) {
			i = len(s.list)
		}
		synth = f.base().synth
	}
	if name == "" || synth {
		name, synth = synthName(i), true
	}
	if j, ok := s.index[name]; ok {
		if !synth {
			s.replaceAt(j, f, name, false)
			return nil
		}
	}

	s.attach(f, name, synth)
	s.insertAt(i, f)
	s.renumber()
	return nil
}

// renumber renames children with generated names after their position.
func (s *Seq) renumber() {
	changed := false
	for i, f := range s.list {
		b := f.base()
		if b.synth && b.name != synthName(i) {
			b.name = synthName(i)
			changed = true
		}
	}
	if changed {
		s.reindex()
	}
}

// Children implements Field.Children().
func (s *Seq) Children() []Field {
	return s.all()
}

// SetChildren implements Container.SetChildren(). Fields without names are named after their
// position.
func (s *Seq) SetChildren(v any) error {
	named, synth, err := toNamed(v, synthName)
	if err != nil {
		return errors.Wrapf(err, "%s", Path(s.me()))
	}
	return s.replaceAll(named, synth)
}

// Bits implements Field.Bits().
func (s *Seq) Bits() bits.Buffer {
	return s.join()
}

// Parse implements Field.Parse().
func (s *Seq) Parse(in bits.Buffer) (bits.Buffer, error) {
	return s.parseAll(in)
}

// Value implements Field.Value(). It returns a []any.
func (s *Seq) Value() any {
	out := make([]any, len(s.list))
	for i, f := range s.list {
		out[i] = f.Value()
	}
	return out
}

// SetValue implements Field.SetValue(). v must be a []any. Elements holding a Field replace the
// child at that position or are appended, other elements are assigned to the existing child at
// that position. If any element fails, the Seq is left as it was.
func (s *Seq) SetValue(v any) error {
	return s.setValues(v, nil)
}

// setValues implements SetValue. newElem, if set, creates children for bare values past the end.
func (s *Seq) setValues(v any, newElem func(i int) Field) error {
	vals, ok := v.([]any)
	if !ok {
		return errors.Wrapf(errors.ErrType, "%s: can't set %T, need []any", Path(s.me()), v)
	}

	snap := s.snapshot()
	for i, val := range vals {
		var err error
		switch x := val.(type) {
		case Field:
			if i < len(s.list) {
				if err = s.canAttach(x); err == nil {
					name, synth := s.list[i].Name(), s.list[i].base().synth
					if x.Name() != "" && !synth {
						name = x.Name()
					}
					if j, ok := s.index[name]; ok && j != i {
						err = errors.Wrapf(errors.ErrNameConflict, "%s: %q is used by position %d", Path(s.me()), name, j)
						break
					}
					s.replaceAt(i, x, name, synth)
				}
				break
			}
			err = s.Append(x)
		default:
			switch {
			case i < len(s.list):
				err = s.list[i].SetValue(x)
			case newElem != nil:
				f := newElem(i)
				if err = f.SetValue(x); err == nil {
					err = s.Append(f)
				}
			default:
				err = errors.Wrapf(errors.ErrNoSuchField, "%s: no child at position %d", Path(s.me()), i)
			}
		}
		if err != nil {
			s.restore(snap)
			return err
		}
	}
	return nil
}

// Remove implements Container.Remove(). Generated names are renumbered.
func (s *Seq) Remove(name string) error {
	if err := s.children.Remove(name); err != nil {
		return err
	}
	s.renumber()
	return nil
}
