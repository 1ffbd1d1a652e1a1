package field

import (
	"fmt"
	"sort"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// children is the ordered, name indexed child list shared by the composite fields.
type children struct {
	owner Container
	list  []Field
	index map[string]int
}

// Len implements Container.Len().
func (c *children) Len() int {
	return len(c.list)
}

// At implements Container.At().
func (c *children) At(i int) Field {
	return c.list[i]
}

// Get implements Container.Get().
func (c *children) Get(name string) Field {
	if i, ok := c.index[name]; ok {
		return c.list[i]
	}
	return nil
}

// IndexOf implements Container.IndexOf().
func (c *children) IndexOf(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return -1
}

// Names implements Container.Names().
func (c *children) Names() []string {
	out := make([]string, len(c.list))
	for i, f := range c.list {
		out[i] = f.Name()
	}
	return out
}

// Remove implements Container.Remove().
func (c *children) Remove(name string) error {
	i, ok := c.index[name]
	if !ok {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: no child %q", Path(c.owner), name)
	}
	c.list[i].base().parent = nil
	c.list = append(c.list[:i], c.list[i+1:]...)
	c.reindex()
	return nil
}

func (c *children) all() []Field {
	out := make([]Field, len(c.list))
	copy(out, c.list)
	return out
}

func (c *children) join() bits.Buffer {
	bufs := make([]bits.Buffer, len(c.list))
	for i, f := range c.list {
		bufs[i] = f.Bits()
	}
	return bits.Join(bufs...)
}

func (c *children) reindex() {
	c.index = make(map[string]int, len(c.list))
	for i, f := range c.list {
		c.index[f.Name()] = i
	}
}

// parseAll threads in through the children in order.
func (c *children) parseAll(in bits.Buffer) (bits.Buffer, error) {
	rest := in
	for _, f := range c.list {
		var err error
		rest, err = f.Parse(rest)
		if err != nil {
			return rest, err
		}
	}
	return rest, nil
}

// canAttach checks that f can become a child of c.owner without sharing it with another parent
// or creating a cycle.
func (c *children) canAttach(f Field) error {
	if f == nil {
		return errors.Wrapf(errors.ErrType, "%s: can't add a nil field", Path(c.owner))
	}
	if p := f.Parent(); p != nil && p != c.owner {
		return errors.Wrapf(errors.ErrAttached, "%s: %s is a child of %s", Path(c.owner), f.Name(), Path(p))
	}
	for a := Field(c.owner); a != nil; a = parentOf(a) {
		if a == f {
			return errors.Wrapf(errors.ErrAttached, "%s: adding %s would create a cycle", Path(c.owner), f.Name())
		}
	}
	return nil
}

func parentOf(f Field) Field {
	p := f.Parent()
	if p == nil {
		return nil
	}
	return p
}

func (c *children) attach(f Field, name string, synth bool) {
	b := f.base()
	b.parent = c.owner
	b.name = name
	b.synth = synth
}

func (c *children) insertAt(i int, f Field) {
	c.list = append(c.list, nil)
	copy(c.list[i+1:], c.list[i:])
	c.list[i] = f
	c.reindex()
}

// replaceAt swaps the child at i for f, which must have passed canAttach.
func (c *children) replaceAt(i int, f Field, name string, synth bool) {
	old := c.list[i]
	if old != f {
		old.base().parent = nil
	}
	c.attach(f, name, synth)
	c.list[i] = f
	c.reindex()
}

// replaceAll swaps all children for named. synth marks the names that were generated.
// Nothing changes if any entry is invalid.
func (c *children) replaceAll(named []Named, synth []bool) error {
	seen := make(map[string]bool, len(named))
	for _, n := range named {
		if n.Field == nil {
			return errors.Wrapf(errors.ErrType, "%s: child %q is not a field", Path(c.owner), n.Name)
		}
		if n.Name == "" {
			return errors.Wrapf(errors.ErrNameConflict, "%s: child names can't be empty", Path(c.owner))
		}
		if seen[n.Name] {
			return errors.Wrapf(errors.ErrNameConflict, "%s: child %q is given twice", Path(c.owner), n.Name)
		}
		seen[n.Name] = true
		if err := c.canAttach(n.Field); err != nil {
			return err
		}
	}

	for _, f := range c.list {
		f.base().parent = nil
	}
	c.list = make([]Field, 0, len(named))
	for i, n := range named {
		c.attach(n.Field, n.Name, synth[i])
		c.list = append(c.list, n.Field)
	}
	c.reindex()
	return nil
}

// toNamed converts the argument to SetChildren() to an ordered list. Fields without a name are
// named by synth(i) if synth is not nil, and the returned flags mark those names.
func toNamed(v any, synth func(i int) string) ([]Named, []bool, error) {
	var out []Named
	var flags []bool
	add := func(i int, n Named) error {
		if n.Field == nil {
			return errors.Wrapf(errors.ErrType, "element %d is not a field", i)
		}
		generated := false
		if n.Name == "" && synth != nil {
			n.Name = synth(i)
			generated = true
		}
		out = append(out, n)
		flags = append(flags, generated)
		return nil
	}

	switch x := v.(type) {
	case []Field:
		for i, f := range x {
			if f == nil {
				return nil, nil, errors.Wrapf(errors.ErrType, "element %d is nil", i)
			}
			if err := add(i, Named{Name: f.Name(), Field: f}); err != nil {
				return nil, nil, err
			}
		}
	case []Named:
		for i, n := range x {
			if err := add(i, n); err != nil {
				return nil, nil, err
			}
		}
	case map[string]Field:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if err := add(i, Named{Name: k, Field: x[k]}); err != nil {
				return nil, nil, err
			}
		}
	case []any:
		for i, e := range x {
			var n Named
			switch t := e.(type) {
			case Named:
				n = t
			case Field:
				n = Named{Name: t.Name(), Field: t}
			default:
				return nil, nil, errors.Wrapf(errors.ErrType, "element %d is a %T, not a field", i, e)
			}
			if err := add(i, n); err != nil {
				return nil, nil, err
			}
		}
	default:
		return nil, nil, errors.Wrapf(errors.ErrType, "can't set children from %T", v)
	}
	return out, flags, nil
}

// snapshot records the children and their bits so a failed SetValue() can be undone.
type snapshot struct {
	list  []Field
	names []string
	synth []bool
	saved []bits.Buffer
}

func (c *children) snapshot() snapshot {
	s := snapshot{
		list:  c.all(),
		names: make([]string, len(c.list)),
		synth: make([]bool, len(c.list)),
		saved: make([]bits.Buffer, len(c.list)),
	}
	for i, f := range c.list {
		s.names[i] = f.Name()
		s.synth[i] = f.base().synth
		s.saved[i] = f.Bits()
	}
	return s
}

func (c *children) restore(s snapshot) {
	keep := make(map[Field]bool, len(s.list))
	for _, f := range s.list {
		keep[f] = true
	}
	for _, f := range c.list {
		if !keep[f] {
			f.base().parent = nil
		}
	}
	c.list = s.list
	for i, f := range c.list {
		c.attach(f, s.names[i], s.synth[i])
	}
	c.reindex()
	// Children are re-parsed in order, so counts and tags are restored before the arrays and
	// unions that read them.
	for i, f := range c.list {
		if _, err := f.Parse(s.saved[i]); err != nil {
			panic(fmt.Sprintf("bug: restoring %s from its own saved bits: %s", Path(f), err))
		}
	}
}

func synthName(i int) string {
	return fmt.Sprintf("f%d", i)
}
