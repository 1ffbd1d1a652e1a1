package field

import (
	"fmt"
	"sort"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// Map is an ordered composite whose children are looked up by name or position.
// Its value is a map[string]any of child values. Use Names() for their order.
type Map struct {
	Base
	children
}

// NewMap creates an empty Map. Use WithChildren() to declare its children.
func NewMap(name string, opts ...Option) *Map {
	o := newOptions(opts)
	m := &Map{}
	m.setup(m, name, o)
	m.owner = m
	m.reindex()
	for _, c := range o.children {
		if err := m.Add(c); err != nil {
			panic(fmt.Sprintf("field.NewMap(%s): %s", name, err))
		}
	}
	applyDefault(m, o)
	return m
}

// Add appends f under its own name.
func (m *Map) Add(f Field) error {
	if f == nil {
		return errors.Wrapf(errors.ErrType, "%s: can't add a nil field", Path(m))
	}
	return m.add(f.Name(), f)
}

func (m *Map) add(name string, f Field) error {
	if name == "" {
		return errors.Wrapf(errors.ErrNameConflict, "%s: child names can't be empty", Path(m))
	}
	if _, ok := m.index[name]; ok {
		return errors.Wrapf(errors.ErrNameConflict, "%s: already has a child named %q", Path(m), name)
	}
	if err := m.canAttach(f); err != nil {
		return err
	}
	m.attach(f, name, false)
	m.list = append(m.list, f)
	m.index[name] = len(m.list) - 1
	return nil
}

// Set stores f under name, renaming f. If a child already has that name it is replaced in
// place and detached, otherwise f is appended.
func (m *Map) Set(name string, f Field) error {
	i, ok := m.index[name]
	if !ok {
		return m.add(name, f)
	}
	if f == nil {
		return errors.Wrapf(errors.ErrType, "%s: can't set %q to a nil field", Path(m), name)
	}
	if err := m.canAttach(f); err != nil {
		return err
	}
	if j, ok := m.index[f.Name()]; ok && f.Parent() == m && j != i {
		return errors.Wrapf(errors.ErrNameConflict, "%s: %q is already the child %q", Path(m), name, f.Name())
	}
	m.replaceAt(i, f, name, false)
	return nil
}

// Children implements Field.Children().
func (m *Map) Children() []Field {
	return m.all()
}

// SetChildren implements Container.SetChildren().
func (m *Map) SetChildren(v any) error {
	named, synth, err := toNamed(v, nil)
	if err != nil {
		return errors.Wrapf(err, "%s", Path(m))
	}
	return m.replaceAll(named, synth)
}

// Bits implements Field.Bits().
func (m *Map) Bits() bits.Buffer {
	return m.join()
}

// Parse implements Field.Parse(). Children parse in order. On error the children parsed before
// the failure keep their new values.
func (m *Map) Parse(in bits.Buffer) (bits.Buffer, error) {
	return m.parseAll(in)
}

// Value implements Field.Value(). It returns a map[string]any.
func (m *Map) Value() any {
	out := make(map[string]any, len(m.list))
	for _, f := range m.list {
		out[f.Name()] = f.Value()
	}
	return out
}

// SetValue implements Field.SetValue(). v must be a map[string]any. An entry holding a Field
// replaces or adds that child, any other entry is assigned to the existing child of that name.
// If any entry fails, the Map is left as it was.
func (m *Map) SetValue(v any) error {
	vals, ok := v.(map[string]any)
	if !ok {
		return errors.Wrapf(errors.ErrType, "%s: can't set %T, need map[string]any", Path(m), v)
	}

	snap := m.snapshot()
	for _, k := range m.orderKeys(vals) {
		var err error
		switch x := vals[k].(type) {
		case Field:
			err = m.Set(k, x)
		default:
			child := m.Get(k)
			if child == nil {
				err = errors.Wrapf(errors.ErrNoSuchField, "%s: no child %q", Path(m), k)
				break
			}
			err = child.SetValue(x)
		}
		if err != nil {
			m.restore(snap)
			return err
		}
	}
	return nil
}

// orderKeys returns keys of existing children in child order, then new keys sorted.
func (m *Map) orderKeys(vals map[string]any) []string {
	keys := make([]string, 0, len(vals))
	for _, f := range m.list {
		if _, ok := vals[f.Name()]; ok {
			keys = append(keys, f.Name())
		}
	}
	var extra []string
	for k := range vals {
		if _, ok := m.index[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}
