package field

import (
	"fmt"
	"strings"
)

// Ref refers to a field from one of its siblings, such as the count of an Array or the tag of a
// Union. It is resolved against the referring field's parent at parse time.
type Ref struct {
	path    []string
	index   int
	byIndex bool
}

// ByName refers to a sibling by name. The name may be a dotted path into a sibling Container,
// such as "sync.frame_type". If the parent has no match, the parent's ancestors are searched in
// turn, so fields inside a nested Container can refer to fields of an enclosing one.
func ByName(path string) Ref {
	if path == "" {
		panic("field.ByName(): path cannot be empty")
	}
	return Ref{path: strings.Split(path, ".")}
}

// ByIndex refers to the sibling at position i in the parent.
func ByIndex(i int) Ref {
	if i < 0 {
		panic("field.ByIndex(): index cannot be negative")
	}
	return Ref{index: i, byIndex: true}
}

// IsZero reports if the Ref was never set.
func (r Ref) IsZero() bool {
	return !r.byIndex && len(r.path) == 0
}

// String implements fmt.Stringer.
func (r Ref) String() string {
	if r.byIndex {
		return fmt.Sprintf("#%d", r.index)
	}
	return strings.Join(r.path, ".")
}

// Resolve finds the field r refers to from the field from. It returns false if from has no
// parent or nothing matches.
func (r Ref) Resolve(from Field) (Field, bool) {
	if r.IsZero() {
		return nil, false
	}
	p := from.Parent()
	if r.byIndex {
		if p == nil || r.index >= p.Len() {
			return nil, false
		}
		return p.At(r.index), true
	}
	for c := p; c != nil; c = c.Parent() {
		if f := lookup(c, r.path); f != nil && f != from {
			return f, true
		}
	}
	return nil, false
}

func lookup(c Container, path []string) Field {
	var cur Field = c
	for _, name := range path {
		cc, ok := cur.(Container)
		if !ok {
			return nil
		}
		cur = cc.Get(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}
