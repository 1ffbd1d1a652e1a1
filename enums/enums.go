// Package enums describes named integer domains, such as function codes or frame types, used by
// enum and flags fields.
package enums

import (
	"fmt"
	"math/bits"
	"sort"
)

// Enum is one named value of a Group.
type Enum struct {
	// EnumGroup is the name of the Group the value belongs to.
	EnumGroup string
	// EnumName is the name of the value.
	EnumName string
	// EnumNumber is the number the value encodes to.
	EnumNumber uint64
}

// Name returns the name of the Enum value.
func (e Enum) Name() string {
	return e.EnumName
}

// Number returns the enum number value.
func (e Enum) Number() uint64 {
	return e.EnumNumber
}

// Group returns the name of the group the value belongs to.
func (e Enum) Group() string {
	return e.EnumGroup
}

// String implements fmt.Stringer.
func (e Enum) String() string {
	return e.EnumName
}

// Value is used to declare a Group.
type Value struct {
	Name   string
	Number uint64
}

// Group is a set of named values.
type Group struct {
	name   string
	descrs []Enum
	byName map[string]int
	byNum  map[uint64]int
}

// NewGroup creates a Group. Values are kept in number order. It panics if a name or number is
// repeated, as that is a programming error.
func NewGroup(name string, values ...Value) *Group {
	if name == "" {
		panic("enums.NewGroup(): name cannot be empty")
	}
	g := &Group{
		name:   name,
		descrs: make([]Enum, 0, len(values)),
		byName: make(map[string]int, len(values)),
		byNum:  make(map[uint64]int, len(values)),
	}

	sorted := make([]Value, len(values))
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	for _, v := range sorted {
		if v.Name == "" {
			panic(fmt.Sprintf("enums.NewGroup(%s): value %d has no name", name, v.Number))
		}
		if _, ok := g.byName[v.Name]; ok {
			panic(fmt.Sprintf("enums.NewGroup(%s): name %s is used twice", name, v.Name))
		}
		if _, ok := g.byNum[v.Number]; ok {
			panic(fmt.Sprintf("enums.NewGroup(%s): number %d is used twice", name, v.Number))
		}
		g.byName[v.Name] = len(g.descrs)
		g.byNum[v.Number] = len(g.descrs)
		g.descrs = append(g.descrs, Enum{EnumGroup: name, EnumName: v.Name, EnumNumber: v.Number})
	}
	return g
}

// Name is the name of the enum group.
func (g *Group) Name() string {
	return g.name
}

// Len reports the number of enum values.
func (g *Group) Len() int {
	return len(g.descrs)
}

// Get returns the ith Enum in number order. It panics if out of bounds.
func (g *Group) Get(i int) Enum {
	return g.descrs[i]
}

// Enums returns all values in number order.
func (g *Group) Enums() []Enum {
	out := make([]Enum, len(g.descrs))
	copy(out, g.descrs)
	return out
}

// ByName returns the Enum named s.
func (g *Group) ByName(s string) (Enum, bool) {
	i, ok := g.byName[s]
	if !ok {
		return Enum{}, false
	}
	return g.descrs[i], true
}

// ByValue returns the Enum with number n.
func (g *Group) ByValue(n uint64) (Enum, bool) {
	i, ok := g.byNum[n]
	if !ok {
		return Enum{}, false
	}
	return g.descrs[i], true
}

// Contains reports if e is a value of this group.
func (g *Group) Contains(e Enum) bool {
	got, ok := g.ByValue(e.EnumNumber)
	return ok && got == e
}

// Size returns the number of bits needed to hold the largest number in the group.
// An empty group has size 1.
func (g *Group) Size() int {
	if len(g.descrs) == 0 {
		return 1
	}
	n := bits.Len64(g.descrs[len(g.descrs)-1].EnumNumber)
	if n == 0 {
		return 1
	}
	return n
}
