package field

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kylelemons/godebug/pretty"

	"github.com/bearlytools/bitcodec/errors"
)

func u8(name string) Field {
	return NewUint(name, 8)
}

func TestMapChildren(t *testing.T) {
	m := NewMap("m", WithChildren(u8("a"), u8("b")))

	if err := m.Add(u8("a")); !errors.Is(err, errors.ErrNameConflict) {
		t.Errorf("TestMapChildren: Add(duplicate) got %v, want ErrNameConflict", err)
	}

	c := u8("c")
	if err := m.Add(c); err != nil {
		t.Fatalf("TestMapChildren: Add(c) got err == %s", err)
	}
	if c.Parent() != m {
		t.Errorf("TestMapChildren: Parent() not set on Add()")
	}
	if diff := pretty.Compare([]string{"a", "b", "c"}, m.Names()); diff != "" {
		t.Errorf("TestMapChildren: -want/+got:\n%s", diff)
	}
	if m.IndexOf("b") != 1 || m.At(2) != Field(c) || m.Len() != 3 {
		t.Errorf("TestMapChildren: IndexOf/At/Len are wrong")
	}

	// Set replaces in place, renames and detaches the old child.
	old := m.Get("b")
	repl := NewUint("whatever", 16, WithDefault(0xBEEF))
	if err := m.Set("b", repl); err != nil {
		t.Fatalf("TestMapChildren: Set() got err == %s", err)
	}
	if repl.Name() != "b" || m.IndexOf("b") != 1 || old.Parent() != nil {
		t.Errorf("TestMapChildren: Set() did not replace in place")
	}
	if diff := cmp.Diff([]byte{0x00, 0xBE, 0xEF, 0x00}, m.Bytes()); diff != "" {
		t.Errorf("TestMapChildren: -want/+got:\n%s", diff)
	}

	if err := m.Remove("c"); err != nil {
		t.Fatalf("TestMapChildren: Remove() got err == %s", err)
	}
	if c.Parent() != nil || m.Get("c") != nil || m.Len() != 2 {
		t.Errorf("TestMapChildren: Remove() did not detach")
	}
	if err := m.Remove("c"); !errors.Is(err, errors.ErrNoSuchField) {
		t.Errorf("TestMapChildren: Remove(missing) got %v, want ErrNoSuchField", err)
	}
}

func TestAttachRules(t *testing.T) {
	a := NewMap("a")
	b := NewMap("b")
	leaf := u8("leaf")

	if err := a.Add(leaf); err != nil {
		t.Fatalf("TestAttachRules: Add() got err == %s", err)
	}
	if err := b.Add(leaf); !errors.Is(err, errors.ErrAttached) {
		t.Errorf("TestAttachRules: Add(attached) got %v, want ErrAttached", err)
	}
	if err := a.Add(b); err != nil {
		t.Fatalf("TestAttachRules: Add(b) got err == %s", err)
	}
	if err := b.Add(a); !errors.Is(err, errors.ErrAttached) {
		t.Errorf("TestAttachRules: Add(ancestor) got %v, want ErrAttached", err)
	}
	if err := a.Add(a); !errors.Is(err, errors.ErrAttached) {
		t.Errorf("TestAttachRules: Add(self) got %v, want ErrAttached", err)
	}
	if Path(leaf) != "a.leaf" {
		t.Errorf("TestAttachRules: Path() == %s, want a.leaf", Path(leaf))
	}
}

func TestMapSetValue(t *testing.T) {
	m := NewMap("m", WithChildren(u8("a"), u8("b")))
	m.SetValue(map[string]any{"a": 1, "b": 2})

	tests := []struct {
		name    string
		v       any
		want    []byte
		wantErr error
	}{
		{name: "Success: values", v: map[string]any{"a": 7}, want: []byte{7, 2}},
		{name: "Success: new field", v: map[string]any{"c": NewUint("", 8, WithDefault(9))}, want: []byte{1, 2, 9}},
		{name: "Error: not a map", v: []any{1}, wantErr: errors.ErrType},
		{name: "Error: unknown child", v: map[string]any{"a": 7, "zz": 1}, wantErr: errors.ErrNoSuchField},
		{name: "Error: second value bad", v: map[string]any{"a": 7, "b": 300}, wantErr: errors.ErrDomain},
	}

	for _, test := range tests {
		m := NewMap("m", WithChildren(u8("a"), u8("b")))
		m.SetValue(map[string]any{"a": 1, "b": 2})

		err := m.SetValue(test.v)
		switch {
		case err == nil && test.wantErr != nil:
			t.Errorf("TestMapSetValue(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && test.wantErr == nil:
			t.Errorf("TestMapSetValue(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			if !errors.Is(err, test.wantErr) {
				t.Errorf("TestMapSetValue(%s): got err == %s, want %s", test.name, err, test.wantErr)
			}
			// A failed assignment leaves the map as it was.
			if diff := cmp.Diff([]byte{1, 2}, m.Bytes()); diff != "" {
				t.Errorf("TestMapSetValue(%s): map changed -want/+got:\n%s", test.name, diff)
			}
			if m.Len() != 2 {
				t.Errorf("TestMapSetValue(%s): Len() == %d, want 2", test.name, m.Len())
			}
			continue
		}

		if diff := cmp.Diff(test.want, m.Bytes()); diff != "" {
			t.Errorf("TestMapSetValue(%s): -want/+got:\n%s", test.name, diff)
		}
	}
}

func TestMapSetValueRestoresCounted(t *testing.T) {
	m := NewMap("m", WithChildren(
		NewUint("len", 8),
		NewOctetsRef("data", ByName("len")),
	))
	if err := Unmarshal([]byte{0x02, 0xAA, 0xBB}, m); err != nil {
		t.Fatalf("TestMapSetValueRestoresCounted: Unmarshal() got err == %s", err)
	}

	// The count changes before the unknown key fails, so the octets must be re-read after it.
	err := m.SetValue(map[string]any{"len": 4, "data": []byte{1, 2, 3, 4}, "zz": 1})
	if err == nil {
		t.Fatalf("TestMapSetValueRestoresCounted: got err == nil, want err != nil")
	}
	if diff := cmp.Diff([]byte{0x02, 0xAA, 0xBB}, m.Bytes()); diff != "" {
		t.Errorf("TestMapSetValueRestoresCounted: -want/+got:\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0xAA, 0xBB}, m.Get("data").(*Octets).Data()); diff != "" {
		t.Errorf("TestMapSetValueRestoresCounted: data -want/+got:\n%s", diff)
	}
}

func TestSetChildren(t *testing.T) {
	m := NewMap("m", WithChildren(u8("a")))
	a := m.Get("a")

	if err := m.SetChildren([]any{u8("x"), 5}); !errors.Is(err, errors.ErrType) {
		t.Errorf("TestSetChildren: non-field got %v, want ErrType", err)
	}
	if err := m.SetChildren(42); !errors.Is(err, errors.ErrType) {
		t.Errorf("TestSetChildren: non-collection got %v, want ErrType", err)
	}
	if m.Len() != 1 || m.Get("a") != a {
		t.Errorf("TestSetChildren: failed SetChildren() changed the map")
	}

	if err := m.SetChildren(map[string]Field{"z": u8("one"), "y": u8("two")}); err != nil {
		t.Fatalf("TestSetChildren: map got err == %s", err)
	}
	if diff := pretty.Compare([]string{"y", "z"}, m.Names()); diff != "" {
		t.Errorf("TestSetChildren: -want/+got:\n%s", diff)
	}
	if a.Parent() != nil {
		t.Errorf("TestSetChildren: old child still attached")
	}

	if err := m.SetChildren([]Named{{"p", u8("")}, {"q", u8("")}}); err != nil {
		t.Fatalf("TestSetChildren: []Named got err == %s", err)
	}
	if diff := pretty.Compare([]string{"p", "q"}, m.Names()); diff != "" {
		t.Errorf("TestSetChildren: -want/+got:\n%s", diff)
	}

	s := NewSeq("s")
	if err := s.SetChildren([]Field{u8(""), u8("named"), u8("")}); err != nil {
		t.Fatalf("TestSetChildren: seq got err == %s", err)
	}
	if diff := pretty.Compare([]string{"f0", "named", "f2"}, s.Names()); diff != "" {
		t.Errorf("TestSetChildren: seq -want/+got:\n%s", diff)
	}
}

func TestSeq(t *testing.T) {
	s := NewSeq("s", WithChildren(u8(""), u8("")))
	if diff := pretty.Compare([]string{"f0", "f1"}, s.Names()); diff != "" {
		t.Errorf("TestSeq: -want/+got:\n%s", diff)
	}

	if err := s.Insert(0, NewUint("", 8, WithDefault(9))); err != nil {
		t.Fatalf("TestSeq: Insert() got err == %s", err)
	}
	if diff := pretty.Compare([]string{"f0", "f1", "f2"}, s.Names()); diff != "" {
		t.Errorf("TestSeq: names after Insert -want/+got:\n%s", diff)
	}
	if diff := cmp.Diff([]byte{9, 0, 0}, s.Bytes()); diff != "" {
		t.Errorf("TestSeq: -want/+got:\n%s", diff)
	}

	// A named child replaces a child of the same name in place.
	s.Append(NewUint("tail", 8, WithDefault(1)))
	s.Append(NewUint("tail", 8, WithDefault(2)))
	if s.Len() != 4 || s.Get("tail").Value() != uint64(2) {
		t.Errorf("TestSeq: re-inserting a name did not update in place")
	}

	if err := s.SetValue([]any{1, 2, 3, 4}); err != nil {
		t.Fatalf("TestSeq: SetValue() got err == %s", err)
	}
	if diff := pretty.Compare([]any{uint64(1), uint64(2), uint64(3), uint64(4)}, s.Value()); diff != "" {
		t.Errorf("TestSeq: -want/+got:\n%s", diff)
	}
	if err := s.SetValue([]any{5, 6, 7, 8, 9}); !errors.Is(err, errors.ErrNoSuchField) {
		t.Errorf("TestSeq: SetValue(too long) got %v, want ErrNoSuchField", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, s.Bytes()); diff != "" {
		t.Errorf("TestSeq: failed SetValue changed the seq -want/+got:\n%s", diff)
	}

	s.Remove("f0")
	if diff := pretty.Compare([]string{"f0", "f1", "tail"}, s.Names()); diff != "" {
		t.Errorf("TestSeq: names after Remove -want/+got:\n%s", diff)
	}
}

func TestArrayCounts(t *testing.T) {
	elem := func(int) Field { return NewUint("", 16) }

	tests := []struct {
		name    string
		build   func() *Map
		in      []byte
		wantLen int
		wantErr error
	}{
		{
			name: "Success: count by index",
			build: func() *Map {
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", ByIndex(0), elem)))
			},
			in:      []byte{2, 0, 1, 0, 2},
			wantLen: 2,
		},
		{
			name: "Success: byte count",
			build: func() *Map {
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", ByName("n"), elem, ByteCount())))
			},
			in:      []byte{4, 0, 1, 0, 2},
			wantLen: 2,
		},
		{
			name: "Success: count func",
			build: func() *Map {
				fn := func(p Container) (int, error) {
					return int(p.Get("n").(*Uint).Uint64()) - 1, nil
				}
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", Ref{}, elem, WithCountFunc(fn))))
			},
			in:      []byte{3, 0, 1, 0, 2},
			wantLen: 2,
		},
		{
			name: "Success: nested path",
			build: func() *Map {
				return NewMap("m", WithChildren(
					NewMap("hdr", WithChildren(NewUint("n", 8))),
					NewArray("a", ByName("hdr.n"), elem),
				))
			},
			in:      []byte{1, 0, 1},
			wantLen: 1,
		},
		{
			name: "Success: missing count reads nothing",
			build: func() *Map {
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", ByName("nope"), elem)))
			},
			in:      []byte{2},
			wantLen: 0,
		},
		{
			name: "Error: elements run out",
			build: func() *Map {
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", ByName("n"), elem)))
			},
			in:      []byte{3, 0, 1, 0, 2, 0},
			wantLen: 2,
			wantErr: errors.ErrInsufficientData,
		},
		{
			name: "Error: byte count too large",
			build: func() *Map {
				return NewMap("m", WithChildren(NewUint("n", 8), NewArray("a", ByName("n"), elem, ByteCount())))
			},
			in:      []byte{8, 0, 1},
			wantLen: 0,
			wantErr: errors.ErrInsufficientData,
		},
	}

	for _, test := range tests {
		m := test.build()
		err := Unmarshal(test.in, m)
		a := m.Get("a").(*Array)

		switch {
		case err == nil && test.wantErr != nil:
			t.Errorf("TestArrayCounts(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && test.wantErr == nil:
			t.Errorf("TestArrayCounts(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			if !errors.Is(err, test.wantErr) {
				t.Errorf("TestArrayCounts(%s): got err == %s, want %s", test.name, err, test.wantErr)
			}
			if a.Len() != test.wantLen {
				t.Errorf("TestArrayCounts(%s): kept %d elements, want %d", test.name, a.Len(), test.wantLen)
			}
			continue
		}

		if a.Len() != test.wantLen {
			t.Errorf("TestArrayCounts(%s): Len() == %d, want %d", test.name, a.Len(), test.wantLen)
		}
		if diff := cmp.Diff(test.in, m.Bytes()); diff != "" {
			t.Errorf("TestArrayCounts(%s): re-emit -want/+got:\n%s", test.name, diff)
		}
	}
}

func TestArrayWithoutParent(t *testing.T) {
	a := NewArray("a", ByName("count"), func(int) Field { return NewUint("", 8) })
	rest, err := Decode(a, []byte{1, 2})
	if err != nil {
		t.Fatalf("TestArrayWithoutParent: got err == %s", err)
	}
	if a.Len() != 0 || rest.Len() != 16 {
		t.Errorf("TestArrayWithoutParent: Len() == %d, rest == %d bits; want 0 and 16", a.Len(), rest.Len())
	}
}

func TestArraySetValueAndSync(t *testing.T) {
	m := NewMap("m", WithChildren(
		NewUint("count", 8),
		NewArray("a", ByName("count"), func(int) Field { return NewUint("", 8) }),
	))
	a := m.Get("a").(*Array)

	if err := a.SetValue([]any{1, 2, 3}); err != nil {
		t.Fatalf("TestArraySetValueAndSync: SetValue() got err == %s", err)
	}
	if err := a.SyncCount(); err != nil {
		t.Fatalf("TestArraySetValueAndSync: SyncCount() got err == %s", err)
	}
	if diff := cmp.Diff([]byte{3, 1, 2, 3}, m.Bytes()); diff != "" {
		t.Errorf("TestArraySetValueAndSync: -want/+got:\n%s", diff)
	}

	// Round trip through a fresh tree.
	back := NewMap("m", WithChildren(
		NewUint("count", 8),
		NewArray("a", ByName("count"), func(int) Field { return NewUint("", 8) }),
	))
	if err := Unmarshal(m.Bytes(), back); err != nil {
		t.Fatalf("TestArraySetValueAndSync: Unmarshal() got err == %s", err)
	}
	if diff := pretty.Compare(m.Value(), back.Value()); diff != "" {
		t.Errorf("TestArraySetValueAndSync: -want/+got:\n%s", diff)
	}

	fixed := NewFixedArray("fixed", 2, func(int) Field { return NewUint("", 8) })
	if err := fixed.SetValue([]any{1, 2, 3}); !errors.Is(err, errors.ErrDomain) {
		t.Errorf("TestArraySetValueAndSync: fixed overflow got %v, want ErrDomain", err)
	}
	if fixed.Len() != 2 || fixed.BitCount() != 16 {
		t.Errorf("TestArraySetValueAndSync: fixed array has %d elements", fixed.Len())
	}
}

func TestUnion(t *testing.T) {
	choose := func(tag Field) (Field, error) {
		switch tag.(*Uint).Uint64() {
		case 1:
			return NewUint("word", 16), nil
		case 2:
			return NewString("text", 3), nil
		case 3:
			return nil, nil
		}
		return nil, errors.ErrDomain
	}
	build := func() *Map {
		return NewMap("msg", WithChildren(NewUint("kind", 8), NewUnion("body", ByName("kind"), choose)))
	}

	tests := []struct {
		name    string
		in      []byte
		want    any
		wantErr bool
	}{
		{name: "Success: word", in: []byte{1, 0xAB, 0xCD}, want: uint64(0xABCD)},
		{name: "Success: text", in: []byte{2, 'a', 'b', 'c'}, want: "abc"},
		{name: "Success: empty", in: []byte{3}, want: nil},
		{name: "Error: unknown kind", in: []byte{4, 0}, wantErr: true},
		{name: "Error: short payload", in: []byte{1, 0xAB}, wantErr: true},
	}

	for _, test := range tests {
		m := build()
		err := Unmarshal(test.in, m)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestUnion(%s): got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestUnion(%s): got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			continue
		}

		if diff := pretty.Compare(test.want, m.Get("body").Value()); diff != "" {
			t.Errorf("TestUnion(%s): -want/+got:\n%s", test.name, diff)
		}
		if diff := cmp.Diff(test.in, m.Bytes()); diff != "" {
			t.Errorf("TestUnion(%s): re-emit -want/+got:\n%s", test.name, diff)
		}
	}

	// Building a message for emission.
	m := build()
	m.Get("kind").SetValue(1)
	u := m.Get("body").(*Union)
	if err := u.Choose(); err != nil {
		t.Fatalf("TestUnion: Choose() got err == %s", err)
	}
	if err := u.SetValue(0x0102); err != nil {
		t.Fatalf("TestUnion: SetValue() got err == %s", err)
	}
	if diff := cmp.Diff([]byte{1, 1, 2}, m.Bytes()); diff != "" {
		t.Errorf("TestUnion: built -want/+got:\n%s", diff)
	}
	if Lookup(m, "body.word") == nil {
		t.Errorf("TestUnion: Lookup(body.word) == nil")
	}
}

func TestPartialParse(t *testing.T) {
	m := NewMap("m", WithChildren(u8("a"), NewUint("b", 16)))
	_, err := Decode(m, []byte{0x05, 0x01})
	if !errors.Is(err, errors.ErrInsufficientData) {
		t.Fatalf("TestPartialParse: got %v, want ErrInsufficientData", err)
	}
	if m.Get("a").Value() != uint64(5) {
		t.Errorf("TestPartialParse: committed child lost its value")
	}
}

func TestWalk(t *testing.T) {
	m := NewMap("m", WithChildren(
		u8("a"),
		NewMap("inner", WithChildren(u8("b"))),
	))

	var paths []string
	Walk(m, func(path string, f Field) error {
		paths = append(paths, path)
		return nil
	})
	if diff := pretty.Compare([]string{"", "a", "inner", "inner.b"}, paths); diff != "" {
		t.Errorf("TestWalk: -want/+got:\n%s", diff)
	}
	if Lookup(m, "inner.b") == nil || Lookup(m, "inner.c") != nil {
		t.Errorf("TestWalk: Lookup() is wrong")
	}
}
