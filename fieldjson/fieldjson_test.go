package fieldjson

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/field"
)

var (
	unitGroup   = enums.NewGroup("Unit", enums.Value{Name: "Celsius", Number: 0}, enums.Value{Name: "Fahrenheit", Number: 1})
	statusGroup = enums.NewGroup("Status", enums.Value{Name: "Ready", Number: 1}, enums.Value{Name: "Busy", Number: 2})
)

func reading(t *testing.T, in []byte) *field.Map {
	t.Helper()

	root := field.NewMap(
		"reading",
		field.WithChildren(
			field.NewUint("id", 8),
			field.NewInt("temp", 8),
			field.NewEnum("unit", unitGroup, 8),
			field.NewFlags("status", statusGroup, 8),
			field.NewString("name", 3),
			field.NewDateTime("at", field.WithUTC(true)),
			field.NewFixedArray("xs", 2, func(int) field.Field { return field.NewUint("x", 8) }),
			field.NewOctets("blob", 2),
			field.NewBool("ok"),
		),
	)
	if err := field.Unmarshal(in, root); err != nil {
		t.Fatalf("Unmarshal() got err == %s", err)
	}
	return root
}

func TestMarshal(t *testing.T) {
	in := []byte{0x07, 0xFE, 0x01, 0x03, 'a', 'b', 'c', 0x00, 0x00, 0x00, 0x3C, 0x0A, 0x0B, 0xDE, 0xAD, 0x80}
	unnamed := append([]byte{}, in...)
	unnamed[3] = 0x05
	unknown := append([]byte{}, in...)
	unknown[2] = 0x09

	tests := []struct {
		desc    string
		in      []byte
		options []MarshalOption
		want    string
	}{
		{
			desc: "Success: names",
			in:   in,
			want: `{"id":7,"temp":-2,"unit":"Fahrenheit","status":["Ready","Busy"],"name":"abc",` +
				`"at":"1970-01-01T00:01:00Z","xs":[10,11],"blob":"dead","ok":true}`,
		},
		{
			desc:    "Success: enum numbers",
			in:      in,
			options: []MarshalOption{WithEnumNumbers(true)},
			want: `{"id":7,"temp":-2,"unit":1,"status":3,"name":"abc",` +
				`"at":"1970-01-01T00:01:00Z","xs":[10,11],"blob":"dead","ok":true}`,
		},
		{
			desc: "Success: flags with an unnamed bit are a number",
			in:   unnamed,
			want: `{"id":7,"temp":-2,"unit":"Fahrenheit","status":5,"name":"abc",` +
				`"at":"1970-01-01T00:01:00Z","xs":[10,11],"blob":"dead","ok":true}`,
		},
		{
			desc: "Success: enum outside the group is a number",
			in:   unknown,
			want: `{"id":7,"temp":-2,"unit":9,"status":["Ready","Busy"],"name":"abc",` +
				`"at":"1970-01-01T00:01:00Z","xs":[10,11],"blob":"dead","ok":true}`,
		},
	}

	for _, test := range tests {
		got, err := Marshal(context.Background(), reading(t, test.in), test.options...)
		if err != nil {
			t.Errorf("[TestMarshal](%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		if string(got) != test.want {
			t.Errorf("[TestMarshal](%s): got\n%s\nwant\n%s", test.desc, got, test.want)
		}
	}
}

func TestMarshalUnion(t *testing.T) {
	choose := func(tag field.Field) (field.Field, error) {
		return field.NewUint("value", 8), nil
	}
	root := field.NewMap(
		"m",
		field.WithChildren(
			field.NewUint("kind", 8),
			field.NewUnion("body", field.ByName("kind"), choose),
		),
	)

	got, err := Marshal(context.Background(), root)
	if err != nil {
		t.Fatalf("TestMarshalUnion: got err == %s", err)
	}
	if want := `{"kind":0,"body":null}`; string(got) != want {
		t.Errorf("TestMarshalUnion: got %s, want %s", got, want)
	}

	if err := field.Unmarshal([]byte{1, 42}, root); err != nil {
		t.Fatalf("TestMarshalUnion: Unmarshal() got err == %s", err)
	}
	got, err = Marshal(context.Background(), root)
	if err != nil {
		t.Fatalf("TestMarshalUnion: got err == %s", err)
	}
	if want := `{"kind":1,"body":42}`; string(got) != want {
		t.Errorf("TestMarshalUnion: got %s, want %s", got, want)
	}
}

func TestIndent(t *testing.T) {
	root := field.NewMap("m", field.WithChildren(field.NewUint("a", 8)))

	got, err := Marshal(context.Background(), root, WithIndent("\t"))
	if err != nil {
		t.Fatalf("TestIndent: got err == %s", err)
	}
	if !strings.Contains(string(got), "\n\t\"a\":") {
		t.Errorf("TestIndent: got %q, want an indented key", got)
	}

	if _, err := Marshal(context.Background(), root, WithIndent("--")); err == nil {
		t.Errorf("TestIndent: WithIndent(\"--\") got err == nil, want err != nil")
	}
}

func TestArray(t *testing.T) {
	newMap := func(v uint64) *field.Map {
		m := field.NewMap("m", field.WithChildren(field.NewUint("a", 8)))
		if err := m.Get("a").SetValue(v); err != nil {
			panic(err)
		}
		return m
	}

	buf := &bytes.Buffer{}
	a, err := NewArray(buf)
	if err != nil {
		t.Fatalf("TestArray: NewArray() got err == %s", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("TestArray: Close() got err == %s", err)
	}
	if got := buf.String(); got != "[]\n" {
		t.Errorf("TestArray: empty array == %q, want %q", got, "[]\n")
	}

	buf.Reset()
	a.Reset(buf)
	for _, v := range []uint64{1, 2} {
		if err := a.Write(context.Background(), newMap(v)); err != nil {
			t.Fatalf("TestArray: Write() got err == %s", err)
		}
	}
	if err := a.Close(); err != nil {
		t.Fatalf("TestArray: Close() got err == %s", err)
	}
	if want := "[{\"a\":1},{\"a\":2}]\n"; buf.String() != want {
		t.Errorf("TestArray: got %q, want %q", buf.String(), want)
	}
}
