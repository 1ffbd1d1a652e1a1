package enums

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func testGroup() *Group {
	return NewGroup(
		"FrameType",
		Value{"Header", 1},
		Value{"Data", 0},
		Value{"Command", 4},
		Value{"Config2", 3},
	)
}

func TestGroup(t *testing.T) {
	g := testGroup()

	if g.Name() != "FrameType" {
		t.Errorf("TestGroup: got Name() == %s, want FrameType", g.Name())
	}
	if g.Len() != 4 {
		t.Errorf("TestGroup: got Len() == %d, want 4", g.Len())
	}

	want := []Enum{
		{"FrameType", "Data", 0},
		{"FrameType", "Header", 1},
		{"FrameType", "Config2", 3},
		{"FrameType", "Command", 4},
	}
	if diff := pretty.Compare(want, g.Enums()); diff != "" {
		t.Errorf("TestGroup: Enums() -want/+got:\n%s", diff)
	}
	if g.Get(2).Name() != "Config2" {
		t.Errorf("TestGroup: Get(2) == %s, want Config2", g.Get(2))
	}
	if g.Size() != 3 {
		t.Errorf("TestGroup: Size() == %d, want 3", g.Size())
	}
}

func TestLookups(t *testing.T) {
	g := testGroup()

	tests := []struct {
		name     string
		byName   string
		byValue  uint64
		wantName string
		wantOK   bool
	}{
		{"Success: command", "Command", 4, "Command", true},
		{"Success: zero value", "Data", 0, "Data", true},
		{"Error: unknown", "Config3", 5, "", false},
	}

	for _, test := range tests {
		e, ok := g.ByName(test.byName)
		if ok != test.wantOK || e.Name() != test.wantName {
			t.Errorf("TestLookups(%s): ByName() got (%s, %v), want (%s, %v)", test.name, e, ok, test.wantName, test.wantOK)
		}
		e, ok = g.ByValue(test.byValue)
		if ok != test.wantOK || e.Name() != test.wantName {
			t.Errorf("TestLookups(%s): ByValue() got (%s, %v), want (%s, %v)", test.name, e, ok, test.wantName, test.wantOK)
		}
		if ok && !g.Contains(e) {
			t.Errorf("TestLookups(%s): Contains() == false", test.name)
		}
	}

	other := NewGroup("Other", Value{"Command", 4})
	e, _ := other.ByName("Command")
	if g.Contains(e) {
		t.Errorf("TestLookups: Contains() accepted a value from another group")
	}
}

func TestNewGroupPanics(t *testing.T) {
	tests := []struct {
		name   string
		values []Value
	}{
		{"duplicate name", []Value{{"A", 1}, {"A", 2}}},
		{"duplicate number", []Value{{"A", 1}, {"B", 1}}},
		{"empty name", []Value{{"", 1}}},
	}

	for _, test := range tests {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("TestNewGroupPanics(%s): did not panic", test.name)
				}
			}()
			NewGroup("G", test.values...)
		}()
	}
}
