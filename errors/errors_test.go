package errors

import (
	"testing"
)

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Type
	}{
		{"nil", nil, TypeUnknown},
		{"unrelated", New("boom"), TypeUnknown},
		{"insufficient data", ErrInsufficientData, TypeInsufficientData},
		{"wrapped domain", Wrapf(ErrDomain, "field %q", "count"), TypeDomain},
		{"double wrapped type", Wrapf(Wrapf(ErrType, "inner"), "outer"), TypeValueType},
		{"name conflict", Wrapf(ErrNameConflict, "name %q", "a"), TypeNameConflict},
		{"joined checksum", Join(New("x"), ErrChecksum), TypeChecksum},
		{"no such field", ErrNoSuchField, TypeParameter},
		{"trailing data", ErrTrailingData, TypeFormat},
	}

	for _, test := range tests {
		if got := TypeOf(test.err); got != test.want {
			t.Errorf("TestTypeOf(%s): got %s, want %s", test.name, got, test.want)
		}
	}
}

func TestWrapfMessage(t *testing.T) {
	err := Wrapf(ErrInsufficientData, "parse %s: need %d bits, have %d", "frame.crc", 16, 8)
	want := "parse frame.crc: need 16 bits, have 8: insufficient data"
	if err.Error() != want {
		t.Errorf("TestWrapfMessage: got %q, want %q", err.Error(), want)
	}
	if Wrapf(nil, "nothing") != nil {
		t.Errorf("TestWrapfMessage: Wrapf(nil) != nil")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantCat Category
		wantT   Type
	}{
		{"user error", ErrDomain, CatUser, TypeDomain},
		{"bug", ErrNotImplemented, CatInternal, TypeBug},
		{"unknown", New("boom"), CatInternal, TypeUnknown},
	}

	for _, test := range tests {
		c, typ := Classify(test.err)
		if c != test.wantCat || typ != test.wantT {
			t.Errorf("TestClassify(%s): got (%s, %s), want (%s, %s)", test.name, c, typ, test.wantCat, test.wantT)
		}
	}
}

func TestStrings(t *testing.T) {
	if CatUser.Category() != "User" {
		t.Errorf("TestStrings: CatUser.Category() == %q", CatUser.Category())
	}
	if TypeTimeout.Type() != "TimeoutOrCancel" {
		t.Errorf("TestStrings: TypeTimeout.Type() == %q", TypeTimeout.Type())
	}
	if Type(9999).String() != "Type(9999)" {
		t.Errorf("TestStrings: Type(9999).String() == %q", Type(9999).String())
	}
}
