package errors

import (
	pkgerrors "github.com/pkg/errors"
)

// Errors returned by field codecs. Use Is() to test for them, as they are usually wrapped
// with the path of the field that failed.
var (
	// ErrInsufficientData is returned when a parse needs more bits than remain.
	ErrInsufficientData = New("insufficient data")
	// ErrDomain is returned when a value is outside of the range a field can hold.
	ErrDomain = New("value out of domain")
	// ErrType is returned when a value has a type a field can't accept.
	ErrType = New("wrong value type")
	// ErrNameConflict is returned when adding a child whose name is already in use.
	ErrNameConflict = New("name conflict")
	// ErrNotImplemented is returned by abstract field operations.
	ErrNotImplemented = New("not implemented")
	// ErrNoSuchField is returned when a named or indexed child does not exist.
	ErrNoSuchField = New("no such field")
	// ErrAttached is returned when attaching a field that already has a parent, or would
	// create a cycle.
	ErrAttached = New("field already attached")
	// ErrTrailingData is returned by strict decoding when whole bytes remain after a parse.
	ErrTrailingData = New("trailing data")
	// ErrChecksum is returned when a checksum does not match its data.
	ErrChecksum = New("checksum mismatch")
)

// Wrapf annotates err with a formatted message. The result still matches err with Is().
// Wrapf returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// TypeOf classifies err by the codec sentinel it wraps. It returns TypeUnknown if err wraps none.
func TypeOf(err error) Type {
	switch {
	case err == nil:
		return TypeUnknown
	case Is(err, ErrInsufficientData):
		return TypeInsufficientData
	case Is(err, ErrDomain):
		return TypeDomain
	case Is(err, ErrType):
		return TypeValueType
	case Is(err, ErrNameConflict):
		return TypeNameConflict
	case Is(err, ErrNotImplemented):
		return TypeNotImplemented
	case Is(err, ErrChecksum):
		return TypeChecksum
	case Is(err, ErrNoSuchField), Is(err, ErrAttached):
		return TypeParameter
	case Is(err, ErrTrailingData):
		return TypeFormat
	}
	return TypeUnknown
}

// Classify returns the Category and Type used when err crosses a package boundary with E().
func Classify(err error) (Category, Type) {
	t := TypeOf(err)
	switch t {
	case TypeUnknown:
		return CatInternal, TypeUnknown
	case TypeNotImplemented:
		return CatInternal, TypeBug
	}
	return CatUser, t
}
