// Package errors provides the errors used by bitcodec. It includes all of the stdlib's
// functions and types, the sentinel errors returned by field codecs and E() for classifying
// errors at package boundaries such as transports and capture readers.
package errors

import (
	"fmt"

	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
)

// Category represents the category of the error.
type Category uint32

func (c Category) Category() string {
	return c.String()
}

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case CatUnknown:
		return "Unknown"
	case CatUser:
		return "User"
	case CatInternal:
		return "Internal"
	}
	return fmt.Sprintf("Category(%d)", uint32(c))
}

const (
	// CatUnknown represents an unknown category. This should not be used.
	CatUnknown Category = Category(0) // Unknown
	// CatUser represents an error that is caused by bad user input, such as malformed frames.
	CatUser Category = Category(1) // User
	// CatInternal represents an internal error.
	CatInternal Category = Category(2) // Internal
)

// Type represents the type of the error.
type Type uint16

func (t Type) Type() string {
	return t.String()
}

const (
	// TypeUnknown represents an unknown type.
	TypeUnknown Type = Type(0) // Unknown
	// TypeBug represents a bug in the calling code.
	TypeBug Type = Type(1) // Bug
	// TypeParameter represents an error with a parameter that didn't pass validation.
	TypeParameter Type = Type(2) // Parameter
	// TypeConn represents an error with a connection.
	TypeConn Type = Type(3) // Conn
	// TypeTimeout represents a timeout error or cancelation.
	TypeTimeout Type = Type(4) // TimeoutOrCancel
	// TypeFS represents an error with the file system.
	TypeFS Type = Type(5) // FS

	// TypeInsufficientData means there were fewer bits than a field needed.
	TypeInsufficientData Type = Type(1000) // InsufficientData
	// TypeDomain means a value was outside of a field's range.
	TypeDomain Type = Type(1001) // Domain
	// TypeValueType means a value had the wrong type for a field.
	TypeValueType Type = Type(1002) // ValueType
	// TypeNameConflict means a child name was already used in a container.
	TypeNameConflict Type = Type(1003) // NameConflict
	// TypeNotImplemented means an operation is not provided by a field.
	TypeNotImplemented Type = Type(1004) // NotImplemented
	// TypeChecksum means a checksum did not match.
	TypeChecksum Type = Type(1005) // Checksum
	// TypeFormat means input data was not in the expected format.
	TypeFormat Type = Type(1006) // Format
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeUnknown:
		return "Unknown"
	case TypeBug:
		return "Bug"
	case TypeParameter:
		return "Parameter"
	case TypeConn:
		return "Conn"
	case TypeTimeout:
		return "TimeoutOrCancel"
	case TypeFS:
		return "FS"
	case TypeInsufficientData:
		return "InsufficientData"
	case TypeDomain:
		return "Domain"
	case TypeValueType:
		return "ValueType"
	case TypeNameConflict:
		return "NameConflict"
	case TypeNotImplemented:
		return "NotImplemented"
	case TypeChecksum:
		return "Checksum"
	case TypeFormat:
		return "Format"
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// LogAttrer is an interface that can be implemented by an error to return a list of attributes
// used in logging.
type LogAttrer = errors.LogAttrer

// Error is the error type returned by E(). Error implements github.com/gostdlib/base/errors.E .
type Error = errors.Error

// EOption is an optional argument for E().
type EOption = errors.EOption

// WithSuppressTraceErr will prevent the trace as being recorded with an error status.
// The trace will still receive the error message. This is useful for errors that are
// retried and you only want to get a status of error if the error is not resolved.
func WithSuppressTraceErr() EOption {
	return errors.WithSuppressTraceErr()
}

// WithCallNum is used if you need to set the runtime.CallNum() in order to get the correct filename and line.
// This defaults to 1 which sets to the frame of the caller of E().
func WithCallNum(i int) EOption {
	return errors.WithCallNum(i)
}

// WithStackTrace will add a stack trace to the error.
func WithStackTrace() EOption {
	return errors.WithStackTrace()
}

// E creates a new Error with the given parameters.
func E(ctx context.Context, c errors.Category, t errors.Type, msg error, options ...errors.EOption) Error {
	// We are a wrapper, so the caller is one more frame up. If they set the call number,
	// this will not override it.
	opts := make([]errors.EOption, 0, len(options)+1)
	opts = append(opts, WithCallNum(2))
	opts = append(opts, options...)

	return errors.E(ctx, c, t, msg, opts...)
}
