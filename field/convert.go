package field

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
)

// Integer is implemented by fields whose value is an unsigned number.
type Integer interface {
	Field
	Uint64() uint64
}

func fromSigned[T constraints.Signed](x T) (uint64, error) {
	if x < 0 {
		return 0, errors.ErrDomain
	}
	return uint64(x), nil
}

func fromUnsigned[T constraints.Unsigned](x T) (uint64, error) {
	return uint64(x), nil
}

// asUint converts any Go integer to a uint64.
func asUint(v any) (uint64, error) {
	switch x := v.(type) {
	case int:
		return fromSigned(x)
	case int8:
		return fromSigned(x)
	case int16:
		return fromSigned(x)
	case int32:
		return fromSigned(x)
	case int64:
		return fromSigned(x)
	case uint:
		return fromUnsigned(x)
	case uint8:
		return fromUnsigned(x)
	case uint16:
		return fromUnsigned(x)
	case uint32:
		return fromUnsigned(x)
	case uint64:
		return fromUnsigned(x)
	case uintptr:
		return fromUnsigned(x)
	case enums.Enum:
		return x.Number(), nil
	}
	return 0, errors.ErrType
}

func toSigned[T constraints.Signed](x T) (int64, error) {
	return int64(x), nil
}

func toSignedU[T constraints.Unsigned](x T) (int64, error) {
	if uint64(x) > math.MaxInt64 {
		return 0, errors.ErrDomain
	}
	return int64(x), nil
}

// asInt converts any Go integer to an int64.
func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return toSigned(x)
	case int8:
		return toSigned(x)
	case int16:
		return toSigned(x)
	case int32:
		return toSigned(x)
	case int64:
		return toSigned(x)
	case uint:
		return toSignedU(x)
	case uint8:
		return toSignedU(x)
	case uint16:
		return toSignedU(x)
	case uint32:
		return toSignedU(x)
	case uint64:
		return toSignedU(x)
	}
	return 0, errors.ErrType
}

// intOf reads an integer from a field holding a count or tag. ok is false if the field's value
// is not an integer.
func intOf(f Field) (int, bool) {
	if i, ok := f.(Integer); ok {
		v := i.Uint64()
		if v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	}
	switch v := f.Value().(type) {
	case int64:
		if v < 0 || v > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func maxUint(n int) uint64 {
	if n >= 64 {
		return math.MaxUint64
	}
	return uint64(1)<<n - 1
}
