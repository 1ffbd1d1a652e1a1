package field

import (
	"fmt"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// CountFunc computes the count of an Array from the Array's parent.
type CountFunc func(parent Container) (int, error)

// Elem creates the ith element of an Array. The name of the returned field is replaced.
type Elem func(i int) Field

// Array is a Seq whose length is decided at parse time. The count is read from a sibling field
// (see Ref), computed by a CountFunc or fixed. Elements are named f0, f1, ...
type Array struct {
	Seq

	ref       Ref
	fixed     int
	countFunc CountFunc
	byteCount bool
	elem      Elem
}

// NewArray creates an Array whose count is read from the sibling count refers to.
// If the sibling can't be found, or does not hold a positive integer, Parse() reads no elements.
func NewArray(name string, count Ref, elem Elem, opts ...Option) *Array {
	o := newOptions(opts)
	a := &Array{}
	a.initArray(a, name, count, -1, elem, o)
	applyDefault(a, o)
	return a
}

// NewFixedArray creates an Array that always has n elements.
func NewFixedArray(name string, n int, elem Elem, opts ...Option) *Array {
	if n < 0 {
		panic(fmt.Sprintf("field.NewFixedArray(%s): n cannot be negative", name))
	}
	o := newOptions(opts)
	a := &Array{}
	a.initArray(a, name, Ref{}, n, elem, o)
	applyDefault(a, o)
	return a
}

func (a *Array) initArray(self Container, name string, count Ref, fixed int, elem Elem, o *options) {
	if elem == nil {
		panic(fmt.Sprintf("field.NewArray(%s): elem cannot be nil", name))
	}
	a.initSeq(self, name, o)
	a.ref = count
	a.fixed = fixed
	a.countFunc = o.countFunc
	a.byteCount = o.byteCount
	a.elem = elem
	for i := 0; i < fixed; i++ {
		a.appendElem(i)
	}
}

// Count returns the number of elements (or bytes with ByteCount()) the next Parse() reads.
func (a *Array) Count() (int, error) {
	switch {
	case a.countFunc != nil:
		if a.parent == nil {
			return 0, nil
		}
		n, err := a.countFunc(a.parent)
		if err != nil {
			return 0, errors.Wrapf(err, "%s: count", Path(a.me()))
		}
		if n < 0 {
			return 0, nil
		}
		return n, nil
	case a.fixed >= 0:
		return a.fixed, nil
	}
	f, ok := a.ref.Resolve(a.me())
	if !ok {
		return 0, nil
	}
	n, ok := intOf(f)
	if !ok {
		return 0, nil
	}
	return n, nil
}

func (a *Array) appendElem(i int) Field {
	f := a.elem(i)
	if f == nil {
		panic(fmt.Sprintf("field.Array(%s): elem(%d) returned nil", a.name, i))
	}
	a.attach(f, synthName(len(a.list)), true)
	a.list = append(a.list, f)
	a.index[f.Name()] = len(a.list) - 1
	return f
}

func (a *Array) dropLast() {
	last := a.list[len(a.list)-1]
	last.base().parent = nil
	delete(a.index, last.Name())
	a.list = a.list[:len(a.list)-1]
}

func (a *Array) clear() {
	for _, f := range a.list {
		f.base().parent = nil
	}
	a.list = a.list[:0]
	a.reindex()
}

// Parse implements Field.Parse(). Previous elements are discarded. If an element fails to
// parse, the elements before it are kept and the error is returned.
func (a *Array) Parse(in bits.Buffer) (bits.Buffer, error) {
	n, err := a.Count()
	if err != nil {
		return in, err
	}
	a.clear()

	if !a.byteCount {
		rest := in
		for i := 0; i < n; i++ {
			f := a.appendElem(i)
			r, err := f.Parse(rest)
			if err != nil {
				a.dropLast()
				return rest, err
			}
			rest = r
		}
		return rest, nil
	}

	want := n * 8
	if in.Len() < want {
		return in, errors.Wrapf(errors.ErrInsufficientData, "%s: need %d bytes, have %d bits", Path(a.me()), n, in.Len())
	}
	window := in.Take(want)
	for i := 0; window.Len() > 0; i++ {
		f := a.appendElem(i)
		r, err := f.Parse(window)
		if err != nil {
			a.dropLast()
			return window, err
		}
		if r.Len() == window.Len() {
			a.dropLast()
			return window, errors.Wrapf(errors.ErrDomain, "%s: element %d is empty, can't fill %d bytes", Path(a.me()), i, n)
		}
		window = r
	}
	return in.Skip(want), nil
}

// SetValue implements Field.SetValue(). v must be a []any. Values past the current length
// create new elements. For fixed arrays, v can't be longer than the Array.
func (a *Array) SetValue(v any) error {
	if vals, ok := v.([]any); ok && a.fixed >= 0 && len(vals) > a.fixed {
		return errors.Wrapf(errors.ErrDomain, "%s: %d values for %d elements", Path(a.me()), len(vals), a.fixed)
	}
	return a.setValues(v, func(i int) Field {
		f := a.elem(i)
		f.base().name = ""
		return f
	})
}

// Resize sets the number of elements to n, creating new zero elements or dropping trailing ones.
func (a *Array) Resize(n int) {
	if n < 0 {
		n = 0
	}
	for len(a.list) > n {
		a.dropLast()
	}
	for len(a.list) < n {
		a.appendElem(len(a.list))
	}
}

// SyncCount stores the current length (in elements, or bytes with ByteCount()) into the count
// field, so that the emitted count matches the emitted elements. It does nothing for fixed
// arrays or arrays using a CountFunc.
func (a *Array) SyncCount() error {
	if a.fixed >= 0 || a.countFunc != nil {
		return nil
	}
	f, ok := a.ref.Resolve(a.me())
	if !ok {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: count %s not found", Path(a.me()), a.ref)
	}
	n := len(a.list)
	if a.byteCount {
		n = (a.BitCount() + 7) / 8
	}
	if err := f.SetValue(n); err != nil {
		return errors.Wrapf(err, "%s: count", Path(a.me()))
	}
	return nil
}
