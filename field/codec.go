package field

import (
	"strings"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// Decode parses data into f and returns the bits f did not use.
func Decode(f Field, data []byte) (bits.Buffer, error) {
	return f.Parse(bits.FromBytes(data))
}

// Unmarshal parses data into f. Less than a byte may be left over, more is ErrTrailingData.
func Unmarshal(data []byte, f Field) error {
	rest, err := Decode(f, data)
	if err != nil {
		return err
	}
	if rest.Len() >= 8 {
		return errors.Wrapf(errors.ErrTrailingData, "%s: %d bits left after parsing", Path(f), rest.Len())
	}
	return nil
}

// Marshal returns the bytes of f. It is the same as f.Bytes().
func Marshal(f Field) []byte {
	return f.Bytes()
}

// Path returns the dotted names of f and its ancestors, from the root.
func Path(f Field) string {
	var names []string
	for cur := f; cur != nil; cur = parentOf(cur) {
		n := cur.Name()
		if n == "" {
			n = "?"
		}
		names = append(names, n)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

// Lookup returns the descendant of root at the dotted path, relative to root.
func Lookup(root Field, path string) Field {
	c, ok := root.(Container)
	if !ok {
		return nil
	}
	if path == "" {
		return root
	}
	return lookup(c, strings.Split(path, "."))
}

// Walk calls fn for f and every descendant, depth first in order. The path passed to fn is
// relative to f. If fn returns an error, Walk stops and returns it.
func Walk(f Field, fn func(path string, f Field) error) error {
	return walk("", f, fn)
}

func walk(path string, f Field, fn func(string, Field) error) error {
	if err := fn(path, f); err != nil {
		return err
	}
	for _, c := range f.Children() {
		p := c.Name()
		if path != "" {
			p = path + "." + p
		}
		if err := walk(p, c, fn); err != nil {
			return err
		}
	}
	return nil
}
