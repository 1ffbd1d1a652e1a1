/*
Package schema builds field trees from declarative descriptions, so a wire format can be defined in
a file instead of Go code. Two front ends produce the same Schema: LoadYAML and ParseText.

The text format:

	// Comments start with //.
	schema reading big

	enum Unit {
		Celsius @0
		Fahrenheit @1
	}

	sensor u8
	unit enum enum=Unit bits=4 strict=true
	flags u4
	count u8
	samples array count=count {
		value s16 endian=little
	}
	crc crc crc=modbus endian=little

Each field line is "<name> <type> [key=value ...]". Values holding spaces are double quoted.
Types "struct", "seq" and "array" end the line with "{" and hold fields up to a line with "}".
An array holding more than one field has structs of those fields as elements.
*/
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lestrrat-go/strftime"
	"github.com/snksoft/crc"
	"golang.org/x/text/encoding/charmap"

	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
	"github.com/bearlytools/bitcodec/internal/binary"
)

// Schema describes a wire format. Build() creates a field tree for it.
type Schema struct {
	// Name is the name of the root field.
	Name string `yaml:"name"`
	// Endian is the default byte order, "big" (the default) or "little".
	Endian string `yaml:"endian"`
	// Enums maps a group name to its value names and numbers.
	Enums map[string]map[string]uint64 `yaml:"enums"`
	// Fields are the root's children.
	Fields []FieldDef `yaml:"fields"`
}

// FieldDef describes one field.
type FieldDef struct {
	Name string `yaml:"name"`
	// Type is one of u<N>, s<N> (or i<N>), uint, int, bool, f32, char, string, bytes, raw,
	// datetime, enum, flags, crc, struct, seq or array.
	Type string `yaml:"type"`
	// Bits is the width of uint, int, raw, datetime, enum and flags fields.
	Bits int `yaml:"bits"`
	// Endian overrides the byte order of the enclosing struct.
	Endian string `yaml:"endian"`
	// Default is the initial value.
	Default any `yaml:"default"`
	// Format is the fmt verb string for Format().
	Format string `yaml:"format"`
	// Count is where an array, string or bytes field reads its length: a sibling name or dotted
	// path, "#<index>" for a sibling position, or a number for a fixed length.
	Count string `yaml:"count"`
	// CountBytes makes an array's count a number of bytes.
	CountBytes bool `yaml:"count_bytes"`
	// Length is a fixed length for an array, string or bytes field.
	Length int `yaml:"length"`
	// Enum names the group of an enum or flags field.
	Enum string `yaml:"enum"`
	// Strict makes an enum reject numbers outside its group.
	Strict bool `yaml:"strict"`
	// UTC presents a datetime in UTC.
	UTC bool `yaml:"utc"`
	// DateFormat is a strftime pattern for a datetime.
	DateFormat string `yaml:"date_format"`
	// CRC names the algorithm of a crc field.
	CRC string `yaml:"crc"`
	// Charset names the character set of a char or string field.
	Charset string `yaml:"charset"`
	// Fields are the children of a struct, seq or array.
	Fields []FieldDef `yaml:"fields"`
}

// CRCs are the names a crc field can use.
var CRCs = map[string]*crc.Parameters{
	"crc8":              field.CRC8,
	"modbus":            field.CRC16Modbus,
	"crc16-modbus":      field.CRC16Modbus,
	"ccitt-false":       field.CRC16CCITTFalse,
	"crc16-ccitt-false": field.CRC16CCITTFalse,
	"xmodem":            field.CRC16XModem,
	"crc16-xmodem":      field.CRC16XModem,
	"kermit":            field.CRC16Kermit,
	"crc16-kermit":      field.CRC16Kermit,
	"crc32":             field.CRC32,
}

// Charsets are the names a char or string field can use.
var Charsets = map[string]*charmap.Charmap{
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"windows-1252": charmap.Windows1252,
	"cp437":        charmap.CodePage437,
	"koi8-r":       charmap.KOI8R,
}

// Validate checks the parts of s that don't need building.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.Wrapf(errors.ErrDomain, "schema has no name")
	}
	if len(s.Fields) == 0 {
		return errors.Wrapf(errors.ErrDomain, "schema %s has no fields", s.Name)
	}
	if _, err := binary.ParseEndian(s.Endian); err != nil {
		return errors.Wrapf(errors.ErrDomain, "schema %s: %s", s.Name, err)
	}
	return nil
}

// Groups creates the enum groups. Numbers must be unique within a group.
func (s *Schema) Groups() (map[string]*enums.Group, error) {
	groups := make(map[string]*enums.Group, len(s.Enums))
	for name, vals := range s.Enums {
		if len(vals) == 0 {
			return nil, errors.Wrapf(errors.ErrDomain, "enum %s has no values", name)
		}
		seen := map[uint64]string{}
		list := make([]enums.Value, 0, len(vals))
		for vn, num := range vals {
			if vn == "" {
				return nil, errors.Wrapf(errors.ErrDomain, "enum %s has a value without a name", name)
			}
			if other, ok := seen[num]; ok {
				a, b := other, vn
				if a > b {
					a, b = b, a
				}
				return nil, errors.Wrapf(errors.ErrNameConflict, "enum %s: %s and %s are both %d", name, a, b, num)
			}
			seen[num] = vn
			list = append(list, enums.Value{Name: vn, Number: num})
		}
		groups[name] = enums.NewGroup(name, list...)
	}
	return groups, nil
}

// Build creates a new field tree for s. Each call returns an independent tree.
func (s *Schema) Build() (*field.Map, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	groups, err := s.Groups()
	if err != nil {
		return nil, err
	}
	e, _ := binary.ParseEndian(s.Endian)
	b := builder{groups: groups}

	root := field.NewMap(s.Name, field.WithEndian(e))
	for _, d := range s.Fields {
		f, err := b.build(s.Name, d, e)
		if err != nil {
			return nil, err
		}
		if err := root.Add(f); err != nil {
			return nil, err
		}
	}
	return root, nil
}

type builder struct {
	groups map[string]*enums.Group
}

func (b builder) build(path string, d FieldDef, parent field.Endian) (field.Field, error) {
	path = path + "." + d.Name
	if d.Name == "" {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: field has no name", path)
	}

	e := parent
	if d.Endian != "" {
		var err error
		if e, err = binary.ParseEndian(d.Endian); err != nil {
			return nil, errors.Wrapf(errors.ErrDomain, "%s: %s", path, err)
		}
	}
	opts := []field.Option{field.WithEndian(e)}
	if d.Format != "" {
		opts = append(opts, field.WithFormat(d.Format))
	}

	f, err := b.create(path, d, e, opts)
	if err != nil {
		return nil, err
	}
	if d.Default != nil {
		if err := f.SetValue(d.Default); err != nil {
			return nil, errors.Wrapf(err, "%s: default", path)
		}
	}
	return f, nil
}

func (b builder) create(path string, d FieldDef, e field.Endian, opts []field.Option) (field.Field, error) {
	typ := strings.ToLower(d.Type)

	if n, signed, ok := sized(typ); ok {
		if d.Bits != 0 && d.Bits != n {
			return nil, errors.Wrapf(errors.ErrDomain, "%s: type %s with bits=%d", path, d.Type, d.Bits)
		}
		d.Bits = n
		if signed {
			typ = "int"
		} else {
			typ = "uint"
		}
	}

	switch typ {
	case "uint":
		if err := width(path, d.Bits, 1, 64); err != nil {
			return nil, err
		}
		return field.NewUint(d.Name, d.Bits, opts...), nil
	case "int":
		if err := width(path, d.Bits, 1, 64); err != nil {
			return nil, err
		}
		return field.NewInt(d.Name, d.Bits, opts...), nil
	case "bool":
		return field.NewBool(d.Name, opts...), nil
	case "f32", "float32":
		return field.NewFloat32(d.Name, opts...), nil
	case "raw":
		if err := width(path, d.Bits, 1, 1<<20); err != nil {
			return nil, err
		}
		return field.NewRaw(d.Name, d.Bits, opts...), nil
	case "datetime":
		opts = append(opts, field.WithUTC(d.UTC))
		if d.DateFormat != "" {
			if _, err := strftime.New(d.DateFormat); err != nil {
				return nil, errors.Wrapf(errors.ErrDomain, "%s: date_format: %s", path, err)
			}
			opts = append(opts, field.WithDateFormat(d.DateFormat))
		}
		return field.NewDateTime(d.Name, opts...), nil
	case "char":
		cs, err := charset(path, d.Charset)
		if err != nil {
			return nil, err
		}
		return field.NewChar(d.Name, append(opts, field.WithCharmap(cs))...), nil
	case "string":
		cs, err := charset(path, d.Charset)
		if err != nil {
			return nil, err
		}
		opts = append(opts, field.WithCharmap(cs))
		n, ref, err := count(path, d)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			return field.NewString(d.Name, n, opts...), nil
		}
		return field.NewStringRef(d.Name, ref, opts...), nil
	case "bytes":
		n, ref, err := count(path, d)
		if err != nil {
			return nil, err
		}
		if n >= 0 {
			return field.NewOctets(d.Name, n, opts...), nil
		}
		return field.NewOctetsRef(d.Name, ref, opts...), nil
	case "enum", "flags":
		g, ok := b.groups[d.Enum]
		if !ok {
			return nil, errors.Wrapf(errors.ErrDomain, "%s: unknown enum %q", path, d.Enum)
		}
		if typ == "flags" {
			if err := width(path, d.Bits, 1, 64); err != nil {
				return nil, err
			}
			return field.NewFlags(d.Name, g, d.Bits, opts...), nil
		}
		if d.Bits != 0 {
			if err := width(path, d.Bits, g.Size(), 64); err != nil {
				return nil, err
			}
		}
		if d.Strict {
			opts = append(opts, field.Strict())
		}
		return field.NewEnum(d.Name, g, d.Bits, opts...), nil
	case "crc":
		params, ok := CRCs[strings.ToLower(d.CRC)]
		if !ok {
			return nil, errors.Wrapf(errors.ErrDomain, "%s: unknown crc %q, want one of %s", path, d.CRC, strings.Join(crcNames(), ", "))
		}
		return field.NewChecksum(d.Name, params, opts...), nil
	case "struct", "seq":
		children := make([]field.Field, 0, len(d.Fields))
		for _, cd := range d.Fields {
			c, err := b.build(path, cd, e)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		if typ == "seq" {
			s := field.NewSeq(d.Name, opts...)
			for _, c := range children {
				if err := s.Append(c); err != nil {
					return nil, err
				}
			}
			return s, nil
		}
		m := field.NewMap(d.Name, opts...)
		for _, c := range children {
			if err := m.Add(c); err != nil {
				return nil, err
			}
		}
		return m, nil
	case "array":
		return b.array(path, d, e, opts)
	case "":
		return nil, errors.Wrapf(errors.ErrDomain, "%s: field has no type", path)
	}
	return nil, errors.Wrapf(errors.ErrDomain, "%s: unknown type %q", path, d.Type)
}

func (b builder) array(path string, d FieldDef, e field.Endian, opts []field.Option) (field.Field, error) {
	var ed FieldDef
	switch len(d.Fields) {
	case 0:
		return nil, errors.Wrapf(errors.ErrDomain, "%s: array has no element fields", path)
	case 1:
		ed = d.Fields[0]
		if ed.Name == "" {
			ed.Name = "elem"
		}
	default:
		ed = FieldDef{Name: "elem", Type: "struct", Fields: d.Fields}
	}
	// Build one element now so that errors surface here and not while parsing.
	if _, err := b.build(path, ed, e); err != nil {
		return nil, err
	}
	elem := func(int) field.Field {
		f, err := b.build(path, ed, e)
		if err != nil {
			panic(fmt.Sprintf("bug: %s: element built once, then failed: %s", path, err))
		}
		return f
	}

	if d.CountBytes {
		opts = append(opts, field.ByteCount())
	}
	n, ref, err := count(path, d)
	if err != nil {
		return nil, err
	}
	if n >= 0 {
		return field.NewFixedArray(d.Name, n, elem, opts...), nil
	}
	return field.NewArray(d.Name, ref, elem, opts...), nil
}

// count returns a fixed length n, or n == -1 and a Ref.
func count(path string, d FieldDef) (int, field.Ref, error) {
	switch {
	case d.Length > 0 && d.Count != "":
		return 0, field.Ref{}, errors.Wrapf(errors.ErrDomain, "%s: has both length and count", path)
	case d.Length > 0:
		return d.Length, field.Ref{}, nil
	case d.Length < 0:
		return 0, field.Ref{}, errors.Wrapf(errors.ErrDomain, "%s: length can't be negative", path)
	case d.Count == "":
		return 0, field.Ref{}, errors.Wrapf(errors.ErrDomain, "%s: needs a length or a count", path)
	}
	if n, err := strconv.Atoi(d.Count); err == nil {
		if n < 0 {
			return 0, field.Ref{}, errors.Wrapf(errors.ErrDomain, "%s: count can't be negative", path)
		}
		return n, field.Ref{}, nil
	}
	if strings.HasPrefix(d.Count, "#") {
		i, err := strconv.Atoi(d.Count[1:])
		if err != nil || i < 0 {
			return 0, field.Ref{}, errors.Wrapf(errors.ErrDomain, "%s: bad count index %q", path, d.Count)
		}
		return -1, field.ByIndex(i), nil
	}
	return -1, field.ByName(d.Count), nil
}

// sized parses u<N>, s<N> and i<N>.
func sized(typ string) (n int, signed bool, ok bool) {
	if len(typ) < 2 {
		return 0, false, false
	}
	switch typ[0] {
	case 'u':
	case 's', 'i':
		signed = true
	default:
		return 0, false, false
	}
	n, err := strconv.Atoi(typ[1:])
	if err != nil {
		return 0, false, false
	}
	return n, signed, true
}

func width(path string, n, lo, hi int) error {
	if n < lo || n > hi {
		return errors.Wrapf(errors.ErrDomain, "%s: bits must be in [%d, %d], was %d", path, lo, hi, n)
	}
	return nil
}

func charset(path, name string) (*charmap.Charmap, error) {
	if name == "" {
		return charmap.ISO8859_1, nil
	}
	cs, ok := Charsets[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: unknown charset %q", path, name)
	}
	return cs, nil
}

func crcNames() []string {
	names := make([]string, 0, len(CRCs))
	for n := range CRCs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
