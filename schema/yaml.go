package schema

import (
	"bytes"
	"io/fs"
	"path"
	"strings"

	"github.com/gostdlib/base/context"
	"gopkg.in/yaml.v3"

	"github.com/bearlytools/bitcodec/errors"
)

// LoadYAML decodes a Schema from YAML. Unknown keys are an error.
//
//	name: reading
//	endian: big
//	enums:
//	  Unit: {Celsius: 0, Fahrenheit: 1}
//	fields:
//	  - {name: sensor, type: u8}
//	  - {name: unit, type: enum, enum: Unit, bits: 8}
//	  - {name: count, type: u8}
//	  - name: samples
//	    type: array
//	    count: count
//	    fields:
//	      - {name: value, type: s16, endian: little}
func LoadYAML(b []byte) (*Schema, error) {
	s := &Schema{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, errors.Wrapf(errors.ErrDomain, "schema: bad YAML: %s", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the schema file at p from fsys. Files ending in .yaml or .yml are YAML, others use
// the text format.
func Load(ctx context.Context, fsys fs.FS, p string) (*Schema, error) {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	}
	return ParseText(ctx, b)
}
