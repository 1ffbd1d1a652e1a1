// Package fieldjson renders field trees as JSON.
//
// Maps become objects with keys in insertion order, sequences and arrays become arrays, enums
// become their name (or number with WithEnumNumbers), flags become a list of names, datetimes
// become RFC 3339 strings and raw or octet fields become hex strings.
package fieldjson

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/bitcodec/field"
)

// marshalOptions provides options for writing fields as JSON.
type marshalOptions struct {
	UseEnumNumbers bool
	Indent         string
}

// MarshalOption provides options for marshaling fields to JSON.
type MarshalOption func(marshalOptions) (marshalOptions, error)

// WithEnumNumbers configures whether enum and flags values are emitted as numbers or names.
func WithEnumNumbers(use bool) MarshalOption {
	return func(m marshalOptions) (marshalOptions, error) {
		m.UseEnumNumbers = use
		return m, nil
	}
}

// WithIndent makes the output multiline, indenting each level by indent. indent may only hold
// spaces and tabs.
func WithIndent(indent string) MarshalOption {
	return func(m marshalOptions) (marshalOptions, error) {
		for _, r := range indent {
			if r != ' ' && r != '\t' {
				return m, fmt.Errorf("fieldjson: indent %q may only hold spaces and tabs", indent)
			}
		}
		m.Indent = indent
		return m, nil
	}
}

func applyOptions(opts marshalOptions, options []MarshalOption) (marshalOptions, error) {
	for _, opt := range options {
		var err error
		opts, err = opt(opts)
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// Marshal marshals f to JSON.
func Marshal(ctx context.Context, f field.Field, options ...MarshalOption) ([]byte, error) {
	var buf bytes.Buffer
	if err := MarshalWriter(ctx, f, &buf, options...); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalWriter marshals f to JSON, writing to w.
func MarshalWriter(ctx context.Context, f field.Field, w io.Writer, options ...MarshalOption) error {
	opts, err := applyOptions(marshalOptions{}, options)
	if err != nil {
		return err
	}
	enc := newEncoder(w, opts)
	return writeField(ctx, enc, f, opts)
}

func newEncoder(w io.Writer, opts marshalOptions) *jsontext.Encoder {
	if opts.Indent != "" {
		return jsontext.NewEncoder(w, jsontext.WithIndent(opts.Indent))
	}
	return jsontext.NewEncoder(w)
}

// writeField writes the JSON value of f.
func writeField(ctx context.Context, enc *jsontext.Encoder, f field.Field, opts marshalOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch x := f.(type) {
	case nil:
		return enc.WriteToken(jsontext.Null)
	case *field.Map:
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		for _, c := range x.Children() {
			if err := enc.WriteToken(jsontext.String(c.Name())); err != nil {
				return err
			}
			if err := writeField(ctx, enc, c, opts); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	case *field.Union:
		p := x.Payload()
		if p == nil {
			return enc.WriteToken(jsontext.Null)
		}
		return writeField(ctx, enc, p, opts)
	case *field.Enum:
		if e, ok := x.Enum(); ok && !opts.UseEnumNumbers {
			return enc.WriteToken(jsontext.String(e.Name()))
		}
		return enc.WriteToken(jsontext.Uint(x.Uint64()))
	case *field.Flags:
		set := x.Set()
		if opts.UseEnumNumbers || !named(x, set) {
			return enc.WriteToken(jsontext.Uint(set.Raw))
		}
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, n := range set.Names {
			if err := enc.WriteToken(jsontext.String(n)); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case *field.String:
		return enc.WriteToken(jsontext.String(x.Text()))
	case *field.Octets:
		return enc.WriteToken(jsontext.String(hex.EncodeToString(x.Data())))
	}

	switch v := f.Value().(type) {
	case []any:
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, c := range f.Children() {
			if err := writeField(ctx, enc, c, opts); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case uint64:
		return enc.WriteToken(jsontext.Uint(v))
	case int64:
		return enc.WriteToken(jsontext.Int(v))
	case bool:
		return enc.WriteToken(jsontext.Bool(v))
	case float32:
		fl := float64(v)
		if math.IsNaN(fl) || math.IsInf(fl, 0) {
			return enc.WriteToken(jsontext.String(fmt.Sprint(v)))
		}
		return enc.WriteToken(jsontext.Float(fl))
	case string:
		return enc.WriteToken(jsontext.String(v))
	case time.Time:
		return enc.WriteToken(jsontext.String(v.Format(time.RFC3339)))
	case []byte:
		return enc.WriteToken(jsontext.String(hex.EncodeToString(v)))
	case nil:
		return enc.WriteToken(jsontext.Null)
	}
	return enc.WriteToken(jsontext.String(f.Format()))
}

// named reports if every set bit of a Flags field has a name.
func named(f *field.Flags, set field.FlagSet) bool {
	var covered uint64
	for _, n := range set.Names {
		e, _ := f.Group().ByName(n)
		covered |= e.Number()
	}
	return covered == set.Raw
}

// Array writes a JSON array of field trees, one element per Write.
type Array struct {
	writer  io.Writer
	opts    marshalOptions
	written bool
}

// NewArray creates a new Array for streaming JSON array output.
func NewArray(w io.Writer, options ...MarshalOption) (*Array, error) {
	opts, err := applyOptions(marshalOptions{}, options)
	if err != nil {
		return nil, err
	}
	return &Array{writer: w, opts: opts}, nil
}

// Write writes f as the next element of the JSON array.
func (a *Array) Write(ctx context.Context, f field.Field) error {
	sep := ","
	if !a.written {
		sep = "["
		a.written = true
	}
	if _, err := io.WriteString(a.writer, sep); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := writeField(ctx, newEncoder(&buf, a.opts), f, a.opts); err != nil {
		return err
	}
	_, err := a.writer.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return err
}

// Close finishes writing the JSON array.
func (a *Array) Close() error {
	if !a.written {
		_, err := io.WriteString(a.writer, "[]\n")
		return err
	}
	_, err := io.WriteString(a.writer, "]\n")
	return err
}

// Reset resets the Array to write to a new io.Writer.
func (a *Array) Reset(w io.Writer) {
	a.written = false
	a.writer = w
}
