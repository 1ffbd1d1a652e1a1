package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/gostdlib/base/context"
	"github.com/rs/zerolog"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/capture"
	"github.com/bearlytools/bitcodec/config"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
	"github.com/bearlytools/bitcodec/fieldjson"
	"github.com/bearlytools/bitcodec/protocols/modbus"
	"github.com/bearlytools/bitcodec/protocols/synchrophasor"
	"github.com/bearlytools/bitcodec/schema"
)

// message is one decoded frame. frame may be set alongside err, for example on a checksum
// mismatch.
type message struct {
	frame field.Field
	err   error
}

// dumper decodes the payloads of a capture and prints them.
type dumper struct {
	cfg config.Dump
	out io.Writer
	log zerolog.Logger

	schema *schema.Schema
	pmu    *synchrophasor.Decoder
	json   *fieldjson.Array

	printed int
}

func newDumper(ctx context.Context, fsys fs.FS, cfg config.Dump, out io.Writer, log zerolog.Logger) (*dumper, error) {
	d := &dumper{cfg: cfg, out: out, log: log}

	switch cfg.Protocol {
	case config.Synchrophasor:
		d.pmu = synchrophasor.NewDecoder()
	case config.Schema:
		s, err := schema.Load(ctx, fsys, cfg.Schema)
		if err != nil {
			return nil, errors.Wrapf(err, "schema %s", cfg.Schema)
		}
		// Fail before reading packets if the schema can't build.
		if _, err := s.Build(); err != nil {
			return nil, errors.Wrapf(err, "schema %s", cfg.Schema)
		}
		d.schema = s
	}

	if cfg.Format == config.FormatJSON {
		opts := []fieldjson.MarshalOption{fieldjson.WithEnumNumbers(cfg.EnumNumbers)}
		if cfg.Indent != "" {
			opts = append(opts, fieldjson.WithIndent(cfg.Indent))
		}
		a, err := fieldjson.NewArray(out, opts...)
		if err != nil {
			return nil, err
		}
		d.json = a
	}
	return d, nil
}

// run prints every message in the frames of r, until the limit is reached.
func (d *dumper) run(ctx context.Context, r *capture.Reader) error {
	err := d.frames(ctx, r)
	if d.json != nil {
		if cerr := d.json.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (d *dumper) frames(ctx context.Context, r *capture.Reader) error {
	for f, err := range r.Frames(ctx) {
		if err != nil {
			return err
		}
		for _, m := range d.decode(f) {
			if m.err != nil {
				d.log.Debug().Err(m.err).Str("src", f.Src.String()).Str("head", bits.BytesInBinary(head(f.Payload))).Msg("decode failed")
			}
			if err := d.print(ctx, f, m); err != nil {
				return err
			}
			d.printed++
			if d.cfg.Limit > 0 && d.printed >= d.cfg.Limit {
				return nil
			}
		}
	}
	return nil
}

// head returns up to the first 8 bytes of b.
func head(b []byte) []byte {
	return b[:min(len(b), 8)]
}

// decode splits the payload of f into messages of the configured protocol.
func (d *dumper) decode(f capture.Frame) []message {
	b := f.Payload
	switch d.cfg.Protocol {
	case config.ModbusTCP:
		var msgs []message
		for len(b) > 0 {
			n, err := modbus.FrameLength(b)
			if err == nil && n > len(b) {
				err = errors.Wrapf(errors.ErrInsufficientData, "MBAP: frame of %d bytes, have %d", n, len(b))
			}
			if err != nil {
				return append(msgs, message{err: err})
			}
			frame, err := modbus.DecodeTCP(b[:n], d.direction(f))
			msgs = append(msgs, message{frame: nilIfEmpty(frame), err: err})
			b = b[n:]
		}
		return msgs
	case config.ModbusRTU:
		frame, err := modbus.DecodeRTU(b, d.direction(f))
		return []message{{frame: nilIfEmpty(frame), err: err}}
	case config.Synchrophasor:
		var msgs []message
		for len(b) > 0 {
			if len(b) < 4 {
				return append(msgs, message{err: errors.Wrapf(errors.ErrInsufficientData, "frame: %d bytes", len(b))})
			}
			size := int(b[2])<<8 | int(b[3])
			if size < 4 || size > len(b) {
				return append(msgs, message{err: errors.Wrapf(errors.ErrDomain, "frame: FRAMESIZE %d, have %d bytes", size, len(b))})
			}
			frame, err := d.pmu.Decode(b[:size])
			msgs = append(msgs, message{frame: nilIfEmpty(frame), err: err})
			b = b[size:]
		}
		return msgs
	case config.Schema:
		root, err := d.schema.Build()
		if err != nil {
			return []message{{err: err}}
		}
		if err := field.Unmarshal(b, root); err != nil {
			return []message{{err: err}}
		}
		return []message{{frame: root}}
	}
	return []message{{err: errors.Wrapf(errors.ErrNotImplemented, "protocol %q", d.cfg.Protocol)}}
}

// nilIfEmpty keeps a nil *field.Map from becoming a non-nil field.Field.
func nilIfEmpty(m *field.Map) field.Field {
	if m == nil {
		return nil
	}
	return m
}

// direction says if f goes to the server port.
func (d *dumper) direction(f capture.Frame) modbus.Direction {
	port := d.cfg.MatchPort()
	if port < 0 {
		port = config.DefaultPorts[config.ModbusTCP]
	}
	if int(f.Dst.Port()) == port {
		return modbus.Request
	}
	return modbus.Response
}

func (d *dumper) print(ctx context.Context, f capture.Frame, m message) error {
	if d.json != nil {
		rec, err := record(f, m)
		if err != nil {
			return err
		}
		return d.json.Write(ctx, rec)
	}

	if _, err := fmt.Fprintf(d.out, "%s %s > %s %s\n", f.Time.Format(time.RFC3339Nano), f.Src, f.Dst, f.Proto); err != nil {
		return err
	}
	if m.frame != nil {
		if err := d.printTree(m.frame, 1); err != nil {
			return err
		}
	}
	if m.err != nil {
		if _, err := fmt.Fprintf(d.out, "  error: %s\n", m.err); err != nil {
			return err
		}
	}
	return nil
}

// printTree prints f and its descendants, one field per line.
func (d *dumper) printTree(f field.Field, depth int) error {
	indent := strings.Repeat("  ", depth)
	switch x := f.(type) {
	case *field.String:
		_, err := fmt.Fprintf(d.out, "%s%s: %q\n", indent, x.Name(), x.Value())
		return err
	case *field.Octets:
		_, err := fmt.Fprintf(d.out, "%s%s: %s\n", indent, x.Name(), hex.EncodeToString(x.Data()))
		return err
	case *field.Enum:
		if d.cfg.EnumNumbers {
			_, err := fmt.Fprintf(d.out, "%s%s: %d\n", indent, x.Name(), x.Uint64())
			return err
		}
	case *field.Flags:
		if d.cfg.EnumNumbers {
			_, err := fmt.Fprintf(d.out, "%s%s: %#x\n", indent, x.Name(), x.Uint64())
			return err
		}
	case *field.Union:
		if p := x.Payload(); p != nil {
			return d.printTree(p, depth)
		}
		_, err := fmt.Fprintf(d.out, "%s%s: <unset>\n", indent, x.Name())
		return err
	case field.Container:
		if _, err := fmt.Fprintf(d.out, "%s%s:\n", indent, x.Name()); err != nil {
			return err
		}
		for _, c := range x.Children() {
			if err := d.printTree(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	_, err := fmt.Fprintf(d.out, "%s%s: %s\n", indent, f.Name(), f.Format())
	return err
}

// record wraps a message in a map with the frame's metadata for JSON output.
func record(f capture.Frame, m message) (*field.Map, error) {
	rec := field.NewMap("record", field.WithChildren(
		text("time", f.Time.Format(time.RFC3339Nano)),
		text("src", f.Src.String()),
		text("dst", f.Dst.String()),
		text("proto", f.Proto),
	))
	if m.frame != nil {
		if err := rec.Add(m.frame); err != nil {
			return nil, err
		}
	}
	if m.err != nil {
		if err := rec.Add(text("error", m.err.Error())); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// text creates a String holding s. Characters outside ASCII become '?'.
func text(name, s string) *field.String {
	s = strings.Map(func(r rune) rune {
		if r > 0x7e {
			return '?'
		}
		return r
	}, s)
	return field.NewString(name, len(s), field.WithDefault(s))
}
