package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gostdlib/base/context"
	"github.com/johnsiilver/halfpike"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/internal/binary"
)

// ParseText parses a Schema in the text format described in the package documentation.
func ParseText(ctx context.Context, content []byte) (*Schema, error) {
	t := &textParser{s: &Schema{Enums: map[string]map[string]uint64{}}}
	if err := halfpike.Parse(ctx, string(content)+"\n", t); err != nil {
		return nil, errors.Wrapf(errors.ErrDomain, "schema: %s", err)
	}
	return t.s, nil
}

type textParser struct {
	s *Schema
}

// Validate implements halfpike.Validator.
func (t *textParser) Validate() error {
	return t.s.Validate()
}

// Start implements halfpike.Start.
func (t *textParser) Start(ctx context.Context, p *halfpike.Parser) halfpike.ParseFn {
	return t.parseHeader
}

func (t *textParser) parseHeader(ctx context.Context, p *halfpike.Parser) halfpike.ParseFn {
	skipComments(p)

	line := p.Next()
	if p.EOF(line) {
		return p.Errorf("error: no 'schema <name> [big|little]' line")
	}
	toks, err := tokens(line.Raw)
	if err != nil {
		return p.Errorf("[Line %d] error: %s", line.LineNum, err)
	}
	if len(toks) < 2 || len(toks) > 3 {
		return p.Errorf("[Line %d] error: got %q, want: 'schema <name> [big|little]'", line.LineNum, strings.TrimSpace(line.Raw))
	}
	if err := caseSensitiveCheck("schema", toks[0]); err != nil {
		return p.Errorf("[Line %d] error: %s", line.LineNum, err)
	}
	t.s.Name = toks[1]
	if len(toks) == 3 {
		if _, err := binary.ParseEndian(toks[2]); err != nil {
			return p.Errorf("[Line %d] error: %s", line.LineNum, err)
		}
		t.s.Endian = toks[2]
	}
	return t.findNext
}

func (t *textParser) findNext(ctx context.Context, p *halfpike.Parser) halfpike.ParseFn {
	skipComments(p)

	line := p.Next()
	if p.EOF(line) {
		return nil
	}
	toks, err := tokens(line.Raw)
	if err != nil {
		return p.Errorf("[Line %d] error: %s", line.LineNum, err)
	}

	switch toks[0] {
	case "enum":
		if len(toks) > 1 && toks[len(toks)-1] == "{" {
			p.Backup()
			if err := t.parseEnum(p); err != nil {
				return p.Errorf("%s", err)
			}
			return t.findNext
		}
	case "}":
		return p.Errorf("[Line %d] error: '}' without a matching '{'", line.LineNum)
	case "schema":
		return p.Errorf("[Line %d] error: duplicate 'schema' line found", line.LineNum)
	}

	p.Backup()
	d, err := parseField(p)
	if err != nil {
		return p.Errorf("%s", err)
	}
	t.s.Fields = append(t.s.Fields, d)
	return t.findNext
}

func (t *textParser) parseEnum(p *halfpike.Parser) error {
	l := p.Next()
	toks, _ := tokens(l.Raw)
	if len(toks) != 3 {
		return fmt.Errorf("[Line %d]: error: want 'enum <Name> {', got %q", l.LineNum, strings.TrimSpace(l.Raw))
	}
	name := toks[1]
	if err := validateIdent(name); err != nil {
		return fmt.Errorf("[Line %d]: error: enum identifier: %w", l.LineNum, err)
	}
	if _, ok := t.s.Enums[name]; ok {
		return fmt.Errorf("[Line %d]: error: found two enums named %q", l.LineNum, name)
	}

	vals := map[string]uint64{}
	nums := map[uint64]string{}
	for {
		skipComments(p)
		l = p.Next()
		if p.EOF(l) {
			return fmt.Errorf("[Line %d]: malformed enum %s, EOF reached before closing '}'", l.LineNum, name)
		}
		toks, err := tokens(l.Raw)
		if err != nil {
			return fmt.Errorf("[Line %d]: error: %w", l.LineNum, err)
		}
		if toks[0] == "}" {
			if len(toks) > 1 {
				return fmt.Errorf("[Line %d]: error: unexpected %q after '}'", l.LineNum, strings.Join(toks[1:], " "))
			}
			break
		}
		if len(toks) != 2 {
			return fmt.Errorf("[Line %d]: error: malformed enum entry, want '<Name> @<Number>'", l.LineNum)
		}
		if err := validateIdent(toks[0]); err != nil {
			return fmt.Errorf("[Line %d]: error: enum value: %w", l.LineNum, err)
		}
		if _, ok := vals[toks[0]]; ok {
			return fmt.Errorf("[Line %d]: error: enum %s already contains %q", l.LineNum, name, toks[0])
		}
		if !strings.HasPrefix(toks[1], "@") {
			return fmt.Errorf("[Line %d]: error: expected @<Number> after identifier, got %q", l.LineNum, toks[1])
		}
		n, err := strconv.ParseUint(toks[1][1:], 0, 64)
		if err != nil {
			return fmt.Errorf("[Line %d]: error: expected @<Number> after identifier, got %q", l.LineNum, toks[1])
		}
		if other, ok := nums[n]; ok {
			return fmt.Errorf("[Line %d]: error: enum %s already contains %s with value %d", l.LineNum, name, other, n)
		}
		vals[toks[0]] = n
		nums[n] = toks[0]
	}
	if len(vals) == 0 {
		return fmt.Errorf("[Line %d]: error: enum %s has no entries", l.LineNum, name)
	}
	t.s.Enums[name] = vals
	return nil
}

// parseField parses a field line and, for types holding fields, its block.
func parseField(p *halfpike.Parser) (FieldDef, error) {
	l := p.Next()
	toks, err := tokens(l.Raw)
	if err != nil {
		return FieldDef{}, fmt.Errorf("[Line %d]: error: %w", l.LineNum, err)
	}
	open := toks[len(toks)-1] == "{"
	if open {
		toks = toks[:len(toks)-1]
	}
	if len(toks) < 2 {
		return FieldDef{}, fmt.Errorf("[Line %d]: error: got %q, want '<name> <type> [key=value ...]'", l.LineNum, strings.TrimSpace(l.Raw))
	}

	d := FieldDef{Name: toks[0], Type: toks[1]}
	for _, kv := range toks[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return FieldDef{}, fmt.Errorf("[Line %d]: error: got %q, want key=value", l.LineNum, kv)
		}
		if err := setKey(&d, k, v); err != nil {
			return FieldDef{}, fmt.Errorf("[Line %d]: error: %s: %w", l.LineNum, k, err)
		}
	}

	switch d.Type {
	case "struct", "seq", "array":
		if !open {
			return FieldDef{}, fmt.Errorf("[Line %d]: error: %s %s must end with '{'", l.LineNum, d.Type, d.Name)
		}
		fields, err := parseBlock(p, d.Name)
		if err != nil {
			return FieldDef{}, err
		}
		d.Fields = fields
	default:
		if open {
			return FieldDef{}, fmt.Errorf("[Line %d]: error: type %s can't hold fields", l.LineNum, d.Type)
		}
	}
	return d, nil
}

func parseBlock(p *halfpike.Parser, name string) ([]FieldDef, error) {
	var fields []FieldDef
	for {
		skipComments(p)
		l := p.Next()
		if p.EOF(l) {
			return nil, fmt.Errorf("[Line %d]: error: EOF reached before the '}' closing %s", l.LineNum, name)
		}
		toks, err := tokens(l.Raw)
		if err != nil {
			return nil, fmt.Errorf("[Line %d]: error: %w", l.LineNum, err)
		}
		if toks[0] == "}" {
			if len(toks) > 1 {
				return nil, fmt.Errorf("[Line %d]: error: unexpected %q after '}'", l.LineNum, strings.Join(toks[1:], " "))
			}
			return fields, nil
		}
		p.Backup()
		d, err := parseField(p)
		if err != nil {
			return nil, err
		}
		fields = append(fields, d)
	}
}

func setKey(d *FieldDef, k, v string) error {
	var err error
	switch k {
	case "bits":
		d.Bits, err = strconv.Atoi(v)
	case "length":
		d.Length, err = strconv.Atoi(v)
	case "endian":
		d.Endian, err = unquote(v)
	case "format":
		d.Format, err = unquote(v)
	case "count":
		d.Count, err = unquote(v)
	case "enum":
		d.Enum, err = unquote(v)
	case "crc":
		d.CRC, err = unquote(v)
	case "charset":
		d.Charset, err = unquote(v)
	case "date_format":
		d.DateFormat, err = unquote(v)
	case "count_bytes":
		d.CountBytes, err = strconv.ParseBool(v)
	case "strict":
		d.Strict, err = strconv.ParseBool(v)
	case "utc":
		d.UTC, err = strconv.ParseBool(v)
	case "default":
		d.Default, err = literal(v)
	default:
		return fmt.Errorf("unknown key")
	}
	return err
}

// literal converts a default value. Quoted values are strings, others are tried as a bool, an
// integer and a float before falling back to a string.
func literal(v string) (any, error) {
	if strings.HasPrefix(v, `"`) {
		return unquote(v)
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b, nil
	}
	if i, err := strconv.ParseInt(v, 0, 64); err == nil {
		return i, nil
	}
	if u, err := strconv.ParseUint(v, 0, 64); err == nil {
		return u, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	return v, nil
}

func unquote(v string) (string, error) {
	if !strings.HasPrefix(v, `"`) {
		return v, nil
	}
	return strconv.Unquote(v)
}

// tokens splits a line on spaces, keeping double quoted text together and dropping a trailing
// // comment.
func tokens(raw string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote bool
		esc   bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.TrimSpace(raw) {
		switch {
		case quote:
			cur.WriteRune(r)
			switch {
			case esc:
				esc = false
			case r == '\\':
				esc = true
			case r == '"':
				quote = false
			}
			continue
		case r == '"':
			quote = true
			cur.WriteRune(r)
			continue
		case unicode.IsSpace(r):
			flush()
			continue
		}
		cur.WriteRune(r)
		if cur.Len() == 2 && cur.String() == "//" {
			cur.Reset()
			break
		}
	}
	if quote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return out, nil
}

func skipComments(p *halfpike.Parser) {
	for {
		line := p.Next()
		if p.EOF(line) {
			p.Backup()
			return
		}
		toks, err := tokens(line.Raw)
		if err == nil && len(toks) == 0 {
			continue
		}
		p.Backup()
		return
	}
}

func caseSensitiveCheck(want string, item string) error {
	if item != want {
		if strings.EqualFold(item, want) {
			return fmt.Errorf("%q keyword found, but it is required to be %q", item, want)
		}
		return fmt.Errorf("got: %q, want: %q", item, want)
	}
	return nil
}

func validateIdent(ident string) error {
	runes := []rune(ident)
	if !unicode.IsUpper(runes[0]) {
		return fmt.Errorf("identifier %q must start with an uppercase letter", ident)
	}
	for _, r := range runes[1:] {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' {
			continue
		}
		return fmt.Errorf("identifier %q contains %q, which is invalid for an identifier", ident, r)
	}
	return nil
}
