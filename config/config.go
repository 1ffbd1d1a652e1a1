// Package config loads the TOML configuration of the bitdump command.
//
//	protocol = "modbus-tcp"
//	format = "json"
//	port = 502
//	enum_numbers = false
//	indent = "  "
//	limit = 100
//	log_level = "debug"
//
// With protocol "schema", schema names a schema file (YAML or text) that describes each payload.
package config

import (
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/internal/logging"
)

// Protocols bitdump can decode.
const (
	ModbusTCP     = "modbus-tcp"
	ModbusRTU     = "modbus-rtu"
	Synchrophasor = "synchrophasor"
	Schema        = "schema"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultPorts are the TCP or UDP ports used when Port is 0. Protocols without an entry match
// any port.
var DefaultPorts = map[string]int{
	ModbusTCP:     502,
	Synchrophasor: 4712,
}

// Dump configures a bitdump run.
type Dump struct {
	// Protocol is how payloads are decoded.
	Protocol string
	// Format is FormatText or FormatJSON.
	Format string
	// Port selects packets to or from this port. 0 uses DefaultPorts, -1 matches any port.
	Port int
	// EnumNumbers prints enum values as numbers.
	EnumNumbers bool
	// Indent indents JSON output.
	Indent string
	// Schema is the schema file used with protocol "schema".
	Schema string
	// Limit stops after this many frames. 0 means no limit.
	Limit int
	// LogLevel is a zerolog level name.
	LogLevel string
}

type fileConfig struct {
	Protocol    string `toml:"protocol"`
	Format      string `toml:"format"`
	Port        int    `toml:"port"`
	EnumNumbers bool   `toml:"enum_numbers"`
	Indent      string `toml:"indent"`
	Schema      string `toml:"schema"`
	Limit       int    `toml:"limit"`
	LogLevel    string `toml:"log_level"`
}

// Default returns the Dump used without a config file.
func Default() Dump {
	return Dump{
		Protocol: ModbusTCP,
		Format:   FormatText,
		LogLevel: "info",
	}
}

// Load reads the TOML file at p from fsys over Default(). Unknown keys are an error.
func Load(fsys fs.FS, p string) (Dump, error) {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return Dump{}, errors.Wrapf(err, "load config %s", p)
	}
	return Decode(string(b))
}

// Decode parses a TOML document over Default().
func Decode(doc string) (Dump, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Dump{}, errors.Wrapf(errors.ErrDomain, "parse config: %s", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Dump{}, errors.Wrapf(errors.ErrDomain, "config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("protocol") {
		cfg.Protocol = strings.ToLower(strings.TrimSpace(raw.Protocol))
	}
	if meta.IsDefined("format") {
		cfg.Format = strings.ToLower(strings.TrimSpace(raw.Format))
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("enum_numbers") {
		cfg.EnumNumbers = raw.EnumNumbers
	}
	if meta.IsDefined("indent") {
		cfg.Indent = raw.Indent
	}
	if meta.IsDefined("schema") {
		cfg.Schema = strings.TrimSpace(raw.Schema)
	}
	if meta.IsDefined("limit") {
		cfg.Limit = raw.Limit
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return Dump{}, err
	}
	return cfg, nil
}

// Validate checks the values of d.
func (d Dump) Validate() error {
	switch d.Protocol {
	case ModbusTCP, ModbusRTU, Synchrophasor:
		if d.Schema != "" {
			return errors.Wrapf(errors.ErrDomain, "config: schema is only used with protocol %q", Schema)
		}
	case Schema:
		if d.Schema == "" {
			return errors.Wrapf(errors.ErrDomain, "config: protocol %q needs a schema file", Schema)
		}
	default:
		return errors.Wrapf(errors.ErrDomain, "config: unknown protocol %q", d.Protocol)
	}

	switch d.Format {
	case FormatText, FormatJSON:
	default:
		return errors.Wrapf(errors.ErrDomain, "config: unknown format %q", d.Format)
	}
	if d.Port < -1 || d.Port > 65535 {
		return errors.Wrapf(errors.ErrDomain, "config: port %d out of range", d.Port)
	}
	if d.Limit < 0 {
		return errors.Wrapf(errors.ErrDomain, "config: limit can't be negative")
	}
	if strings.Trim(d.Indent, " \t") != "" {
		return errors.Wrapf(errors.ErrDomain, "config: indent may only hold spaces and tabs")
	}
	if _, ok := logging.ParseLevel(d.LogLevel); !ok {
		return errors.Wrapf(errors.ErrDomain, "config: unknown log level %q", d.LogLevel)
	}
	return nil
}

// MatchPort returns the port packets are filtered on, or -1 for any port.
func (d Dump) MatchPort() int {
	if d.Port != 0 {
		return d.Port
	}
	if p, ok := DefaultPorts[d.Protocol]; ok {
		return p
	}
	return -1
}
