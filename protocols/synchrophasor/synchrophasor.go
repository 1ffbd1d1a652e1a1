/*
Package synchrophasor describes IEEE C37.118 synchrophasor frames with field trees.

Every frame has the same 14 byte header (SYNC, FRAMESIZE, IDCODE, SOC, FRACSEC), a payload chosen
by the frame type in SYNC and a CRC-CCITT checksum. Command, header and configuration payloads
describe themselves. Data payloads can only be parsed with the configuration the PMU sent
earlier, which is what Decoder keeps track of.

	d := synchrophasor.NewDecoder()
	for _, b := range frames {
		f, err := d.Decode(b)
		if err != nil {
			// Do something
		}
		fmt.Println(synchrophasor.TypeOf(f), f.Format())
	}
*/
package synchrophasor

import (
	"fmt"

	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// SyncByte is the first byte of every frame.
const SyncByte = 0xAA

// HeaderLen is the number of bytes before the payload.
const HeaderLen = 14

// overhead is the header plus the checksum.
const overhead = HeaderLen + 2

// FrameType is the type of frame, from bits 6-4 of the second SYNC byte.
type FrameType uint8

const (
	Data    FrameType = 0
	Header  FrameType = 1
	Config1 FrameType = 2
	Config2 FrameType = 3
	Command FrameType = 4
	Config3 FrameType = 5
)

// String implements fmt.Stringer.
func (t FrameType) String() string {
	if e, ok := FrameTypes.ByValue(uint64(t)); ok {
		return e.Name()
	}
	return fmt.Sprintf("FrameType(%d)", uint8(t))
}

// FrameTypes names the frame types.
var FrameTypes = enums.NewGroup(
	"FrameType",
	enums.Value{Name: "Data", Number: uint64(Data)},
	enums.Value{Name: "Header", Number: uint64(Header)},
	enums.Value{Name: "Config1", Number: uint64(Config1)},
	enums.Value{Name: "Config2", Number: uint64(Config2)},
	enums.Value{Name: "Command", Number: uint64(Command)},
	enums.Value{Name: "Config3", Number: uint64(Config3)},
)

// CommandCode is the CMD word of a command frame.
type CommandCode uint16

const (
	TurnOffTransmission CommandCode = 1
	TurnOnTransmission  CommandCode = 2
	SendHeader          CommandCode = 3
	SendConfig1         CommandCode = 4
	SendConfig2         CommandCode = 5
	SendConfig3         CommandCode = 6
	ExtendedFrame       CommandCode = 8
)

// CommandCodes names the command codes.
var CommandCodes = enums.NewGroup(
	"CommandCode",
	enums.Value{Name: "TurnOffTransmission", Number: uint64(TurnOffTransmission)},
	enums.Value{Name: "TurnOnTransmission", Number: uint64(TurnOnTransmission)},
	enums.Value{Name: "SendHeader", Number: uint64(SendHeader)},
	enums.Value{Name: "SendConfig1", Number: uint64(SendConfig1)},
	enums.Value{Name: "SendConfig2", Number: uint64(SendConfig2)},
	enums.Value{Name: "SendConfig3", Number: uint64(SendConfig3)},
	enums.Value{Name: "ExtendedFrame", Number: uint64(ExtendedFrame)},
)

// StatFlags names the bits of the STAT word of a data frame.
var StatFlags = enums.NewGroup(
	"Stat",
	enums.Value{Name: "DataInvalid", Number: 0x8000},
	enums.Value{Name: "PMUError", Number: 0x4000},
	enums.Value{Name: "NotSynchronized", Number: 0x2000},
	enums.Value{Name: "SortedByArrival", Number: 0x1000},
	enums.Value{Name: "Trigger", Number: 0x0800},
	enums.Value{Name: "ConfigChange", Number: 0x0400},
	enums.Value{Name: "DataModified", Number: 0x0200},
)

// Bits of the FORMAT word of a configuration.
const (
	FormatPolar       uint16 = 0x0001
	FormatPhasorFloat uint16 = 0x0002
	FormatAnalogFloat uint16 = 0x0004
	FormatFreqFloat   uint16 = 0x0008
)

// FormatFlags names the bits of the FORMAT word of a configuration.
var FormatFlags = enums.NewGroup(
	"Format",
	enums.Value{Name: "Polar", Number: uint64(FormatPolar)},
	enums.Value{Name: "PhasorFloat", Number: uint64(FormatPhasorFloat)},
	enums.Value{Name: "AnalogFloat", Number: uint64(FormatAnalogFloat)},
	enums.Value{Name: "FreqFloat", Number: uint64(FormatFreqFloat)},
)

// Lookup returns the configuration for a PMU's IDCODE.
type Lookup func(idcode uint16) (*Config, bool)

type frameOptions struct {
	lookup Lookup
}

// Option is an optional argument to NewFrame.
type Option func(o *frameOptions)

// WithConfig makes data frames parse with cfg, whatever their IDCODE.
func WithConfig(cfg *Config) Option {
	return func(o *frameOptions) {
		o.lookup = func(uint16) (*Config, bool) { return cfg, cfg != nil }
	}
}

// WithLookup makes data frames parse with the configuration lookup returns for their IDCODE.
func WithLookup(lookup Lookup) Option {
	return func(o *frameOptions) {
		o.lookup = lookup
	}
}

// NewFrame creates an empty frame. Without a configuration, data payloads are kept as raw bytes.
func NewFrame(options ...Option) *field.Map {
	opts := frameOptions{}
	for _, o := range options {
		o(&opts)
	}

	return field.NewMap("frame", field.WithChildren(
		field.NewMap("sync", field.WithChildren(
			field.NewUint("leading", 8, field.WithDefault(SyncByte), field.WithFormat("%#02x")),
			field.NewUint("reserved", 1),
			field.NewEnum("frame_type", FrameTypes, 3),
			field.NewUint("version", 4, field.WithDefault(1)),
		)),
		field.NewUint("frame_size", 16),
		field.NewUint("idcode", 16),
		field.NewDateTime("soc", field.WithUTC(true)),
		field.NewMap("fracsec", field.WithChildren(
			field.NewUint("time_quality", 8, field.WithFormat("%#02x")),
			field.NewUint("fraction", 24),
		)),
		field.NewUnion("payload", field.ByName("sync.frame_type"), chooser(opts.lookup)),
		field.NewChecksum("chk", field.CRC16CCITTFalse, field.WithFormat("%#04x")),
	))
}

func chooser(lookup Lookup) field.Chooser {
	return func(tag field.Field) (field.Field, error) {
		i, ok := tag.(field.Integer)
		if !ok {
			return nil, errors.Wrapf(errors.ErrType, "frame type is %T", tag)
		}
		switch FrameType(i.Uint64()) {
		case Command:
			return commandPayload(), nil
		case Header:
			return field.NewStringRef("header", field.Ref{}, field.WithCountFunc(payloadLen(0))), nil
		case Config1, Config2:
			return configPayload(), nil
		case Data:
			if lookup != nil {
				if cfg, ok := lookup(idcodeOf(tag)); ok {
					return dataPayload(cfg), nil
				}
			}
		}
		return field.NewOctetsRef("raw", field.Ref{}, field.WithCountFunc(payloadLen(0))), nil
	}
}

// idcodeOf finds the IDCODE of the frame holding the frame type tag.
func idcodeOf(tag field.Field) uint16 {
	for c := tag.Parent(); c != nil; c = c.Parent() {
		if i, ok := c.Get("idcode").(field.Integer); ok {
			return uint16(i.Uint64())
		}
	}
	return 0
}

// payloadLen returns a CountFunc giving the payload bytes FRAMESIZE leaves after used bytes.
func payloadLen(used int) field.CountFunc {
	return func(parent field.Container) (int, error) {
		for c := parent; c != nil; c = c.Parent() {
			if i, ok := c.Get("frame_size").(field.Integer); ok {
				return int(i.Uint64()) - overhead - used, nil
			}
		}
		return 0, errors.Wrapf(errors.ErrNoSuchField, "frame_size not found")
	}
}

func commandPayload() field.Field {
	return field.NewMap("command", field.WithChildren(
		field.NewEnum("cmd", CommandCodes, 16),
		field.NewOctetsRef("extended", field.Ref{}, field.WithCountFunc(payloadLen(2))),
	))
}

func configPayload() field.Field {
	return field.NewMap("config", field.WithChildren(
		field.NewMap("time_base", field.WithChildren(
			field.NewUint("flags", 8),
			field.NewUint("base", 24),
		)),
		field.NewUint("num_pmu", 16),
		field.NewArray("pmus", field.ByName("num_pmu"), func(int) field.Field { return pmuConfig() }),
		field.NewInt("data_rate", 16),
	))
}

func name16(int) field.Field {
	return field.NewString("", 16)
}

func unit32(int) field.Field {
	return field.NewUint("", 32, field.WithFormat("%#08x"))
}

func pmuConfig() field.Field {
	return field.NewMap("", field.WithChildren(
		field.NewString("station", 16),
		field.NewUint("idcode", 16),
		field.NewFlags("format", FormatFlags, 16),
		field.NewUint("phasor_count", 16),
		field.NewUint("analog_count", 16),
		field.NewUint("digital_count", 16),
		field.NewArray("phasor_names", field.ByName("phasor_count"), name16),
		field.NewArray("analog_names", field.ByName("analog_count"), name16),
		field.NewArray("digital_names", field.Ref{}, name16, field.WithCountFunc(func(parent field.Container) (int, error) {
			if i, ok := parent.Get("digital_count").(field.Integer); ok {
				return 16 * int(i.Uint64()), nil
			}
			return 0, nil
		})),
		field.NewArray("phasor_units", field.ByName("phasor_count"), unit32),
		field.NewArray("analog_units", field.ByName("analog_count"), unit32),
		field.NewArray("digital_units", field.ByName("digital_count"), unit32),
		field.NewUint("nominal_freq", 16),
		field.NewUint("config_count", 16),
	))
}

func dataPayload(cfg *Config) field.Field {
	return field.NewMap("data", field.WithChildren(
		field.NewFixedArray("pmus", len(cfg.PMUs), func(i int) field.Field { return pmuData(cfg.PMUs[i]) }),
	))
}

func pmuData(pc PMUConfig) field.Field {
	phasor := func(int) field.Field {
		switch {
		case pc.Format&FormatPhasorFloat != 0 && pc.Format&FormatPolar != 0:
			return pair(field.NewFloat32("magnitude"), field.NewFloat32("angle"))
		case pc.Format&FormatPhasorFloat != 0:
			return pair(field.NewFloat32("real"), field.NewFloat32("imaginary"))
		case pc.Format&FormatPolar != 0:
			return pair(field.NewUint("magnitude", 16), field.NewInt("angle", 16))
		}
		return pair(field.NewInt("real", 16), field.NewInt("imaginary", 16))
	}
	freq := func(name string) field.Field {
		if pc.Format&FormatFreqFloat != 0 {
			return field.NewFloat32(name)
		}
		return field.NewInt(name, 16)
	}
	analog := func(int) field.Field {
		if pc.Format&FormatAnalogFloat != 0 {
			return field.NewFloat32("")
		}
		return field.NewInt("", 16)
	}

	return field.NewMap("", field.WithChildren(
		field.NewFlags("stat", StatFlags, 16),
		field.NewFixedArray("phasors", len(pc.PhasorNames), phasor),
		freq("freq"),
		freq("dfreq"),
		field.NewFixedArray("analogs", len(pc.AnalogNames), analog),
		field.NewFixedArray("digitals", len(pc.DigitalUnits), func(int) field.Field {
			return field.NewUint("", 16, field.WithFormat("%#04x"))
		}),
	))
}

func pair(a, b field.Field) field.Field {
	return field.NewMap("", field.WithChildren(a, b))
}
