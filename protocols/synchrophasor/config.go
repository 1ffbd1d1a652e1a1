package synchrophasor

import (
	"time"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// Config is the content of a configuration frame (CFG-1 or CFG-2).
type Config struct {
	// TimeBase is the resolution of FRACSEC. It is 24 bits.
	TimeBase uint32
	// PMUs holds one entry per PMU in data frames, in order.
	PMUs []PMUConfig
	// DataRate is frames per second if positive, seconds per frame if negative.
	DataRate int16
}

// PMUConfig describes the data one PMU sends.
type PMUConfig struct {
	Station string
	IDCode  uint16
	// Format is the FORMAT word, see FormatPolar and friends.
	Format uint16
	// PhasorNames has one name per phasor, AnalogNames one per analog value.
	PhasorNames []string
	AnalogNames []string
	// DigitalNames has 16 names per digital status word.
	DigitalNames []string
	// PhasorUnits, AnalogUnits and DigitalUnits hold one raw conversion word per value.
	PhasorUnits  []uint32
	AnalogUnits  []uint32
	DigitalUnits []uint32
	// NominalFreq is the FNOM word. Bit 0 set means 50 Hz, otherwise 60 Hz.
	NominalFreq uint16
	ConfigCount uint16
}

func (p PMUConfig) validate() error {
	switch {
	case len(p.PhasorUnits) != len(p.PhasorNames):
		return errors.Wrapf(errors.ErrDomain, "PMU %d: %d phasor names, %d units", p.IDCode, len(p.PhasorNames), len(p.PhasorUnits))
	case len(p.AnalogUnits) != len(p.AnalogNames):
		return errors.Wrapf(errors.ErrDomain, "PMU %d: %d analog names, %d units", p.IDCode, len(p.AnalogNames), len(p.AnalogUnits))
	case len(p.DigitalNames) != 16*len(p.DigitalUnits):
		return errors.Wrapf(errors.ErrDomain, "PMU %d: %d digital names, need 16 for each of %d words", p.IDCode, len(p.DigitalNames), len(p.DigitalUnits))
	}
	return nil
}

// TypeOf returns the frame type of frame.
func TypeOf(frame *field.Map) FrameType {
	if i, ok := field.Lookup(frame, "sync.frame_type").(field.Integer); ok {
		return FrameType(i.Uint64())
	}
	return Data
}

// IDCode returns the IDCODE of frame.
func IDCode(frame *field.Map) uint16 {
	if i, ok := frame.Get("idcode").(field.Integer); ok {
		return uint16(i.Uint64())
	}
	return 0
}

// Payload returns the payload of frame, or nil.
func Payload(frame *field.Map) field.Field {
	if u, ok := frame.Get("payload").(*field.Union); ok {
		return u.Payload()
	}
	return nil
}

// Timestamp returns the time of frame: SOC plus FRACSEC divided by timeBase.
// A zero timeBase ignores FRACSEC.
func Timestamp(frame *field.Map, timeBase uint32) time.Time {
	soc, ok := frame.Get("soc").(*field.DateTime)
	if !ok {
		return time.Time{}
	}
	t := soc.Time()
	if timeBase == 0 {
		return t
	}
	frac, ok := field.Lookup(frame, "fracsec.fraction").(field.Integer)
	if !ok {
		return t
	}
	return t.Add(time.Duration(frac.Uint64() * uint64(time.Second) / uint64(timeBase)))
}

// Seal stores FRAMESIZE and the checksum. Call it after the last change to a frame.
func Seal(frame *field.Map) error {
	size := frame.Get("frame_size")
	if size == nil {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: no frame_size", frame.Name())
	}
	if err := size.SetValue(frame.BitCount() / 8); err != nil {
		return err
	}
	chk, ok := frame.Get("chk").(*field.Checksum)
	if !ok {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: no chk", frame.Name())
	}
	return chk.Update(nil)
}

// start creates a sealed-ready frame of type ft with its payload selected.
func start(ft FrameType, idcode uint16, soc time.Time, options ...Option) (*field.Map, error) {
	frame := NewFrame(options...)
	if err := field.Lookup(frame, "sync.frame_type").SetValue(uint8(ft)); err != nil {
		return nil, err
	}
	vals := map[string]any{
		"idcode": idcode,
		"soc":    soc,
	}
	if err := frame.SetValue(vals); err != nil {
		return nil, err
	}
	if err := frame.Get("payload").(*field.Union).Choose(); err != nil {
		return nil, err
	}
	return frame, nil
}

// CommandFrame creates a sealed command frame for the PMU with idcode.
func CommandFrame(idcode uint16, cmd CommandCode, soc time.Time) (*field.Map, error) {
	frame, err := start(Command, idcode, soc)
	if err != nil {
		return nil, err
	}
	if err := Payload(frame).(*field.Map).Get("cmd").SetValue(uint16(cmd)); err != nil {
		return nil, err
	}
	if err := Seal(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// HeaderFrame creates a sealed header frame carrying text.
func HeaderFrame(idcode uint16, text string, soc time.Time) (*field.Map, error) {
	frame, err := start(Header, idcode, soc)
	if err != nil {
		return nil, err
	}
	if err := Payload(frame).SetValue(text); err != nil {
		return nil, err
	}
	if err := Seal(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// ConfigFrame creates a sealed configuration frame of type Config1 or Config2 holding cfg.
func ConfigFrame(ft FrameType, idcode uint16, soc time.Time, cfg *Config) (*field.Map, error) {
	if ft != Config1 && ft != Config2 {
		return nil, errors.Wrapf(errors.ErrDomain, "%s is not a configuration frame type", ft)
	}
	if cfg == nil {
		return nil, errors.Wrapf(errors.ErrDomain, "nil Config")
	}
	for _, p := range cfg.PMUs {
		if err := p.validate(); err != nil {
			return nil, err
		}
	}

	frame, err := start(ft, idcode, soc)
	if err != nil {
		return nil, err
	}
	payload := Payload(frame).(*field.Map)
	vals := map[string]any{
		"time_base": map[string]any{"base": cfg.TimeBase},
		"num_pmu":   len(cfg.PMUs),
		"data_rate": cfg.DataRate,
	}
	if err := payload.SetValue(vals); err != nil {
		return nil, err
	}
	pmus := payload.Get("pmus").(*field.Array)
	pmus.Resize(len(cfg.PMUs))
	for i, p := range cfg.PMUs {
		if err := setPMU(pmus.At(i).(*field.Map), p); err != nil {
			return nil, err
		}
	}
	if err := Seal(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func setPMU(m *field.Map, p PMUConfig) error {
	vals := map[string]any{
		"station":       p.Station,
		"idcode":        p.IDCode,
		"format":        p.Format,
		"phasor_count":  len(p.PhasorNames),
		"analog_count":  len(p.AnalogNames),
		"digital_count": len(p.DigitalUnits),
		"nominal_freq":  p.NominalFreq,
		"config_count":  p.ConfigCount,
	}
	if err := m.SetValue(vals); err != nil {
		return err
	}

	lists := []struct {
		name string
		vals []any
	}{
		{"phasor_names", strs(p.PhasorNames)},
		{"analog_names", strs(p.AnalogNames)},
		{"digital_names", strs(p.DigitalNames)},
		{"phasor_units", words(p.PhasorUnits)},
		{"analog_units", words(p.AnalogUnits)},
		{"digital_units", words(p.DigitalUnits)},
	}
	for _, l := range lists {
		a := m.Get(l.name).(*field.Array)
		a.Resize(len(l.vals))
		if err := a.SetValue(l.vals); err != nil {
			return err
		}
	}
	return nil
}

func strs(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func words(w []uint32) []any {
	out := make([]any, len(w))
	for i, v := range w {
		out[i] = v
	}
	return out
}

// ConfigOf extracts the configuration from a parsed Config1 or Config2 frame.
func ConfigOf(frame *field.Map) (*Config, error) {
	if t := TypeOf(frame); t != Config1 && t != Config2 {
		return nil, errors.Wrapf(errors.ErrDomain, "%s frame is not a configuration", t)
	}
	payload, ok := Payload(frame).(*field.Map)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNoSuchField, "configuration frame has no payload")
	}

	cfg := &Config{
		TimeBase: uint32(uintAt(payload, "time_base.base")),
		DataRate: int16(field.Lookup(payload, "data_rate").(*field.Int).Int64()),
	}
	for _, f := range payload.Get("pmus").Children() {
		m := f.(*field.Map)
		cfg.PMUs = append(cfg.PMUs, PMUConfig{
			Station:      m.Get("station").(*field.String).Text(),
			IDCode:       uint16(uintAt(m, "idcode")),
			Format:       uint16(uintAt(m, "format")),
			PhasorNames:  texts(m.Get("phasor_names")),
			AnalogNames:  texts(m.Get("analog_names")),
			DigitalNames: texts(m.Get("digital_names")),
			PhasorUnits:  uints(m.Get("phasor_units")),
			AnalogUnits:  uints(m.Get("analog_units")),
			DigitalUnits: uints(m.Get("digital_units")),
			NominalFreq:  uint16(uintAt(m, "nominal_freq")),
			ConfigCount:  uint16(uintAt(m, "config_count")),
		})
	}
	return cfg, nil
}

func uintAt(root field.Field, path string) uint64 {
	if i, ok := field.Lookup(root, path).(field.Integer); ok {
		return i.Uint64()
	}
	return 0
}

func texts(f field.Field) []string {
	var out []string
	for _, c := range f.Children() {
		if s, ok := c.(*field.String); ok {
			out = append(out, s.Text())
		}
	}
	return out
}

func uints(f field.Field) []uint32 {
	var out []uint32
	for _, c := range f.Children() {
		if i, ok := c.(field.Integer); ok {
			out = append(out, uint32(i.Uint64()))
		}
	}
	return out
}
