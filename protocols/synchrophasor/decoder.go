package synchrophasor

import (
	"github.com/gostdlib/base/concurrency/sync"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// Decoder decodes a stream of frames from one or more PMUs. It remembers the last configuration
// frame seen for each IDCODE and uses it to decode that PMU's data frames.
// A Decoder is safe for concurrent use.
type Decoder struct {
	mu      sync.RWMutex
	configs map[uint16]*Config
}

// NewDecoder creates a Decoder that knows no configurations.
func NewDecoder() *Decoder {
	return &Decoder{configs: map[uint16]*Config{}}
}

// SetConfig stores the configuration for idcode, as if a configuration frame was decoded.
func (d *Decoder) SetConfig(idcode uint16, cfg *Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs[idcode] = cfg
}

// Config returns the configuration for idcode.
func (d *Decoder) Config(idcode uint16) (*Config, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.configs[idcode]
	return cfg, ok
}

// Decode parses one frame, checking SYNC, FRAMESIZE and the checksum. Configuration frames
// update the Decoder. A data frame from a PMU without a configuration is ErrDomain.
// On ErrChecksum the parsed frame is still returned.
func (d *Decoder) Decode(b []byte) (*field.Map, error) {
	if len(b) < overhead {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "frame: need at least %d bytes, have %d", overhead, len(b))
	}
	if b[0] != SyncByte {
		return nil, errors.Wrapf(errors.ErrDomain, "frame: SYNC starts with %#02x, want %#02x", b[0], SyncByte)
	}
	if size := int(b[2])<<8 | int(b[3]); size != len(b) {
		return nil, errors.Wrapf(errors.ErrDomain, "frame: FRAMESIZE is %d, have %d bytes", size, len(b))
	}

	frame := NewFrame(WithLookup(d.Config))
	if err := field.Unmarshal(b, frame); err != nil {
		return nil, err
	}
	if TypeOf(frame) == Data {
		if _, ok := d.Config(IDCode(frame)); !ok {
			return nil, errors.Wrapf(errors.ErrDomain, "frame: data from IDCODE %d before its configuration", IDCode(frame))
		}
	}
	if err := frame.Get("chk").(*field.Checksum).Check(); err != nil {
		return frame, err
	}

	switch TypeOf(frame) {
	case Config1, Config2:
		cfg, err := ConfigOf(frame)
		if err != nil {
			return frame, err
		}
		d.SetConfig(IDCode(frame), cfg)
	}
	return frame, nil
}
