package field

import (
	"fmt"

	"github.com/snksoft/crc"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
)

// CRC parameters in the Rocksoft model for common checksums.
var (
	// CRC8 is CRC-8/SMBUS.
	CRC8 = &crc.Parameters{Width: 8, Polynomial: 0x07, Init: 0x00, FinalXor: 0x00}
	// CRC16Modbus is CRC-16/MODBUS.
	CRC16Modbus = &crc.Parameters{Width: 16, Polynomial: 0x8005, ReflectIn: true, ReflectOut: true, Init: 0xFFFF, FinalXor: 0x0000}
	// CRC16CCITTFalse is CRC-16/CCITT-FALSE, used by IEEE C37.118.
	CRC16CCITTFalse = &crc.Parameters{Width: 16, Polynomial: 0x1021, Init: 0xFFFF, FinalXor: 0x0000}
	// CRC16XModem is CRC-16/XMODEM.
	CRC16XModem = &crc.Parameters{Width: 16, Polynomial: 0x1021, Init: 0x0000, FinalXor: 0x0000}
	// CRC16Kermit is CRC-16/KERMIT.
	CRC16Kermit = &crc.Parameters{Width: 16, Polynomial: 0x1021, ReflectIn: true, ReflectOut: true, Init: 0x0000, FinalXor: 0x0000}
	// CRC32 is the CRC-32 used by Ethernet, gzip and zip.
	CRC32 = &crc.Parameters{Width: 32, Polynomial: 0x04C11DB7, ReflectIn: true, ReflectOut: true, Init: 0xFFFFFFFF, FinalXor: 0xFFFFFFFF}
)

// Checksum is an unsigned integer holding a CRC. Its value is a uint64.
// The CRC is only computed or checked when Update() or Verify() is called.
type Checksum struct {
	Uint
	params *crc.Parameters
}

// NewChecksum creates a Checksum as wide as params.Width.
func NewChecksum(name string, params *crc.Parameters, opts ...Option) *Checksum {
	if params == nil {
		panic("field.NewChecksum(): params cannot be nil")
	}
	n := int(params.Width)
	checkWidth("Checksum", n, 1, 64)
	o := newOptions(opts)
	c := &Checksum{params: params}
	c.initUint(c, name, n, o)
	applyDefault(c, o)
	return c
}

// Params returns the CRC parameters.
func (c *Checksum) Params() *crc.Parameters {
	return c.params
}

// Compute returns the CRC of data.
func (c *Checksum) Compute(data []byte) uint64 {
	return crc.CalculateCRC(c.params, data)
}

// Covered returns the bytes the checksum covers: the emitted bits of every sibling, in order.
func (c *Checksum) Covered() ([]byte, error) {
	p := c.Parent()
	if p == nil {
		return nil, errors.Wrapf(errors.ErrNoSuchField, "%s: checksum has no parent", Path(c.me()))
	}
	var bufs []bits.Buffer
	for _, f := range p.Children() {
		if f == Field(c) {
			continue
		}
		bufs = append(bufs, f.Bits())
	}
	return bits.Join(bufs...).Bytes(), nil
}

// Update stores the CRC of data. If data is nil, the CRC of Covered() is stored.
func (c *Checksum) Update(data []byte) error {
	if data == nil {
		var err error
		if data, err = c.Covered(); err != nil {
			return err
		}
	}
	return c.SetUint64(c.Compute(data))
}

// Verify reports if the stored CRC matches Covered(). The field is not changed.
func (c *Checksum) Verify() (bool, error) {
	data, err := c.Covered()
	if err != nil {
		return false, err
	}
	return c.Compute(data) == c.Uint64(), nil
}

// Check is Verify() returning ErrChecksum on a mismatch.
func (c *Checksum) Check() error {
	ok, err := c.Verify()
	if err != nil {
		return err
	}
	if !ok {
		data, _ := c.Covered()
		return errors.Wrapf(errors.ErrChecksum, "%s: stored %s, computed %s", Path(c.me()), c.HexString(), fmt.Sprintf("%#x", c.Compute(data)))
	}
	return nil
}
