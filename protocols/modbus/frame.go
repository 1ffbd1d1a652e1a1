package modbus

import (
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// MBAPLen is the size of the MBAP header of a TCP frame.
const MBAPLen = 7

// MaxADULen is the largest Modbus frame, RTU or TCP.
const MaxADULen = 260

// NewRTUFrame creates a serial line frame around pdu: a one byte address, the pdu and a
// little endian CRC-16/MODBUS over both. The CRC is not computed until Seal() is called.
func NewRTUFrame(pdu *field.Map) *field.Map {
	return field.NewMap("rtu", field.WithChildren(
		field.NewUint("address", 8),
		pdu,
		field.NewChecksum("crc", field.CRC16Modbus, field.WithEndian(field.Little), field.WithFormat("%#04x")),
	))
}

// NewTCPFrame creates a Modbus TCP frame around pdu. The MBAP length is not set until
// SyncLength() is called.
func NewTCPFrame(pdu *field.Map) *field.Map {
	return field.NewMap("tcp", field.WithChildren(
		field.NewUint("transaction", 16),
		field.NewUint("protocol", 16),
		field.NewUint("length", 16),
		field.NewUint("unit", 8),
		pdu,
	))
}

// PDU returns the PDU of an RTU or TCP frame.
func PDU(frame *field.Map) *field.Map {
	m, _ := frame.Get("pdu").(*field.Map)
	return m
}

// Seal stores the CRC of an RTU frame.
func Seal(frame *field.Map) error {
	c, ok := frame.Get("crc").(*field.Checksum)
	if !ok {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: not an RTU frame", frame.Name())
	}
	return c.Update(nil)
}

// SyncLength stores the number of bytes following the MBAP length field in a TCP frame.
func SyncLength(frame *field.Map) error {
	l := frame.Get("length")
	if l == nil {
		return errors.Wrapf(errors.ErrNoSuchField, "%s: not a TCP frame", frame.Name())
	}
	n := 0
	for _, name := range []string{"unit", "pdu"} {
		f := frame.Get(name)
		if f == nil {
			return errors.Wrapf(errors.ErrNoSuchField, "%s: no %s", frame.Name(), name)
		}
		n += (f.BitCount() + 7) / 8
	}
	return l.SetValue(n)
}

// EncodeRTU wraps pdu in an RTU frame for the device at address and returns the frame's bytes.
// pdu is attached to the frame and can't be reused in another frame.
func EncodeRTU(address uint8, pdu *field.Map) ([]byte, error) {
	frame := NewRTUFrame(pdu)
	if err := frame.Get("address").SetValue(address); err != nil {
		return nil, err
	}
	if err := Seal(frame); err != nil {
		return nil, err
	}
	return frame.Bytes(), nil
}

// DecodeRTU parses an RTU frame holding a PDU of direction d and checks its CRC.
// On ErrChecksum the parsed frame is still returned.
func DecodeRTU(b []byte, d Direction) (*field.Map, error) {
	frame := NewRTUFrame(NewPDU(d))
	if err := field.Unmarshal(b, frame); err != nil {
		return nil, err
	}
	if err := frame.Get("crc").(*field.Checksum).Check(); err != nil {
		return frame, err
	}
	return frame, nil
}

// EncodeTCP wraps pdu in a TCP frame and returns the frame's bytes.
// pdu is attached to the frame and can't be reused in another frame.
func EncodeTCP(transaction uint16, unit uint8, pdu *field.Map) ([]byte, error) {
	frame := NewTCPFrame(pdu)
	vals := map[string]any{
		"transaction": transaction,
		"unit":        unit,
	}
	if err := frame.SetValue(vals); err != nil {
		return nil, err
	}
	if err := SyncLength(frame); err != nil {
		return nil, err
	}
	return frame.Bytes(), nil
}

// DecodeTCP parses a TCP frame holding a PDU of direction d. The protocol identifier must be 0
// and the MBAP length must match the frame.
func DecodeTCP(b []byte, d Direction) (*field.Map, error) {
	frame := NewTCPFrame(NewPDU(d))
	if err := field.Unmarshal(b, frame); err != nil {
		return nil, err
	}
	if p := uintOf(frame, "protocol"); p != 0 {
		return frame, errors.Wrapf(errors.ErrDomain, "tcp.protocol: %d is not Modbus", p)
	}
	if l := uintOf(frame, "length"); int(l) != len(b)-6 {
		return frame, errors.Wrapf(errors.ErrDomain, "tcp.length: %d, but %d bytes follow", l, len(b)-6)
	}
	return frame, nil
}

// FrameLength returns the size of a TCP frame from its first 6 bytes, so a reader knows how much
// more to read.
func FrameLength(header []byte) (int, error) {
	if len(header) < 6 {
		return 0, errors.Wrapf(errors.ErrInsufficientData, "MBAP: need 6 bytes, have %d", len(header))
	}
	l := int(header[4])<<8 | int(header[5])
	if l < 2 || 6+l > MaxADULen {
		return 0, errors.Wrapf(errors.ErrDomain, "MBAP: bad length %d", l)
	}
	return 6 + l, nil
}

func uintOf(c field.Container, name string) uint64 {
	if i, ok := c.Get(name).(field.Integer); ok {
		return i.Uint64()
	}
	return 0
}
