package modbus

import (
	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// Limits on the quantity of a single request.
const (
	MaxReadBits       = 2000
	MaxReadRegisters  = 125
	MaxWriteBits      = 1968
	MaxWriteRegisters = 123
)

// FunctionOf returns the function code of pdu, without the exception bit, and if pdu is an
// exception response.
func FunctionOf(pdu *field.Map) (Function, bool) {
	fc := Function(uintOf(pdu, "function"))
	return fc &^ ExceptionBit, fc&ExceptionBit != 0
}

// Body returns the body of pdu, or nil if none is selected.
func Body(pdu *field.Map) *field.Map {
	u, ok := pdu.Get("data").(*field.Union)
	if !ok {
		return nil
	}
	m, _ := u.Payload().(*field.Map)
	return m
}

// start creates a PDU of direction d for fc with its body selected and set to vals.
func start(d Direction, fc Function, vals map[string]any) (*field.Map, error) {
	pdu := NewPDU(d)
	if err := pdu.Get("function").SetValue(uint8(fc)); err != nil {
		return nil, err
	}
	if err := pdu.Get("data").(*field.Union).Choose(); err != nil {
		return nil, err
	}
	if vals == nil {
		return pdu, nil
	}
	if err := Body(pdu).SetValue(vals); err != nil {
		return nil, err
	}
	return pdu, nil
}

// ReadRequest creates a request to read quantity items starting at address, for ReadCoils,
// ReadDiscreteInputs, ReadHoldingRegisters or ReadInputRegisters.
func ReadRequest(fc Function, address, quantity uint16) (*field.Map, error) {
	limit := 0
	switch fc {
	case ReadCoils, ReadDiscreteInputs:
		limit = MaxReadBits
	case ReadHoldingRegisters, ReadInputRegisters:
		limit = MaxReadRegisters
	default:
		return nil, errors.Wrapf(errors.ErrDomain, "%s is not a read function", fc)
	}
	if quantity == 0 || int(quantity) > limit {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: quantity must be in [1, %d], was %d", fc, limit, quantity)
	}
	return start(Request, fc, map[string]any{"address": address, "quantity": quantity})
}

// ReadHoldingRegistersRequest creates a request to read quantity holding registers.
func ReadHoldingRegistersRequest(address, quantity uint16) (*field.Map, error) {
	return ReadRequest(ReadHoldingRegisters, address, quantity)
}

// ReadInputRegistersRequest creates a request to read quantity input registers.
func ReadInputRegistersRequest(address, quantity uint16) (*field.Map, error) {
	return ReadRequest(ReadInputRegisters, address, quantity)
}

// ReadCoilsRequest creates a request to read quantity coils.
func ReadCoilsRequest(address, quantity uint16) (*field.Map, error) {
	return ReadRequest(ReadCoils, address, quantity)
}

// WriteSingleRegisterRequest creates a request to write one holding register.
func WriteSingleRegisterRequest(address, value uint16) (*field.Map, error) {
	return start(Request, WriteSingleRegister, map[string]any{"address": address, "value": value})
}

// WriteSingleCoilRequest creates a request to switch one coil on or off.
func WriteSingleCoilRequest(address uint16, on bool) (*field.Map, error) {
	var v uint16
	if on {
		v = 0xFF00
	}
	return start(Request, WriteSingleCoil, map[string]any{"address": address, "value": v})
}

// WriteMultipleRegistersRequest creates a request to write values to consecutive holding
// registers starting at address.
func WriteMultipleRegistersRequest(address uint16, values []uint16) (*field.Map, error) {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: need [1, %d] registers, have %d", WriteMultipleRegisters, MaxWriteRegisters, len(values))
	}
	pdu, err := start(Request, WriteMultipleRegisters, map[string]any{"address": address, "quantity": len(values)})
	if err != nil {
		return nil, err
	}
	if err := setRegisters(Body(pdu), values); err != nil {
		return nil, err
	}
	return pdu, nil
}

// WriteMultipleCoilsRequest creates a request to set consecutive coils starting at address.
func WriteMultipleCoilsRequest(address uint16, coils []bool) (*field.Map, error) {
	if len(coils) == 0 || len(coils) > MaxWriteBits {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: need [1, %d] coils, have %d", WriteMultipleCoils, MaxWriteBits, len(coils))
	}
	pdu, err := start(Request, WriteMultipleCoils, map[string]any{"address": address, "quantity": len(coils)})
	if err != nil {
		return nil, err
	}
	if err := setStatus(Body(pdu), coils); err != nil {
		return nil, err
	}
	return pdu, nil
}

// ReadRegistersResponse creates the response to a ReadHoldingRegisters or ReadInputRegisters
// request.
func ReadRegistersResponse(fc Function, values []uint16) (*field.Map, error) {
	if fc != ReadHoldingRegisters && fc != ReadInputRegisters {
		return nil, errors.Wrapf(errors.ErrDomain, "%s does not return registers", fc)
	}
	if len(values) > MaxReadRegisters {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: %d registers is too many", fc, len(values))
	}
	pdu, err := start(Response, fc, nil)
	if err != nil {
		return nil, err
	}
	if err := setRegisters(Body(pdu), values); err != nil {
		return nil, err
	}
	return pdu, nil
}

// ReadBitsResponse creates the response to a ReadCoils or ReadDiscreteInputs request.
func ReadBitsResponse(fc Function, status []bool) (*field.Map, error) {
	if fc != ReadCoils && fc != ReadDiscreteInputs {
		return nil, errors.Wrapf(errors.ErrDomain, "%s does not return bits", fc)
	}
	pdu, err := start(Response, fc, nil)
	if err != nil {
		return nil, err
	}
	if err := setStatus(Body(pdu), status); err != nil {
		return nil, err
	}
	return pdu, nil
}

// ExceptionResponse creates an exception response to a request for fc.
func ExceptionResponse(fc Function, code Exception) (*field.Map, error) {
	return start(Response, fc|ExceptionBit, map[string]any{"code": uint8(code)})
}

func setRegisters(body *field.Map, values []uint16) error {
	regs := body.Get("registers").(*field.Array)
	regs.Resize(len(values))
	for i, v := range values {
		if err := regs.At(i).SetValue(v); err != nil {
			return err
		}
	}
	return regs.SyncCount()
}

// setStatus packs status into bytes, the first item in the low bit of the first byte.
func setStatus(body *field.Map, status []bool) error {
	packed := make([]byte, (len(status)+7)/8)
	for i, on := range status {
		packed[i/8] = bits.SetBit(packed[i/8], uint8(i%8), on)
	}
	o := body.Get("status").(*field.Octets)
	if err := o.SetValue(packed); err != nil {
		return err
	}
	return o.SyncCount()
}

// Registers returns the register values of a read registers response or a write multiple
// registers request.
func Registers(pdu *field.Map) ([]uint16, error) {
	if err := exceptionErr(pdu); err != nil {
		return nil, err
	}
	body := Body(pdu)
	if body == nil {
		return nil, errors.Wrapf(errors.ErrNoSuchField, "pdu has no body")
	}
	regs, ok := body.Get("registers").(*field.Array)
	if !ok {
		fc, _ := FunctionOf(pdu)
		return nil, errors.Wrapf(errors.ErrNoSuchField, "%s %s has no registers", fc, body.Name())
	}
	out := make([]uint16, 0, regs.Len())
	for _, f := range regs.Children() {
		out = append(out, uint16(f.(field.Integer).Uint64()))
	}
	return out, nil
}

// Status returns the first n bits of a read bits response or write multiple coils request.
// If n is larger than the bits sent, all of them are returned.
func Status(pdu *field.Map, n int) ([]bool, error) {
	if err := exceptionErr(pdu); err != nil {
		return nil, err
	}
	body := Body(pdu)
	if body == nil {
		return nil, errors.Wrapf(errors.ErrNoSuchField, "pdu has no body")
	}
	o, ok := body.Get("status").(*field.Octets)
	if !ok {
		fc, _ := FunctionOf(pdu)
		return nil, errors.Wrapf(errors.ErrNoSuchField, "%s %s has no status", fc, body.Name())
	}
	data := o.Data()
	if max := len(data) * 8; n > max {
		n = max
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = bits.GetBit(data[i/8], uint8(i%8))
	}
	return out, nil
}

// ExceptionOf returns the exception code of an exception response.
func ExceptionOf(pdu *field.Map) (Exception, bool) {
	if _, exc := FunctionOf(pdu); !exc {
		return 0, false
	}
	body := Body(pdu)
	if body == nil {
		return 0, false
	}
	return Exception(uintOf(body, "code")), true
}

func exceptionErr(pdu *field.Map) error {
	if code, ok := ExceptionOf(pdu); ok {
		return code
	}
	return nil
}
