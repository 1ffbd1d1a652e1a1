/*
Package modbus describes Modbus application data units with field trees.

A PDU is a function code followed by a body chosen by that code. Request and response bodies
differ for the same code, so a PDU is created for one Direction. A PDU travels inside an RTU
frame (serial lines, CRC-16/MODBUS protected) or a TCP frame (MBAP header).

Building a request:

	pdu, err := modbus.ReadHoldingRegistersRequest(0x006B, 3)
	if err != nil {
		// Do something
	}
	b, err := modbus.EncodeTCP(1, 0x11, pdu)

Decoding a response:

	frame, err := modbus.DecodeRTU(b, modbus.Response)
	if err != nil {
		// Do something
	}
	regs, err := modbus.Registers(modbus.PDU(frame))
*/
package modbus

import (
	"fmt"

	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// Function is a Modbus function code.
type Function uint8

const (
	ReadCoils              Function = 0x01
	ReadDiscreteInputs     Function = 0x02
	ReadHoldingRegisters   Function = 0x03
	ReadInputRegisters     Function = 0x04
	WriteSingleCoil        Function = 0x05
	WriteSingleRegister    Function = 0x06
	WriteMultipleCoils     Function = 0x0F
	WriteMultipleRegisters Function = 0x10
)

// ExceptionBit is set in the function code of an exception response.
const ExceptionBit = 0x80

// String implements fmt.Stringer.
func (f Function) String() string {
	if e, ok := FunctionCodes.ByValue(uint64(f)); ok {
		return e.Name()
	}
	if f&ExceptionBit != 0 {
		return fmt.Sprintf("Exception(%s)", f&^ExceptionBit)
	}
	return fmt.Sprintf("Function(%#02x)", uint8(f))
}

// FunctionCodes names the supported function codes.
var FunctionCodes = enums.NewGroup(
	"FunctionCode",
	enums.Value{Name: "ReadCoils", Number: uint64(ReadCoils)},
	enums.Value{Name: "ReadDiscreteInputs", Number: uint64(ReadDiscreteInputs)},
	enums.Value{Name: "ReadHoldingRegisters", Number: uint64(ReadHoldingRegisters)},
	enums.Value{Name: "ReadInputRegisters", Number: uint64(ReadInputRegisters)},
	enums.Value{Name: "WriteSingleCoil", Number: uint64(WriteSingleCoil)},
	enums.Value{Name: "WriteSingleRegister", Number: uint64(WriteSingleRegister)},
	enums.Value{Name: "WriteMultipleCoils", Number: uint64(WriteMultipleCoils)},
	enums.Value{Name: "WriteMultipleRegisters", Number: uint64(WriteMultipleRegisters)},
)

// Exception is a Modbus exception code.
type Exception uint8

const (
	IllegalFunction                    Exception = 0x01
	IllegalDataAddress                 Exception = 0x02
	IllegalDataValue                   Exception = 0x03
	ServerDeviceFailure                Exception = 0x04
	Acknowledge                        Exception = 0x05
	ServerDeviceBusy                   Exception = 0x06
	MemoryParityError                  Exception = 0x08
	GatewayPathUnavailable             Exception = 0x0A
	GatewayTargetDeviceFailedToRespond Exception = 0x0B
)

// String implements fmt.Stringer.
func (e Exception) String() string {
	if v, ok := ExceptionCodes.ByValue(uint64(e)); ok {
		return v.Name()
	}
	return fmt.Sprintf("Exception(%#02x)", uint8(e))
}

// Error implements error, so an exception response can be returned as one.
func (e Exception) Error() string {
	return "modbus exception: " + e.String()
}

// ExceptionCodes names the exception codes.
var ExceptionCodes = enums.NewGroup(
	"ExceptionCode",
	enums.Value{Name: "IllegalFunction", Number: uint64(IllegalFunction)},
	enums.Value{Name: "IllegalDataAddress", Number: uint64(IllegalDataAddress)},
	enums.Value{Name: "IllegalDataValue", Number: uint64(IllegalDataValue)},
	enums.Value{Name: "ServerDeviceFailure", Number: uint64(ServerDeviceFailure)},
	enums.Value{Name: "Acknowledge", Number: uint64(Acknowledge)},
	enums.Value{Name: "ServerDeviceBusy", Number: uint64(ServerDeviceBusy)},
	enums.Value{Name: "MemoryParityError", Number: uint64(MemoryParityError)},
	enums.Value{Name: "GatewayPathUnavailable", Number: uint64(GatewayPathUnavailable)},
	enums.Value{Name: "GatewayTargetDeviceFailedToRespond", Number: uint64(GatewayTargetDeviceFailedToRespond)},
)

// Direction says if a PDU is a request or a response.
type Direction uint8

const (
	Request  Direction = 0
	Response Direction = 1
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// NewRequestPDU creates an empty request PDU. Setting "function" and calling Choose() on "data"
// selects the body, as parsing does.
func NewRequestPDU() *field.Map {
	return newPDU(Request)
}

// NewResponsePDU creates an empty response PDU.
func NewResponsePDU() *field.Map {
	return newPDU(Response)
}

// NewPDU creates an empty PDU for d.
func NewPDU(d Direction) *field.Map {
	return newPDU(d)
}

func newPDU(d Direction) *field.Map {
	return field.NewMap("pdu", field.WithChildren(
		field.NewEnum("function", FunctionCodes, 8),
		field.NewUnion("data", field.ByName("function"), chooser(d)),
	))
}

func chooser(d Direction) field.Chooser {
	return func(tag field.Field) (field.Field, error) {
		i, ok := tag.(field.Integer)
		if !ok {
			return nil, errors.Wrapf(errors.ErrType, "function code is %T", tag)
		}
		fc := Function(i.Uint64())

		if d == Response && fc&ExceptionBit != 0 {
			return exceptionBody(), nil
		}
		switch fc {
		case ReadCoils, ReadDiscreteInputs:
			if d == Request {
				return rangeBody(), nil
			}
			return bitsBody(), nil
		case ReadHoldingRegisters, ReadInputRegisters:
			if d == Request {
				return rangeBody(), nil
			}
			return registersBody(), nil
		case WriteSingleCoil, WriteSingleRegister:
			return valueBody(), nil
		case WriteMultipleCoils:
			if d == Request {
				return writeBitsBody(), nil
			}
			return rangeBody(), nil
		case WriteMultipleRegisters:
			if d == Request {
				return writeRegistersBody(), nil
			}
			return rangeBody(), nil
		}
		return nil, errors.Wrapf(errors.ErrNotImplemented, "function code %#02x", uint8(fc))
	}
}

func u16(name string) field.Field {
	return field.NewUint(name, 16, field.WithFormat("%#04x"))
}

func register(int) field.Field {
	return field.NewUint("", 16)
}

// rangeBody is an address and a quantity. Used by read requests and write responses.
func rangeBody() field.Field {
	return field.NewMap("range", field.WithChildren(
		u16("address"),
		field.NewUint("quantity", 16),
	))
}

// valueBody is an address and a value. Used by single writes in both directions.
func valueBody() field.Field {
	return field.NewMap("write", field.WithChildren(
		u16("address"),
		u16("value"),
	))
}

func bitsBody() field.Field {
	return field.NewMap("read_bits", field.WithChildren(
		field.NewUint("byte_count", 8),
		field.NewOctetsRef("status", field.ByName("byte_count")),
	))
}

func registersBody() field.Field {
	return field.NewMap("read_registers", field.WithChildren(
		field.NewUint("byte_count", 8),
		field.NewArray("registers", field.ByName("byte_count"), register, field.ByteCount()),
	))
}

func writeBitsBody() field.Field {
	return field.NewMap("write_bits", field.WithChildren(
		u16("address"),
		field.NewUint("quantity", 16),
		field.NewUint("byte_count", 8),
		field.NewOctetsRef("status", field.ByName("byte_count")),
	))
}

func writeRegistersBody() field.Field {
	return field.NewMap("write_registers", field.WithChildren(
		u16("address"),
		field.NewUint("quantity", 16),
		field.NewUint("byte_count", 8),
		field.NewArray("registers", field.ByName("byte_count"), register, field.ByteCount()),
	))
}

func exceptionBody() field.Field {
	return field.NewMap("exception", field.WithChildren(
		field.NewEnum("code", ExceptionCodes, 8),
	))
}
