package modbustcp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"golang.org/x/net/nettest"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
	"github.com/bearlytools/bitcodec/protocols/modbus"
)

// device is a fake Modbus server with ten holding registers and sixteen coils.
type device struct {
	mu    sync.Mutex
	regs  [10]uint16
	coils [16]bool
	units []uint8

	// stale sends an answer with the previous transaction id before the real one.
	stale bool
	// silent drops requests without answering.
	silent bool
}

func newDevice() *device {
	d := &device{}
	for i := range d.regs {
		d.regs[i] = uint16(100 + i)
	}
	d.coils[0], d.coils[3], d.coils[9] = true, true, true
	return d
}

// serve starts a listener for d and returns its address.
func (d *device) serve(t *testing.T) string {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("nettest.NewLocalListener: %s", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.conn(conn)
		}
	}()
	return ln.Addr().String()
}

func (d *device) conn(conn net.Conn) {
	defer conn.Close()
	for {
		hdr := make([]byte, 6)
		if _, err := io.ReadFull(conn, hdr); err != nil {
			return
		}
		n, err := modbus.FrameLength(hdr)
		if err != nil {
			return
		}
		b := append(hdr, make([]byte, n-6)...)
		if _, err := io.ReadFull(conn, b[6:]); err != nil {
			return
		}
		for _, out := range d.answer(b) {
			if _, err := conn.Write(out); err != nil {
				return
			}
		}
	}
}

func (d *device) answer(req []byte) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame, err := modbus.DecodeTCP(req, modbus.Request)
	if err != nil {
		panic(err)
	}
	tid := uint16(frame.Get("transaction").(field.Integer).Uint64())
	unit := uint8(frame.Get("unit").(field.Integer).Uint64())
	d.units = append(d.units, unit)
	if d.silent {
		return nil
	}

	pdu := modbus.PDU(frame)
	fc, _ := modbus.FunctionOf(pdu)
	body := modbus.Body(pdu)
	addr := int(body.Get("address").(field.Integer).Uint64())

	var resp *field.Map
	switch fc {
	case modbus.ReadHoldingRegisters:
		qty := int(body.Get("quantity").(field.Integer).Uint64())
		if addr+qty > len(d.regs) {
			resp, err = modbus.ExceptionResponse(fc, modbus.IllegalDataAddress)
			break
		}
		resp, err = modbus.ReadRegistersResponse(fc, d.regs[addr:addr+qty])
	case modbus.ReadCoils:
		qty := int(body.Get("quantity").(field.Integer).Uint64())
		resp, err = modbus.ReadBitsResponse(fc, d.coils[addr:addr+qty])
	case modbus.WriteSingleRegister:
		d.regs[addr] = uint16(body.Get("value").(field.Integer).Uint64())
		// The response echoes the request.
		return [][]byte{req}
	case modbus.WriteMultipleRegisters:
		regs, err := modbus.Registers(pdu)
		if err != nil {
			panic(err)
		}
		copy(d.regs[addr:], regs)
		return [][]byte{mbap(tid, unit, append([]byte{byte(fc)}, req[8:12]...))}
	default:
		resp, err = modbus.ExceptionResponse(fc, modbus.IllegalFunction)
	}
	if err != nil {
		panic(err)
	}

	out, err := modbus.EncodeTCP(tid, unit, resp)
	if err != nil {
		panic(err)
	}
	if !d.stale {
		return [][]byte{out}
	}
	old := append([]byte{}, out...)
	old[0], old[1] = byte((tid-1)>>8), byte(tid-1)
	return [][]byte{old, out}
}

func mbap(tid uint16, unit uint8, pdu []byte) []byte {
	l := len(pdu) + 1
	b := []byte{byte(tid >> 8), byte(tid), 0, 0, byte(l >> 8), byte(l), unit}
	return append(b, pdu...)
}

func (d *device) registers() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16{}, d.regs[:]...)
}

func TestReadHoldingRegisters(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestReadHoldingRegisters: Dial() got err == %s", err)
	}
	defer c.Close()

	tests := []struct {
		desc     string
		address  uint16
		quantity uint16
		want     []uint16
		wantExc  modbus.Exception
		wantErr  bool
	}{
		{
			desc:     "Success: three registers",
			address:  2,
			quantity: 3,
			want:     []uint16{102, 103, 104},
		},
		{
			desc:     "Success: every register",
			address:  0,
			quantity: 10,
			want:     []uint16{100, 101, 102, 103, 104, 105, 106, 107, 108, 109},
		},
		{
			desc:     "Error: exception response",
			address:  8,
			quantity: 5,
			wantExc:  modbus.IllegalDataAddress,
			wantErr:  true,
		},
		{
			desc:     "Error: zero quantity is not sent",
			address:  0,
			quantity: 0,
			wantErr:  true,
		},
	}

	for _, test := range tests {
		got, err := c.ReadHoldingRegisters(ctx, test.address, test.quantity)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("[TestReadHoldingRegisters](%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("[TestReadHoldingRegisters](%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			if test.wantExc != 0 {
				var exc modbus.Exception
				if !errors.As(err, &exc) || exc != test.wantExc {
					t.Errorf("[TestReadHoldingRegisters](%s): got err == %v, want %s", test.desc, err, test.wantExc)
				}
			}
			continue
		}

		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("[TestReadHoldingRegisters](%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestUnit(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	c, err := Dial(ctx, d.serve(t), WithUnit(17))
	if err != nil {
		t.Fatalf("TestUnit: Dial() got err == %s", err)
	}
	defer c.Close()

	if _, err := c.ReadHoldingRegisters(ctx, 0, 1); err != nil {
		t.Fatalf("TestUnit: got err == %s", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if diff := cmp.Diff([]uint8{17}, d.units); diff != "" {
		t.Errorf("TestUnit: units -want/+got:\n%s", diff)
	}
}

func TestReadCoils(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestReadCoils: Dial() got err == %s", err)
	}
	defer c.Close()

	got, err := c.ReadCoils(ctx, 0, 10)
	if err != nil {
		t.Fatalf("TestReadCoils: got err == %s", err)
	}
	want := []bool{true, false, false, true, false, false, false, false, false, true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TestReadCoils: -want/+got:\n%s", diff)
	}
}

func TestWrites(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestWrites: Dial() got err == %s", err)
	}
	defer c.Close()

	if err := c.WriteSingleRegister(ctx, 1, 0xBEEF); err != nil {
		t.Fatalf("TestWrites: WriteSingleRegister() got err == %s", err)
	}
	if err := c.WriteMultipleRegisters(ctx, 7, []uint16{1, 2, 3}); err != nil {
		t.Fatalf("TestWrites: WriteMultipleRegisters() got err == %s", err)
	}

	want := []uint16{100, 0xBEEF, 102, 103, 104, 105, 106, 1, 2, 3}
	if diff := cmp.Diff(want, d.registers()); diff != "" {
		t.Errorf("TestWrites: device registers -want/+got:\n%s", diff)
	}

	got, err := c.ReadHoldingRegisters(ctx, 0, 10)
	if err != nil {
		t.Fatalf("TestWrites: ReadHoldingRegisters() got err == %s", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TestWrites: read back -want/+got:\n%s", diff)
	}

	// The fake device answers unknown functions with an exception.
	err = c.WriteSingleCoil(ctx, 0, true)
	var exc modbus.Exception
	if !errors.As(err, &exc) || exc != modbus.IllegalFunction {
		t.Errorf("TestWrites: WriteSingleCoil() got err == %v, want %s", err, modbus.IllegalFunction)
	}
}

func TestStaleResponse(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	d.stale = true
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestStaleResponse: Dial() got err == %s", err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		got, err := c.ReadHoldingRegisters(ctx, uint16(i), 1)
		if err != nil {
			t.Fatalf("TestStaleResponse: request %d got err == %s", i, err)
		}
		if got[0] != uint16(100+i) {
			t.Errorf("TestStaleResponse: request %d got %d, want %d", i, got[0], 100+i)
		}
	}
}

func TestTimeoutAndReconnect(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	d.silent = true
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestTimeoutAndReconnect: Dial() got err == %s", err)
	}
	defer c.Close()

	tctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := c.ReadHoldingRegisters(tctx, 0, 1); err == nil {
		t.Fatalf("TestTimeoutAndReconnect: got err == nil, want timeout")
	}

	if _, err := c.ReadHoldingRegisters(ctx, 0, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("TestTimeoutAndReconnect: after timeout got err == %v, want ErrNotConnected", err)
	}

	d.mu.Lock()
	d.silent = false
	d.mu.Unlock()

	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("TestTimeoutAndReconnect: Reconnect() got err == %s", err)
	}
	got, err := c.ReadHoldingRegisters(ctx, 4, 1)
	if err != nil {
		t.Fatalf("TestTimeoutAndReconnect: after Reconnect() got err == %s", err)
	}
	if got[0] != 104 {
		t.Errorf("TestTimeoutAndReconnect: got %d, want 104", got[0])
	}
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	d := newDevice()
	c, err := Dial(ctx, d.serve(t))
	if err != nil {
		t.Fatalf("TestClosed: Dial() got err == %s", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("TestClosed: Close() got err == %s", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("TestClosed: second Close() got err == %s", err)
	}
	if _, err := c.ReadHoldingRegisters(ctx, 0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("TestClosed: got err == %v, want ErrClosed", err)
	}
	if err := c.Reconnect(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("TestClosed: Reconnect() got err == %v, want ErrClosed", err)
	}
}

func TestDialError(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("nettest.NewLocalListener: %s", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(context.Background(), addr, WithDialTimeout(time.Second)); err == nil {
		t.Errorf("TestDialError: got err == nil, want err != nil")
	}
}
