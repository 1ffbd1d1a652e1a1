// Package modbustcp is a Modbus TCP client. Requests and responses are the PDU trees built by
// package modbus, so anything the client sends or receives can be printed, walked or encoded to
// JSON like any other field.
package modbustcp

import (
	"io"
	"net"
	"time"

	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/retry/exponential"
	"github.com/gostdlib/base/telemetry/otel/trace/span"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
	"github.com/bearlytools/bitcodec/protocols/modbus"
)

// Common errors.
var (
	ErrClosed       = errors.New("client closed")
	ErrNotConnected = errors.New("not connected")
)

// Client sends requests to one Modbus TCP server. Requests are serialized, a Client has at most
// one outstanding transaction.
type Client struct {
	addr    string
	config  *config
	backoff *exponential.Backoff

	duration metric.Float64Histogram
	requests metric.Int64Counter

	// Protected by mu.
	mu          sync.Mutex
	conn        net.Conn
	closed      bool
	transaction uint16
}

// Dial connects to the Modbus server at addr, in the form "host:port".
//
// Example:
//
//	client, err := modbustcp.Dial(ctx, "10.0.0.7:502", modbustcp.WithUnit(3))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	regs, err := client.ReadHoldingRegisters(ctx, 0, 10)
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	backoff, err := exponential.New(exponential.WithPolicy(cfg.retryPolicy))
	if err != nil {
		return nil, errors.E(ctx, errors.CatUser, errors.TypeParameter, err)
	}

	c := &Client{
		addr:    addr,
		config:  cfg,
		backoff: backoff,
	}
	if err := c.initMetrics(ctx); err != nil {
		return nil, errors.E(ctx, errors.CatInternal, errors.TypeUnknown, err)
	}

	if err := c.connect(ctx); err != nil {
		return nil, errors.E(ctx, errors.CatInternal, errors.TypeConn, err)
	}
	return c, nil
}

func (c *Client) initMetrics(ctx context.Context) error {
	var meter metric.Meter
	if c.config.meterProvider != nil {
		meter = c.config.meterProvider.Meter("bitcodec-modbus")
	} else {
		meter = context.Meter(ctx)
	}

	var err error
	c.duration, err = meter.Float64Histogram(
		"modbus.client.duration",
		metric.WithDescription("Duration of Modbus client transactions in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	c.requests, err = meter.Int64Counter(
		"modbus.client.requests",
		metric.WithDescription("Total number of Modbus client requests"),
	)
	return err
}

// connect dials the server, replacing any current connection.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cleanupLocked()
	c.mu.Unlock()

	dialer := &net.Dialer{
		Timeout:   c.config.dialTimeout,
		KeepAlive: c.config.keepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Closed while dialing.
	if c.closed {
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.config.log.Debug().Str("addr", c.addr).Msg("modbus connected")
	return nil
}

// cleanupLocked closes the current connection. Must hold c.mu.
func (c *Client) cleanupLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Reconnect drops the current connection and dials again, retrying with the client's retry
// policy until ctx is done.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	return c.backoff.Retry(ctx, func(retryCtx context.Context, r exponential.Record) error {
		err := c.connect(retryCtx)
		if err != nil {
			c.config.log.Warn().Err(err).Str("addr", c.addr).Msg("modbus reconnect failed")
		}
		return err
	})
}

// Close closes the connection. A closed Client can't be used again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cleanupLocked()
	return nil
}

// Do sends the request pdu and returns the response PDU. pdu becomes part of the request frame
// and can't be sent again. An exception response is returned as a PDU, not an error; use
// modbus.ExceptionOf() or the typed helpers.
//
// If ctx has a deadline, it bounds the whole transaction. An I/O error drops the connection, call
// Reconnect() to restore it.
func (c *Client) Do(ctx context.Context, pdu *field.Map) (*field.Map, error) {
	fc, _ := modbus.FunctionOf(pdu)
	start := time.Now()

	if c.config.tracing {
		var sp span.Span
		ctx, sp = span.New(ctx,
			span.WithName("modbus/"+fc.String()),
			span.WithSpanStartOption(trace.WithSpanKind(trace.SpanKindClient)),
		)
		defer sp.End()

		sp.Span.SetAttributes(
			attribute.String("modbus.function", fc.String()),
			attribute.Int("modbus.unit", int(c.config.unit)),
			attribute.String("server.address", c.addr),
		)
	}

	resp, err := c.roundTrip(ctx, fc, pdu)

	status := "ok"
	switch {
	case err != nil:
		status = "error"
	default:
		if _, exc := modbus.FunctionOf(resp); exc {
			status = "exception"
		}
	}
	attrs := metric.WithAttributes(
		attribute.String("modbus_function", fc.String()),
		attribute.String("modbus_status", status),
	)
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	c.requests.Add(ctx, 1, attrs)

	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, fc modbus.Function, pdu *field.Map) (*field.Map, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	c.transaction++
	tid := c.transaction
	req, err := modbus.EncodeTCP(tid, c.config.unit, pdu)
	if err != nil {
		cat, typ := errors.Classify(err)
		return nil, errors.E(ctx, cat, typ, err)
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.ioErrLocked(ctx, err)
	}
	if _, err := c.conn.Write(req); err != nil {
		return nil, c.ioErrLocked(ctx, err)
	}

	for {
		b, err := c.readFrameLocked()
		if err != nil {
			return nil, c.ioErrLocked(ctx, err)
		}
		frame, err := modbus.DecodeTCP(b, modbus.Response)
		if err != nil {
			// The stream can't be trusted after a bad frame.
			c.cleanupLocked()
			cat, typ := errors.Classify(err)
			return nil, errors.E(ctx, cat, typ, err)
		}
		if got := uint16(frame.Get("transaction").(field.Integer).Uint64()); got != tid {
			// A late answer to a request that timed out.
			c.config.log.Debug().Uint16("want", tid).Uint16("got", got).Msg("discarding modbus response")
			continue
		}

		resp := modbus.PDU(frame)
		if got, _ := modbus.FunctionOf(resp); got != fc {
			return nil, errors.E(ctx, errors.CatUser, errors.TypeDomain, errors.Wrapf(errors.ErrDomain, "sent %s, response is for %s", fc, got))
		}
		return resp, nil
	}
}

// readFrameLocked reads one MBAP frame. Must hold c.mu.
func (c *Client) readFrameLocked() ([]byte, error) {
	b := make([]byte, modbus.MaxADULen)
	if _, err := io.ReadFull(c.conn, b[:6]); err != nil {
		return nil, err
	}
	n, err := modbus.FrameLength(b[:6])
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(c.conn, b[6:n]); err != nil {
		return nil, err
	}
	return b[:n], nil
}

// ioErrLocked drops the connection and classifies err. Must hold c.mu.
func (c *Client) ioErrLocked(ctx context.Context, err error) error {
	c.cleanupLocked()

	typ := errors.TypeConn
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		typ = errors.TypeTimeout
	}
	if errors.Is(err, errors.ErrDomain) {
		return errors.E(ctx, errors.CatUser, errors.TypeFormat, err)
	}
	return errors.E(ctx, errors.CatInternal, typ, err)
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, modbus.ReadHoldingRegisters, address, quantity)
}

// ReadInputRegisters reads quantity input registers starting at address.
func (c *Client) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	return c.readRegisters(ctx, modbus.ReadInputRegisters, address, quantity)
}

func (c *Client) readRegisters(ctx context.Context, fc modbus.Function, address, quantity uint16) ([]uint16, error) {
	req, err := modbus.ReadRequest(fc, address, quantity)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	regs, err := modbus.Registers(resp)
	if err != nil {
		return nil, err
	}
	if len(regs) != int(quantity) {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: asked for %d registers, got %d", fc, quantity, len(regs))
	}
	return regs, nil
}

// ReadCoils reads quantity coils starting at address.
func (c *Client) ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, modbus.ReadCoils, address, quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (c *Client) ReadDiscreteInputs(ctx context.Context, address, quantity uint16) ([]bool, error) {
	return c.readBits(ctx, modbus.ReadDiscreteInputs, address, quantity)
}

func (c *Client) readBits(ctx context.Context, fc modbus.Function, address, quantity uint16) ([]bool, error) {
	req, err := modbus.ReadRequest(fc, address, quantity)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	status, err := modbus.Status(resp, int(quantity))
	if err != nil {
		return nil, err
	}
	if len(status) != int(quantity) {
		return nil, errors.Wrapf(errors.ErrDomain, "%s: asked for %d bits, got %d", fc, quantity, len(status))
	}
	return status, nil
}

// WriteSingleRegister sets the holding register at address to value.
func (c *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	return c.write(ctx)(modbus.WriteSingleRegisterRequest(address, value))
}

// WriteSingleCoil turns the coil at address on or off.
func (c *Client) WriteSingleCoil(ctx context.Context, address uint16, on bool) error {
	return c.write(ctx)(modbus.WriteSingleCoilRequest(address, on))
}

// WriteMultipleRegisters sets the holding registers starting at address to values.
func (c *Client) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	return c.write(ctx)(modbus.WriteMultipleRegistersRequest(address, values))
}

// WriteMultipleCoils sets the coils starting at address.
func (c *Client) WriteMultipleCoils(ctx context.Context, address uint16, coils []bool) error {
	return c.write(ctx)(modbus.WriteMultipleCoilsRequest(address, coils))
}

// write returns a func that sends the request a builder returned. Write responses echo the
// request, so only exceptions are of interest.
func (c *Client) write(ctx context.Context) func(*field.Map, error) error {
	return func(req *field.Map, err error) error {
		if err != nil {
			return err
		}
		resp, err := c.Do(ctx, req)
		if err != nil {
			return err
		}
		if code, ok := modbus.ExceptionOf(resp); ok {
			return code
		}
		return nil
	}
}
