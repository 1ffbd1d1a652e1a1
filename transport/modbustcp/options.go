package modbustcp

import (
	"time"

	"github.com/gostdlib/base/retry/exponential"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// config holds configuration for a Client.
type config struct {
	// Retry policy for reconnection.
	retryPolicy exponential.Policy

	// Dial timeout for connection establishment.
	dialTimeout time.Duration

	// KeepAlive period for the connection. Zero means keep-alives are disabled.
	keepAlive time.Duration

	// Unit identifier sent in every request.
	unit uint8

	// MeterProvider for metrics. If nil, the meter in the Context is used.
	meterProvider metric.MeterProvider

	// tracing starts a client span for every request.
	tracing bool

	log zerolog.Logger
}

func defaultConfig() *config {
	return &config{
		retryPolicy: exponential.FastRetryPolicy(),
		dialTimeout: 10 * time.Second,
		keepAlive:   30 * time.Second,
		unit:        1,
		tracing:     true,
		log:         zerolog.Nop(),
	}
}

// Option configures a Client.
type Option func(*config)

// WithRetryPolicy sets the retry policy for Reconnect().
// If not set, exponential.FastRetryPolicy() is used.
func WithRetryPolicy(policy exponential.Policy) Option {
	return func(c *config) {
		c.retryPolicy = policy
	}
}

// WithDialTimeout sets the timeout for connection establishment.
// Default is 10 seconds.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = timeout
	}
}

// WithKeepAlive sets the keep-alive period. Default is 30 seconds. Set to zero to disable.
func WithKeepAlive(d time.Duration) Option {
	return func(c *config) {
		c.keepAlive = d
	}
}

// WithUnit sets the unit identifier of requests. Default is 1. Gateways use it to address a
// serial device behind them.
func WithUnit(unit uint8) Option {
	return func(c *config) {
		c.unit = unit
	}
}

// WithMeterProvider sets the provider of the client's meter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

// WithTracing turns request spans on or off. Default is on.
func WithTracing(on bool) Option {
	return func(c *config) {
		c.tracing = on
	}
}

// WithLogger sets the logger for connection events. The default discards logs.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.log = l
	}
}

// SlowRetryPolicy returns a slower retry policy suitable for devices on unreliable links.
func SlowRetryPolicy() exponential.Policy {
	return exponential.SecondsRetryPolicy()
}
