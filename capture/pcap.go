// Package capture reads classic pcap files and yields the TCP and UDP payloads they carry, so
// recorded industrial traffic can be decoded with the protocol packages.
//
// Files ending in a registered Compressor extension (.gz, .zst and .sz by default) are
// decompressed before reading. IP fragments are not reassembled and TCP segments are not joined
// into streams: each segment's payload is one Frame.
package capture

import (
	"io"
	"io/fs"
	"iter"
	"time"

	"github.com/gostdlib/base/context"
	"github.com/rs/zerolog"

	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
	"github.com/bearlytools/bitcodec/internal/binary"
)

// Link types this package can dissect.
const (
	LinkEthernet uint32 = 1
	LinkRaw      uint32 = 101
	LinkIPv4     uint32 = 228
)

const (
	magicMicro uint32 = 0xa1b2c3d4
	magicNano  uint32 = 0xa1b23c4d

	globalHeaderLen = 24
	recordHeaderLen = 16
)

// Packet is one captured packet.
type Packet struct {
	// Time is when the packet was captured.
	Time time.Time
	// Data is the captured bytes, which may be shorter than the packet.
	Data []byte
	// OrigLen is the length of the packet on the wire.
	OrigLen int
}

// Option is an optional argument for NewReader() and Open().
type Option func(r *Reader)

// WithLogger sets the logger used to report skipped packets. The default discards logs.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = l
	}
}

// WithPort only yields frames whose source or destination port is p. A negative p matches any
// port, which is the default.
func WithPort(p int) Option {
	return func(r *Reader) {
		r.port = p
	}
}

// Reader reads packets from a pcap file held in memory. A Reader is not safe for concurrent use.
type Reader struct {
	data   []byte
	off    int
	endian field.Endian
	nano   bool
	link   uint32
	snap   uint32

	port int
	log  zerolog.Logger
	dis  *dissector
}

// Open reads the pcap file name from fsys, decompressing it if its extension has a registered
// Compressor.
func Open(ctx context.Context, fsys fs.FS, name string, options ...Option) (*Reader, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.E(ctx, errors.CatUser, errors.TypeFS, err)
	}
	b, err = Decompress(name, b)
	if err != nil {
		return nil, errors.E(ctx, errors.CatUser, errors.TypeFormat, err)
	}
	r, err := NewReader(b, options...)
	if err != nil {
		cat, typ := errors.Classify(err)
		return nil, errors.E(ctx, cat, typ, errors.Wrapf(err, "%s", name))
	}
	return r, nil
}

// globalHeader describes the pcap file header in byte order e. Each child carries e, as a Map's
// endian does not reach its children.
func globalHeader(e field.Endian) *field.Map {
	order := field.WithEndian(e)
	return field.NewMap(
		"pcap",
		order,
		field.WithChildren(
			field.NewUint("magic", 32, order, field.WithFormat("%#x")),
			field.NewUint("version_major", 16, order),
			field.NewUint("version_minor", 16, order),
			field.NewInt("thiszone", 32, order),
			field.NewUint("sigfigs", 32, order),
			field.NewUint("snaplen", 32, order),
			field.NewUint("network", 32, order),
		),
	)
}

// NewReader reads the pcap file in data.
func NewReader(data []byte, options ...Option) (*Reader, error) {
	if len(data) < globalHeaderLen {
		return nil, errors.Wrapf(errors.ErrInsufficientData, "pcap: header needs %d bytes, have %d", globalHeaderLen, len(data))
	}

	r := &Reader{data: data, off: globalHeaderLen, port: -1, log: zerolog.Nop(), dis: newDissector()}
	for _, o := range options {
		o(r)
	}

	switch binary.Get[uint32](data, field.Big) {
	case magicMicro:
		r.endian = field.Big
	case magicNano:
		r.endian, r.nano = field.Big, true
	default:
		switch binary.Get[uint32](data, field.Little) {
		case magicMicro:
			r.endian = field.Little
		case magicNano:
			r.endian, r.nano = field.Little, true
		default:
			return nil, errors.Wrapf(errors.ErrDomain, "pcap: bad magic %#x", data[:4])
		}
	}

	hdr := globalHeader(r.endian)
	if _, err := field.Decode(hdr, data[:globalHeaderLen]); err != nil {
		return nil, err
	}
	if major := hdr.Get("version_major").(field.Integer).Uint64(); major != 2 {
		return nil, errors.Wrapf(errors.ErrDomain, "pcap: version %d is not supported", major)
	}
	r.snap = uint32(hdr.Get("snaplen").(field.Integer).Uint64())
	r.link = uint32(hdr.Get("network").(field.Integer).Uint64())
	switch r.link {
	case LinkEthernet, LinkRaw, LinkIPv4:
	default:
		return nil, errors.Wrapf(errors.ErrNotImplemented, "pcap: link type %d", r.link)
	}
	return r, nil
}

// LinkType is the link type of every packet in the file.
func (r *Reader) LinkType() uint32 {
	return r.link
}

// Nanosecond reports if timestamps have nanosecond resolution.
func (r *Reader) Nanosecond() bool {
	return r.nano
}

// Next returns the next packet, or io.EOF after the last one.
func (r *Reader) Next() (Packet, error) {
	if r.off == len(r.data) {
		return Packet{}, io.EOF
	}
	rest := r.data[r.off:]
	if len(rest) < recordHeaderLen {
		return Packet{}, errors.Wrapf(errors.ErrInsufficientData, "pcap: record header at offset %d is truncated", r.off)
	}

	sec := binary.Get[uint32](rest[0:4], r.endian)
	frac := binary.Get[uint32](rest[4:8], r.endian)
	incl := int(binary.Get[uint32](rest[8:12], r.endian))
	orig := int(binary.Get[uint32](rest[12:16], r.endian))
	if len(rest)-recordHeaderLen < incl {
		return Packet{}, errors.Wrapf(errors.ErrInsufficientData, "pcap: record at offset %d holds %d bytes, have %d", r.off, incl, len(rest)-recordHeaderLen)
	}

	nsec := int64(frac)
	if !r.nano {
		nsec *= 1000
	}
	p := Packet{
		Time:    time.Unix(int64(sec), nsec).UTC(),
		Data:    rest[recordHeaderLen : recordHeaderLen+incl],
		OrigLen: orig,
	}
	r.off += recordHeaderLen + incl
	return p, nil
}

// NextFrame returns the next TCP or UDP payload matching the port filter, or io.EOF. Packets
// without a payload, of other protocols, or that can't be dissected are skipped.
func (r *Reader) NextFrame(ctx context.Context) (Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		p, err := r.Next()
		if err != nil {
			return Frame{}, err
		}
		f, ok, err := r.dis.dissect(r.link, p.Data)
		if err != nil {
			r.log.Warn().Err(err).Time("time", p.Time).Msg("skipping packet")
			continue
		}
		if !ok || len(f.Payload) == 0 {
			continue
		}
		if r.port >= 0 && int(f.Src.Port()) != r.port && int(f.Dst.Port()) != r.port {
			continue
		}
		f.Time = p.Time
		return f, nil
	}
}

// Frames iterates over the frames NextFrame() returns. Iteration stops after the first error
// other than io.EOF, which is yielded.
func (r *Reader) Frames(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := r.NextFrame(ctx)
			if err == io.EOF {
				return
			}
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}
