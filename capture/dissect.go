package capture

import (
	"net/netip"
	"time"

	"github.com/bearlytools/bitcodec/bits"
	"github.com/bearlytools/bitcodec/enums"
	"github.com/bearlytools/bitcodec/errors"
	"github.com/bearlytools/bitcodec/field"
)

// Frame is the transport payload of one packet.
type Frame struct {
	Time time.Time
	Src  netip.AddrPort
	Dst  netip.AddrPort
	// Proto is "tcp" or "udp".
	Proto   string
	Payload []byte
}

const (
	etherIPv4  = 0x0800
	etherVLAN  = 0x8100
	etherQinQ  = 0x88A8
	protoTCP   = 6
	protoUDP   = 17
	ipv4MinLen = 20
	tcpMinLen  = 20
)

// TCPFlags names the bits of the TCP flags field.
var TCPFlags = enums.NewGroup(
	"TCPFlags",
	enums.Value{Name: "FIN", Number: 0x001},
	enums.Value{Name: "SYN", Number: 0x002},
	enums.Value{Name: "RST", Number: 0x004},
	enums.Value{Name: "PSH", Number: 0x008},
	enums.Value{Name: "ACK", Number: 0x010},
	enums.Value{Name: "URG", Number: 0x020},
	enums.Value{Name: "ECE", Number: 0x040},
	enums.Value{Name: "CWR", Number: 0x080},
	enums.Value{Name: "NS", Number: 0x100},
)

// EthernetHeader describes an Ethernet II header.
func EthernetHeader() *field.Map {
	return field.NewMap("ethernet", field.WithChildren(
		field.NewOctets("dst", 6),
		field.NewOctets("src", 6),
		field.NewUint("ethertype", 16, field.WithFormat("%#04x")),
	))
}

// VLANTag describes an 802.1Q tag that follows an ethertype of 0x8100.
func VLANTag() *field.Map {
	return field.NewMap("vlan", field.WithChildren(
		field.NewUint("pcp", 3),
		field.NewBool("dei"),
		field.NewUint("vid", 12),
		field.NewUint("ethertype", 16, field.WithFormat("%#04x")),
	))
}

// IPv4Header describes an IPv4 header with its options.
func IPv4Header() *field.Map {
	return field.NewMap("ipv4", field.WithChildren(
		field.NewUint("version", 4),
		field.NewUint("ihl", 4),
		field.NewUint("dscp", 6),
		field.NewUint("ecn", 2),
		field.NewUint("total_length", 16),
		field.NewUint("id", 16),
		field.NewUint("flags", 3),
		field.NewUint("fragment_offset", 13),
		field.NewUint("ttl", 8),
		field.NewUint("protocol", 8),
		field.NewUint("checksum", 16, field.WithFormat("%#04x")),
		field.NewOctets("src", 4),
		field.NewOctets("dst", 4),
		field.NewOctetsRef("options", field.Ref{}, field.WithCountFunc(optionLen("ihl", ipv4MinLen))),
	))
}

// TCPHeader describes a TCP header with its options.
func TCPHeader() *field.Map {
	return field.NewMap("tcp", field.WithChildren(
		field.NewUint("src_port", 16),
		field.NewUint("dst_port", 16),
		field.NewUint("seq", 32),
		field.NewUint("ack", 32),
		field.NewUint("data_offset", 4),
		field.NewUint("reserved", 3),
		field.NewFlags("flags", TCPFlags, 9),
		field.NewUint("window", 16),
		field.NewUint("checksum", 16, field.WithFormat("%#04x")),
		field.NewUint("urgent", 16),
		field.NewOctetsRef("options", field.Ref{}, field.WithCountFunc(optionLen("data_offset", tcpMinLen))),
	))
}

// UDPHeader describes a UDP header.
func UDPHeader() *field.Map {
	return field.NewMap("udp", field.WithChildren(
		field.NewUint("src_port", 16),
		field.NewUint("dst_port", 16),
		field.NewUint("length", 16),
		field.NewUint("checksum", 16, field.WithFormat("%#04x")),
	))
}

// optionLen counts the option bytes of a header whose length in 32 bit words is the sibling
// name.
func optionLen(name string, min int) field.CountFunc {
	return func(parent field.Container) (int, error) {
		words, ok := parent.Get(name).(field.Integer)
		if !ok {
			return 0, errors.Wrapf(errors.ErrNoSuchField, "%s not found", name)
		}
		return int(words.Uint64())*4 - min, nil
	}
}

// dissector holds the header trees, which are reparsed for every packet.
type dissector struct {
	eth, vlan, ip, tcp, udp *field.Map
}

func newDissector() *dissector {
	return &dissector{
		eth:  EthernetHeader(),
		vlan: VLANTag(),
		ip:   IPv4Header(),
		tcp:  TCPHeader(),
		udp:  UDPHeader(),
	}
}

// Dissect returns the TCP or UDP payload of a packet of link type link. ok is false if the
// packet is not IPv4 carrying TCP or UDP, or is a fragment.
func Dissect(link uint32, data []byte) (f Frame, ok bool, err error) {
	return newDissector().dissect(link, data)
}

func (d *dissector) dissect(link uint32, data []byte) (Frame, bool, error) {
	in := bits.FromBytes(data)

	switch link {
	case LinkEthernet:
		var err error
		if in, err = d.eth.Parse(in); err != nil {
			return Frame{}, false, err
		}
		etype := uintOf(d.eth, "ethertype")
		for etype == etherVLAN || etype == etherQinQ {
			if in, err = d.vlan.Parse(in); err != nil {
				return Frame{}, false, err
			}
			etype = uintOf(d.vlan, "ethertype")
		}
		if etype != etherIPv4 {
			return Frame{}, false, nil
		}
	case LinkRaw, LinkIPv4:
		if len(data) == 0 || data[0]>>4 != 4 {
			return Frame{}, false, nil
		}
	default:
		return Frame{}, false, errors.Wrapf(errors.ErrNotImplemented, "link type %d", link)
	}

	ipLen := in.Len() / 8
	in, err := d.ip.Parse(in)
	if err != nil {
		return Frame{}, false, err
	}
	if v := uintOf(d.ip, "version"); v != 4 {
		return Frame{}, false, errors.Wrapf(errors.ErrDomain, "ipv4: version %d", v)
	}
	hdrLen := int(uintOf(d.ip, "ihl")) * 4
	if hdrLen < ipv4MinLen {
		return Frame{}, false, errors.Wrapf(errors.ErrDomain, "ipv4: header length %d", hdrLen)
	}
	total := int(uintOf(d.ip, "total_length"))
	if total < hdrLen || total > ipLen {
		return Frame{}, false, errors.Wrapf(errors.ErrDomain, "ipv4: total length %d, have %d bytes", total, ipLen)
	}
	// More fragments or a non-zero offset.
	if uintOf(d.ip, "flags")&1 == 1 || uintOf(d.ip, "fragment_offset") != 0 {
		return Frame{}, false, nil
	}
	// Drop link layer padding.
	body := in.Take((total - hdrLen) * 8)

	src := netip.AddrFrom4([4]byte(d.ip.Get("src").(*field.Octets).Data()))
	dst := netip.AddrFrom4([4]byte(d.ip.Get("dst").(*field.Octets).Data()))

	var (
		hdr   *field.Map
		proto string
	)
	switch uintOf(d.ip, "protocol") {
	case protoTCP:
		hdr, proto = d.tcp, "tcp"
	case protoUDP:
		hdr, proto = d.udp, "udp"
	default:
		return Frame{}, false, nil
	}
	rest, err := hdr.Parse(body)
	if err != nil {
		return Frame{}, false, err
	}
	payload := rest.Bytes()
	switch proto {
	case "tcp":
		if off := int(uintOf(hdr, "data_offset")) * 4; off < tcpMinLen {
			return Frame{}, false, errors.Wrapf(errors.ErrDomain, "tcp: data offset %d", off)
		}
	case "udp":
		n := int(uintOf(hdr, "length")) - 8
		if n < 0 || n > len(payload) {
			return Frame{}, false, errors.Wrapf(errors.ErrDomain, "udp: length %d, have %d bytes", n+8, len(payload)+8)
		}
		payload = payload[:n]
	}

	return Frame{
		Src:     netip.AddrPortFrom(src, uint16(uintOf(hdr, "src_port"))),
		Dst:     netip.AddrPortFrom(dst, uint16(uintOf(hdr, "dst_port"))),
		Proto:   proto,
		Payload: payload,
	}, true, nil
}

func uintOf(m *field.Map, name string) uint64 {
	if i, ok := m.Get(name).(field.Integer); ok {
		return i.Uint64()
	}
	return 0
}
