package stamp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gtpstamp/internal/core"
)

// gtpPacket describes a test packet:
// | prefix | outer IPv4 | outer UDP | GTP | inner IPv4 | inner UDP | count | entries |
type gtpPacket struct {
	prefix       []byte
	srcPort      uint16
	dstPort      uint16
	gtpFlags     byte
	innerOptions []layers.IPv4Option
	innerV6      bool
	entries      []Entry
	order        binary.ByteOrder
}

func defaultPacket() gtpPacket {
	return gtpPacket{
		srcPort:  core.TunnelPort,
		dstPort:  core.TunnelPort,
		gtpFlags: 0x01,
	}
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func (p gtpPacket) trailer() []byte {
	order := p.order
	if order == nil {
		order = binary.LittleEndian
	}
	b := []byte{byte(len(p.entries))}
	for _, e := range p.entries {
		var ts [8]byte
		order.PutUint64(ts[:], e.Millis)
		b = append(b, e.NodeID)
		b = append(b, ts[:]...)
	}
	return b
}

func (p gtpPacket) inner(t *testing.T) []byte {
	if p.innerV6 {
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      net.ParseIP("2001:db8::1"),
			DstIP:      net.ParseIP("2001:db8::2"),
		}
		udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
		return serialize(t, ip, udp, gopacket.Payload(p.trailer()))
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Id:       0x1234,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{172, 16, 0, 1},
		DstIP:    net.IP{172, 16, 0, 2},
		Options:  p.innerOptions,
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(p.trailer()))
}

func (p gtpPacket) build(t *testing.T) []byte {
	t.Helper()
	inner := p.inner(t)

	gtp := make([]byte, core.GTPHeaderLen, core.GTPHeaderLen+len(inner))
	gtp[0] = p.gtpFlags
	gtp[1] = 0xff // G-PDU
	binary.BigEndian.PutUint16(gtp[2:4], uint16(len(inner)))
	binary.BigEndian.PutUint32(gtp[4:8], 0xCAFE0001)
	gtp = append(gtp, inner...)

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(p.srcPort), DstPort: layers.UDPPort(p.dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	outer := serialize(t, ip, udp, gopacket.Payload(gtp))

	return append(append([]byte(nil), p.prefix...), outer...)
}

// offsets of the default packet (no prefix, 20-byte headers)
const (
	offOuterTotal = 2
	offOuterUDP   = 20
	offGTP        = 28
	offInner      = 36
	offInnerUDP   = 56
	offCount      = 64
)

func decodeIPv4(t *testing.T, b []byte) *layers.IPv4 {
	t.Helper()
	var ip layers.IPv4
	require.NoError(t, ip.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
	return &ip
}

func be16(b []byte, off int) int { return int(binary.BigEndian.Uint16(b[off:])) }

func fixedClock(ms uint64) Clock {
	return ClockFunc(func() uint64 { return ms })
}
