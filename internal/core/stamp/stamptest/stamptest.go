// Package stamptest builds GTP-U packets for tests.
package stamptest

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"firestige.xyz/gtpstamp/internal/core"
)

// GTPU returns an outer IPv4/UDP/GTP-U packet carrying an inner IPv4/UDP
// datagram whose payload is a zero entry count. flags is GTP byte 0.
func GTPU(t testing.TB, flags byte) []byte {
	t.Helper()

	innerIP := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{172, 16, 0, 1},
		DstIP:    net.IP{172, 16, 0, 2},
	}
	innerUDP := &layers.UDP{SrcPort: 5000, DstPort: 6000}
	require.NoError(t, innerUDP.SetNetworkLayerForChecksum(innerIP))
	inner := serialize(t, innerIP, innerUDP, gopacket.Payload{0})

	gtp := make([]byte, core.GTPHeaderLen, core.GTPHeaderLen+len(inner))
	gtp[0] = flags
	gtp[1] = 0xff
	binary.BigEndian.PutUint16(gtp[2:4], uint16(len(inner)))
	binary.BigEndian.PutUint32(gtp[4:8], 0x00000001)
	gtp = append(gtp, inner...)

	return UDP(t, core.TunnelPort, gtp)
}

// UDP returns an IPv4/UDP packet to port with the given payload.
func UDP(t testing.TB, port uint16, payload []byte) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(port), DstPort: layers.UDPPort(port)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}
