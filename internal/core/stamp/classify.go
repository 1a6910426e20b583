package stamp

import (
	"encoding/binary"

	"firestige.xyz/gtpstamp/internal/core"
)

const gtpFlagBit = 0x01

// IsTunneled reports whether the IPv4 packet starting at view[netOff] is a
// UDP datagram with a non-empty payload whose source or destination port is
// the GTP-U port.
func IsTunneled(view []byte, netOff int) bool {
	return isTunneled(view, len(view), netOff)
}

// isTunneled reads headers from view but judges the payload size against
// total, the logical length of a possibly scattered packet.
func isTunneled(view []byte, total, netOff int) bool {
	if netOff < 0 || len(view) < netOff+core.IPv4MinHeaderLen {
		return false
	}
	ip := view[netOff:]
	if ip[0]>>4 != 4 || ip[9] != core.ProtocolUDP {
		return false
	}
	ihl := int(ip[0]&0x0f) * 4
	if ihl < core.IPv4MinHeaderLen {
		return false
	}
	if total-netOff-ihl-core.UDPHeaderLen <= 0 || len(ip) < ihl+core.UDPHeaderLen {
		return false
	}
	udp := ip[ihl:]
	return binary.BigEndian.Uint16(udp[0:2]) == core.TunnelPort ||
		binary.BigEndian.Uint16(udp[2:4]) == core.TunnelPort
}

// Classify decides whether a packet is tunneled and, if so, whether the
// tunnel carries the diagnostic flag: inner IP version 4 and bit 0 of the
// GTP flag byte set. Bytes needed by the flag test but missing from view
// make the packet TunneledNoFlag. Classify never writes.
func Classify(view []byte, netOff int) core.Class {
	if !IsTunneled(view, netOff) {
		return core.NotTunneled
	}
	gtp := netOff + int(view[netOff]&0x0f)*4 + core.UDPHeaderLen
	inner := gtp + core.GTPHeaderLen
	if len(view) <= inner {
		return core.TunneledNoFlag
	}
	if view[inner]>>4 != 4 || view[gtp]&gtpFlagBit == 0 {
		return core.TunneledNoFlag
	}
	return core.TunneledFlagged
}
