package stamp

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/gtpstamp/internal/core"
)

// layout holds the absolute offsets of every field the injector and the
// repair stage touch. All offsets are validated against the logical length
// before any write.
type layout struct {
	ip       int // outer IPv4 header
	ipLen    int
	udp      int // outer UDP header
	gtp      int // GTP header
	inner    int // inner IPv4 header
	innerLen int
	count    int // trailer count byte
	end      int // logical end of the inner data, equal to the buffer length
}

// innerUDP returns the offset of the inner transport header. The inner
// transport is assumed to be UDP whatever the inner protocol field says.
func (l layout) innerUDP() int { return l.inner + l.innerLen }

// locateInner resolves the offsets of a packet already classified as
// TunneledFlagged, checking only that they lie within data.
func locateInner(data []byte, netOff int) (layout, error) {
	var l layout
	l.ip = netOff
	l.ipLen = int(data[netOff]&0x0f) * 4
	l.udp = l.ip + l.ipLen
	l.gtp = l.udp + core.UDPHeaderLen
	l.inner = l.gtp + core.GTPHeaderLen

	if len(data) < l.inner+core.IPv4MinHeaderLen {
		return l, fmt.Errorf("inner header truncated at %d of %d: %w", l.inner, len(data), core.ErrMalformedHeader)
	}
	l.innerLen = int(data[l.inner]&0x0f) * 4
	if l.innerLen < core.IPv4MinHeaderLen {
		return l, fmt.Errorf("inner header length %d: %w", l.innerLen, core.ErrMalformedHeader)
	}
	l.count = l.innerUDP() + core.UDPHeaderLen
	if l.count >= len(data) {
		return l, fmt.Errorf("count byte at %d outside %d bytes: %w", l.count, len(data), core.ErrMalformedHeader)
	}
	l.end = l.inner + int(binary.BigEndian.Uint16(data[l.inner+2:]))
	if l.end <= l.count || l.end > len(data) {
		return l, fmt.Errorf("inner total length ends at %d, count byte at %d, buffer %d: %w",
			l.end, l.count, len(data), core.ErrMalformedHeader)
	}
	return l, nil
}

// locate resolves and validates the layout of a flagged packet for
// injection. With strict set the declared GTP length and the count byte
// must also agree with the inner total length.
func locate(data []byte, netOff int, strict bool) (layout, error) {
	l, err := locateInner(data, netOff)
	if err != nil {
		return l, err
	}
	if l.end != len(data) {
		return l, fmt.Errorf("%d bytes follow the inner packet: %w", len(data)-l.end, core.ErrMalformedHeader)
	}
	outerTotal := int(binary.BigEndian.Uint16(data[l.ip+2:]))
	if outerTotal != len(data)-l.ip {
		return l, fmt.Errorf("outer total length %d, have %d: %w", outerTotal, len(data)-l.ip, core.ErrMalformedHeader)
	}
	if len(data)-l.ip+core.TrailerEntryLen > core.IPv4MaxTotalLen {
		return l, fmt.Errorf("no room for another entry in %d bytes: %w", len(data)-l.ip, core.ErrMalformedHeader)
	}
	count := int(data[l.count])
	if count == 0xff {
		return l, fmt.Errorf("entry count saturated: %w", core.ErrMalformedHeader)
	}
	if !strict {
		return l, nil
	}

	innerTotal := l.end - l.inner
	if gtpLen := int(binary.BigEndian.Uint16(data[l.gtp+2:])); gtpLen != innerTotal {
		return l, fmt.Errorf("gtp length %d, inner total length %d: %w", gtpLen, innerTotal, core.ErrMalformedHeader)
	}
	if want := l.innerLen + core.UDPHeaderLen + 1 + count*core.TrailerEntryLen; want != innerTotal {
		return l, fmt.Errorf("%d entries imply inner total length %d, header says %d: %w",
			count, want, innerTotal, core.ErrMalformedHeader)
	}
	return l, nil
}
