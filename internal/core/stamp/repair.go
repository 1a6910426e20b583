package stamp

import (
	"encoding/binary"

	"firestige.xyz/gtpstamp/internal/core"
)

const entryLen = core.TrailerEntryLen

// repair brings every length field and IPv4 checksum back in line with the
// grown buffer. The steps run in order: GTP length, inner IPv4 length and
// checksum, inner UDP length, then the outer IPv4 and UDP headers. Neither
// UDP checksum is recomputed.
func repair(data []byte, l layout) {
	addUint16(data[l.gtp+2:], entryLen)

	addUint16(data[l.inner+2:], entryLen)
	setIPv4Checksum(data[l.inner : l.inner+l.innerLen])

	addUint16(data[l.innerUDP()+4:], entryLen)

	total := len(data) - l.ip
	binary.BigEndian.PutUint16(data[l.ip+2:], uint16(total))
	setIPv4Checksum(data[l.ip : l.ip+l.ipLen])
	binary.BigEndian.PutUint16(data[l.udp+4:], uint16(total-l.ipLen))
}

// addUint16 adds delta to the big-endian 16-bit field at b[0:2].
func addUint16(b []byte, delta int) {
	binary.BigEndian.PutUint16(b, binary.BigEndian.Uint16(b)+uint16(delta))
}
