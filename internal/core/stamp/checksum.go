package stamp

import "encoding/binary"

const ipChecksumOffset = 10

// Checksum computes the Internet checksum of b: the one's complement of the
// one's-complement sum of its 16-bit big-endian words. A trailing odd byte
// is summed as the high byte of a word whose low byte is zero.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)&1 == 1 {
		sum += uint32(b[n]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// VerifyIPv4Header reports whether hdr, checksum field included, sums to
// 0xffff, i.e. the stored checksum is valid.
func VerifyIPv4Header(hdr []byte) bool {
	return len(hdr) >= ipChecksumOffset+2 && Checksum(hdr) == 0
}

// setIPv4Checksum zeroes the checksum field of hdr, recomputes it over the
// whole header and stores it big-endian.
func setIPv4Checksum(hdr []byte) {
	hdr[ipChecksumOffset] = 0
	hdr[ipChecksumOffset+1] = 0
	binary.BigEndian.PutUint16(hdr[ipChecksumOffset:], Checksum(hdr))
}
