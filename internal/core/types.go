// Package core defines core types with zero external dependencies.
package core

// Wire layout constants.
const (
	// TunnelPort is the GTP-U UDP port. On the wire it reads 0x08 0x68.
	TunnelPort uint16 = 2152

	IPv4MinHeaderLen = 20
	IPv4MaxTotalLen  = 65535
	UDPHeaderLen     = 8
	GTPHeaderLen     = 8

	// TrailerEntryLen is one trailer entry: node id (1) + timestamp (8).
	TrailerEntryLen = 9

	ProtocolUDP = 17
)

// Class is the classifier's decision for one packet.
type Class uint8

const (
	NotTunneled Class = iota
	TunneledNoFlag
	TunneledFlagged
)

func (c Class) String() string {
	switch c {
	case NotTunneled:
		return "not_tunneled"
	case TunneledNoFlag:
		return "tunneled_no_flag"
	case TunneledFlagged:
		return "tunneled_flagged"
	default:
		return "unknown"
	}
}

// Verdict is returned to the interception point, exactly once per packet.
type Verdict uint8

const (
	// Accept continues normal processing, possibly with mutated content.
	Accept Verdict = iota
	// Drop discards the packet.
	Drop
)

func (v Verdict) String() string {
	if v == Drop {
		return "drop"
	}
	return "accept"
}
