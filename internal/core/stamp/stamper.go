// Package stamp tags flagged GTP-U packets with latency trailer entries.
//
// A packet travels Classify → prepare → inject → repair → verdict. Packets
// that are not flagged GTP-U leave untouched with Accept. Only a buffer that
// cannot be made contiguous or grown yields Drop.
package stamp

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"firestige.xyz/gtpstamp/internal/core"
	"firestige.xyz/gtpstamp/internal/core/buffer"
	"firestige.xyz/gtpstamp/internal/log"
)

// Buffer stages reported to Observer.BufferFailed.
const (
	StageLinearize = "linearize"
	StageExtend    = "extend"
)

// Observer receives per-packet outcomes. Implementations must be safe for
// concurrent use.
type Observer interface {
	Classified(class core.Class)
	Stamped(count uint8)
	Malformed(err error)
	BufferFailed(stage string, err error)
}

type nopObserver struct{}

func (nopObserver) Classified(core.Class)       {}
func (nopObserver) Stamped(uint8)               {}
func (nopObserver) Malformed(error)             {}
func (nopObserver) BufferFailed(string, error) {}

// Options configures a Stamper.
type Options struct {
	NodeID         uint8
	Clock          Clock            // nil means WallClock
	TimestampOrder binary.ByteOrder // nil means little-endian
	StrictLength   bool
	Observer       Observer

	// WarnPerSource caps drop warnings per outer source address and buffer
	// stage within WarnWindow. Zero logs every drop.
	WarnPerSource int
	WarnWindow    time.Duration
}

// Stamper is immutable after New and safe for concurrent use. Every call
// to Process owns its buffer exclusively and shares nothing else.
type Stamper struct {
	nodeID uint8
	clock  Clock
	order  binary.ByteOrder
	strict bool
	obs    Observer
	warn   *warnLimiter
}

// New creates a Stamper.
func New(opts Options) *Stamper {
	s := &Stamper{
		nodeID: opts.NodeID,
		clock:  opts.Clock,
		order:  opts.TimestampOrder,
		strict: opts.StrictLength,
		obs:    opts.Observer,
		warn:   newWarnLimiter(opts.WarnPerSource, opts.WarnWindow),
	}
	if s.clock == nil {
		s.clock = WallClock
	}
	if s.order == nil {
		s.order = binary.LittleEndian
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	return s
}

// NodeID returns the node identifier written into each entry.
func (s *Stamper) NodeID() uint8 { return s.nodeID }

// TimestampOrder returns the byte order of entry timestamps.
func (s *Stamper) TimestampOrder() binary.ByteOrder { return s.order }

// Result describes what Process did to one packet.
type Result struct {
	Class    core.Class
	Verdict  core.Verdict
	Modified bool
	Count    uint8 // entries after injection, zero when not modified
}

// Process runs one packet through the stamper. netOff is the number of
// bytes preceding the outer IPv4 header. The verdict in Result is the
// contract; the error only explains a Drop (core.ErrBuffer) or a
// pass-through of a flagged packet (core.ErrMalformedHeader).
func (s *Stamper) Process(buf buffer.Buffer, netOff int) (Result, error) {
	res := Result{Class: core.NotTunneled, Verdict: core.Accept}

	// The tunnel test needs the outer IPv4 and UDP headers in one piece.
	if !buf.Linear() && !headersInHead(buf.Head(), netOff) {
		if err := prepare(buf); err != nil {
			return s.dropLinearize(buf, netOff, err)
		}
	}

	if !isTunneled(buf.Head(), buf.Len(), netOff) {
		s.obs.Classified(res.Class)
		return res, nil
	}

	if err := prepare(buf); err != nil {
		return s.dropLinearize(buf, netOff, err)
	}

	data := buf.Bytes()
	res.Class = Classify(data, netOff)
	s.obs.Classified(res.Class)
	if res.Class != core.TunneledFlagged {
		return res, nil
	}

	l, err := locate(data, netOff, s.strict)
	if err != nil {
		s.obs.Malformed(err)
		log.GetLogger().WithError(err).Debug("pass flagged packet through untouched")
		return res, err
	}

	count, err := s.inject(buf, l)
	if err != nil {
		res.Verdict = core.Drop
		s.obs.BufferFailed(StageExtend, err)
		s.warnDrop(buf.Bytes(), netOff, StageExtend, err, "drop packet: cannot grow buffer")
		return res, err
	}
	repair(buf.Bytes(), l)

	res.Modified = true
	res.Count = count
	s.obs.Stamped(count)
	return res, nil
}

func (s *Stamper) dropLinearize(buf buffer.Buffer, netOff int, err error) (Result, error) {
	res := Result{Class: Classify(buf.Head(), netOff), Verdict: core.Drop}
	s.obs.Classified(res.Class)
	s.obs.BufferFailed(StageLinearize, err)
	s.warnDrop(buf.Head(), netOff, StageLinearize, err, "drop packet: cannot linearize")
	return res, err
}

// headersInHead reports whether view holds the whole outer IPv4 header and
// the outer UDP header. A view too short to tell reports false.
func headersInHead(view []byte, netOff int) bool {
	if netOff < 0 || len(view) < netOff+core.IPv4MinHeaderLen {
		return false
	}
	ihl := int(view[netOff]&0x0f) * 4
	return len(view) >= netOff+ihl+core.UDPHeaderLen
}

func (s *Stamper) warnDrop(view []byte, netOff int, stage string, err error, msg string) {
	var src [4]byte
	if netOff >= 0 && len(view) >= netOff+16 {
		copy(src[:], view[netOff+12:netOff+16])
	}
	ok, swallowed := s.warn.Allow(warnKey{src: src, stage: stage}, time.Now())
	logger := log.GetLogger()
	if swallowed > 0 {
		logger.WithField("suppressed", swallowed).Warn("drop warnings suppressed in the last window")
	}
	if !ok {
		return
	}
	logger.WithError(err).WithField("src", net.IP(src[:]).String()).WithField("stage", stage).Warn(msg)
}

// SuppressedWarnings returns how many drop warnings the per-source cap
// has swallowed.
func (s *Stamper) SuppressedWarnings() int64 { return s.warn.Suppressed() }

// prepare makes buf contiguous. It never changes the content.
func prepare(buf buffer.Buffer) error {
	if buf.Linear() {
		return nil
	}
	if err := buf.Linearize(); err != nil {
		return fmt.Errorf("linearize %d bytes: %w", buf.Len(), err)
	}
	return nil
}

// ParseByteOrder maps "little" or "big" to a binary.ByteOrder.
func ParseByteOrder(name string) (binary.ByteOrder, error) {
	switch strings.ToLower(name) {
	case "little", "le":
		return binary.LittleEndian, nil
	case "big", "be", "network":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q (must be little or big): %w", name, core.ErrConfigInvalid)
	}
}
