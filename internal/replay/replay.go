// Package replay runs the stamper over a pcap capture offline.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/gtpstamp/internal/core"
	"firestige.xyz/gtpstamp/internal/core/buffer"
	"firestige.xyz/gtpstamp/internal/core/stamp"
	"firestige.xyz/gtpstamp/internal/log"
)

// Stats summarizes one replay.
type Stats struct {
	Packets   int // records read
	Written   int // records written
	NonIPv4   int // no IPv4 header found, copied unchanged
	Truncated int // captured shorter than on the wire, copied unchanged
	Tunneled  int
	Flagged   int
	Stamped   int
	Malformed int
	Dropped   int
}

// Run reads classic pcap records from r, stamps them with st and writes
// every accepted record to w. Dropped records are not written. Capture
// timestamps are kept at the input's resolution; lengths follow the
// modified data.
func Run(ctx context.Context, r io.Reader, w io.Writer, st *stamp.Stamper) (Stats, error) {
	var stats Stats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("read pcap header: %w", err)
	}
	linkType := reader.LinkType()

	snaplen := reader.Snaplen()
	if snaplen < core.IPv4MaxTotalLen {
		snaplen = core.IPv4MaxTotalLen
	}
	writer := pcapgo.NewWriter(w)
	if reader.Resolution() == gopacket.TimestampResolutionNanosecond {
		writer = pcapgo.NewWriterNanos(w)
	}
	if err := writer.WriteFileHeader(snaplen, linkType); err != nil {
		return stats, fmt.Errorf("write pcap header: %w", err)
	}

	logger := log.GetLogger().WithField("link_type", linkType.String())
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read record %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		out, keep := process(st, linkType, data, ci, &stats)
		if !keep {
			continue
		}
		ci.CaptureLength = len(out)
		ci.Length = len(out)
		if err := writer.WritePacket(ci, out); err != nil {
			return stats, fmt.Errorf("write record %d: %w", stats.Packets, err)
		}
		stats.Written++
	}

	logger.WithField("packets", stats.Packets).
		WithField("stamped", stats.Stamped).
		WithField("dropped", stats.Dropped).
		Info("replay finished")
	return stats, nil
}

func process(st *stamp.Stamper, linkType layers.LinkType, data []byte, ci gopacket.CaptureInfo, stats *Stats) ([]byte, bool) {
	if ci.CaptureLength < ci.Length {
		stats.Truncated++
		return data, true
	}

	netOff, ok := NetworkOffset(linkType, data)
	if !ok {
		stats.NonIPv4++
		return data, true
	}

	buf := buffer.NewLinear(data, netOff+core.IPv4MaxTotalLen)
	res, err := st.Process(buf, netOff)
	if res.Class != core.NotTunneled {
		stats.Tunneled++
	}
	if res.Class == core.TunneledFlagged {
		stats.Flagged++
	}
	if errors.Is(err, core.ErrMalformedHeader) {
		stats.Malformed++
	}
	if res.Verdict == core.Drop {
		stats.Dropped++
		log.GetLogger().WithError(err).WithField("record", stats.Packets).Warn("record dropped")
		return nil, false
	}
	if res.Modified {
		stats.Stamped++
		logTrailer(st, buf.Bytes(), netOff, stats.Packets)
	}
	return buf.Bytes(), true
}

func logTrailer(st *stamp.Stamper, data []byte, netOff, record int) {
	logger := log.GetLogger()
	if !logger.IsDebugEnabled() {
		return
	}
	t, err := stamp.ReadTrailer(data, netOff, st.TimestampOrder())
	if err != nil {
		logger.WithError(err).Debug("cannot read trailer back")
		return
	}
	last := t.Entries[len(t.Entries)-1]
	logger.WithFields(map[string]interface{}{
		"record": record,
		"count":  t.Count,
		"node":   last.NodeID,
		"millis": last.Millis,
	}).Debug("stamped")
}

// NetworkOffset returns the number of link-layer bytes before the first
// IPv4 header in data. It reports false when there is no IPv4 header.
func NetworkOffset(linkType layers.LinkType, data []byte) (int, bool) {
	switch linkType {
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		if len(data) > 0 && data[0]>>4 == 4 {
			return 0, true
		}
		return 0, false
	}

	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})
	off := 0
	for _, l := range pkt.Layers() {
		if l.LayerType() == layers.LayerTypeIPv4 {
			return off, true
		}
		off += len(l.LayerContents())
	}
	return 0, false
}
