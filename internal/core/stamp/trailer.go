package stamp

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/gtpstamp/internal/core"
)

// Entry is one trailer entry.
type Entry struct {
	NodeID uint8
	Millis uint64
}

// Trailer is the decoded trailer region of a tagged packet.
type Trailer struct {
	Count   uint8
	Entries []Entry
}

// ReadTrailer decodes the trailer of the flagged GTP-U packet at
// data[netOff:]. Entries are the last Count×9 bytes of the inner data.
func ReadTrailer(data []byte, netOff int, order binary.ByteOrder) (Trailer, error) {
	if Classify(data, netOff) != core.TunneledFlagged {
		return Trailer{}, fmt.Errorf("not a flagged tunnel packet: %w", core.ErrMalformedHeader)
	}
	l, err := locateInner(data, netOff)
	if err != nil {
		return Trailer{}, err
	}
	t := Trailer{Count: data[l.count]}
	start := l.end - int(t.Count)*entryLen
	if start <= l.count {
		return t, fmt.Errorf("%d entries do not fit between %d and %d: %w", t.Count, l.count, l.end, core.ErrMalformedHeader)
	}
	t.Entries = make([]Entry, 0, t.Count)
	for off := start; off < l.end; off += entryLen {
		t.Entries = append(t.Entries, Entry{
			NodeID: data[off],
			Millis: order.Uint64(data[off+1 : off+entryLen]),
		})
	}
	return t, nil
}
