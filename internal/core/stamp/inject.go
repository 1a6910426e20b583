package stamp

import (
	"fmt"

	"firestige.xyz/gtpstamp/internal/core/buffer"
)

// inject grows buf by one trailer entry, bumps the count byte and writes
// {node id, timestamp} at the former end of the inner data. It returns the
// new entry count. buf must be linear and l must come from locate.
func (s *Stamper) inject(buf buffer.Buffer, l layout) (uint8, error) {
	count := buf.Bytes()[l.count] + 1
	millis := s.clock.NowMillis()

	if err := buf.Extend(entryLen); err != nil {
		return 0, fmt.Errorf("append trailer entry: %w", err)
	}
	// Extend may have moved the bytes.
	data := buf.Bytes()
	data[l.count] = count
	data[l.end] = s.nodeID
	s.order.PutUint64(data[l.end+1:l.end+entryLen], millis)
	return count, nil
}
