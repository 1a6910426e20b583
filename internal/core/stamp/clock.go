package stamp

import "time"

// Clock is the timestamp source: milliseconds, 8 bytes wide.
type Clock interface {
	NowMillis() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

func (f ClockFunc) NowMillis() uint64 { return f() }

// WallClock reads the system wall clock.
var WallClock Clock = ClockFunc(func() uint64 {
	return uint64(time.Now().UnixMilli())
})
