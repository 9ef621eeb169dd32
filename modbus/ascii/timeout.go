// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import "time"

// Clock is a monotonic tick source.
type Clock interface {
	Now() time.Duration
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Duration

func (f ClockFunc) Now() time.Duration { return f() }

var epoch = time.Now()

// MonotonicClock reports time elapsed since process start using the
// runtime's monotonic clock.
var MonotonicClock Clock = ClockFunc(func() time.Duration {
	return time.Since(epoch)
})

// expired reports whether the frame started at start has run past limit.
func expired(clock Clock, start, limit time.Duration) bool {
	return clock.Now()-start >= limit
}
