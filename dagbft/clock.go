// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dagbft

import (
	"time"

	"github.com/luxfi/dagbft-driver/pkg/go/utils/timer/mockable"
)

// Clock is the monotonic, microsecond-resolution time source the driver
// stamps new nodes with. Wraps the teacher's mockable.Clock so tests can
// pin and advance time instead of sleeping on wall-clock.
type Clock struct {
	inner *mockable.Clock
}

// NewClock returns a Clock backed by real wall-clock time.
func NewClock() *Clock {
	return &Clock{inner: mockable.NewClock()}
}

// NowUnixMicro returns the current time as a microsecond UNIX timestamp.
func (c *Clock) NowUnixMicro() int64 {
	return c.inner.Now().UnixMicro()
}

// Set pins the clock to t, for deterministic tests.
func (c *Clock) Set(t int64) {
	c.inner.Set(time.UnixMicro(t))
}

// Advance moves a pinned clock forward by d microseconds.
func (c *Clock) Advance(d int64) {
	c.inner.Advance(time.Duration(d) * time.Microsecond)
}
