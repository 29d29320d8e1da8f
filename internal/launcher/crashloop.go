// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// crashDetector counts worker exits in a sliding window.
type crashDetector struct {
	clock  clockwork.Clock
	max    int
	window time.Duration
	exits  []time.Time
}

func newCrashDetector(clock clockwork.Clock, maxRestarts int, window time.Duration) *crashDetector {
	return &crashDetector{clock: clock, max: maxRestarts, window: window}
}

// record notes one exit and reports whether the budget is exceeded. A
// non-positive window never forgets an exit.
func (d *crashDetector) record() bool {
	now := d.clock.Now()
	if d.window > 0 {
		cutoff := now.Add(-d.window)
		keep := d.exits[:0]
		for _, t := range d.exits {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		d.exits = keep
	}
	d.exits = append(d.exits, now)
	return len(d.exits) > d.max
}

// recent returns the number of exits inside the window after the last record.
func (d *crashDetector) recent() int {
	return len(d.exits)
}
