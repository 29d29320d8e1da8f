// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestCrashDetectorWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	d := newCrashDetector(clock, 2, 10*time.Second)

	for i := range 2 {
		if d.record() {
			t.Fatalf("record() #%d reported a crash loop within budget", i+1)
		}
		clock.Advance(time.Second)
	}
	if !d.record() {
		t.Fatal("third exit within the window not reported")
	}
	if got := d.recent(); got != 3 {
		t.Errorf("recent() = %d, want 3", got)
	}

	clock.Advance(11 * time.Second)
	if d.record() {
		t.Fatal("exits outside the window still counted")
	}
	if got := d.recent(); got != 1 {
		t.Errorf("recent() after window = %d, want 1", got)
	}
}

func TestCrashDetectorWithoutWindow(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	d := newCrashDetector(clock, 1, 0)

	if d.record() {
		t.Fatal("first exit reported")
	}
	clock.Advance(24 * time.Hour)
	if !d.record() {
		t.Fatal("a zero window must never forget an exit")
	}
}

func TestCrashDetectorZeroBudget(t *testing.T) {
	t.Parallel()

	d := newCrashDetector(clockwork.NewFakeClock(), 0, time.Minute)
	if !d.record() {
		t.Fatal("with no restarts allowed the first exit is a crash loop")
	}
}
