// SPDX-License-Identifier: MPL-2.0

package lifecycle

import "testing"

func TestState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		name  string
	}{
		{StateNotStarted, "not-started"},
		{StateStarting, "starting"},
		{StateReady, "ready"},
		{StateDraining, "draining"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.state.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}
}
