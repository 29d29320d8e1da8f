// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	t.Run("succeeds first attempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func(int) (bool, error) {
			calls++
			return false, nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("retries then succeeds", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func(attempt int) (bool, error) {
			calls++
			if attempt < 2 {
				return true, errors.New("transient")
			}
			return false, nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("exhausts attempts with last error", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func(attempt int) (bool, error) {
			calls++
			return true, fmt.Errorf("attempt %d", attempt)
		})
		if err == nil || err.Error() != "attempt 2" {
			t.Fatalf("err = %v, want last attempt error", err)
		}
		if calls != 3 {
			t.Fatalf("calls = %d, want 3", calls)
		}
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("permanent")
		calls := 0
		err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func(int) (bool, error) {
			calls++
			return false, boom
		})
		if !errors.Is(err, boom) || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("cancelled between attempts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, 5, time.Millisecond, func(int) (bool, error) {
			calls++
			cancel()
			return true, errors.New("transient")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
	})
}

func TestRetryTransient(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := RetryTransient(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls == 1 {
				return errors.New("OCI runtime error: container init failed")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if calls != 2 {
			t.Fatalf("calls = %d, want 2", calls)
		}
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		permanent := errors.New("no such image")
		err := RetryTransient(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return permanent
		})
		if !errors.Is(err, permanent) {
			t.Fatalf("err = %v, want %v", err, permanent)
		}
		if calls != 1 {
			t.Fatalf("calls = %d, want 1", calls)
		}
	})
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), false},
		{"dns", errors.New("Temporary failure resolving 'pypi.org'"), true},
		{"overlay", errors.New("error creating overlay mount to /var/lib"), true},
		{"syntax", errors.New("dockerfile parse error line 3"), false},
		{"exit 125", exitError(t, 125), true},
		{"exit 1", exitError(t, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransientError(tt.err); got != tt.want {
				t.Errorf("IsTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func exitError(t *testing.T, code int) error {
	t.Helper()
	m := newMockCommandRecorder()
	m.exitCode = code
	err := m.execFunc(t)(context.Background(), "docker", "run").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("helper process did not exit with %d: %v", code, err)
	}
	return err
}

func TestPortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "8080:8080", want: "8080:8080"},
		{in: "127.0.0.1:18080:8080", want: "127.0.0.1:18080:8080"},
		{in: "53:53/udp", want: "53:53/udp"},
		{in: "8080", wantErr: true},
		{in: "0:8080", wantErr: true},
		{in: "80:80/sctp", wantErr: true},
		{in: "x:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			m, err := ParsePortMapping(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPortMapping) {
					t.Fatalf("ParsePortMapping(%q) error = %v, want ErrInvalidPortMapping", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) failed: %v", tt.in, err)
			}
			if m.String() != tt.want {
				t.Errorf("String() = %q, want %q", m.String(), tt.want)
			}
		})
	}
}
