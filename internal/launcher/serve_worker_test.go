// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gantryhq/gantry/internal/application"
)

type readySignal struct {
	once sync.Once
	ch   chan struct{}
}

func (r *readySignal) Write(p []byte) (int, error) {
	r.once.Do(func() { close(r.ch) })
	return len(p), nil
}

func helloRegistry(t *testing.T) *application.Registry {
	t.Helper()
	reg := application.NewRegistry()
	err := reg.Register("app:app", func(_ context.Context, env application.Env) (http.Handler, error) {
		greeting := env.Lookup("GREETING")
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, greeting)
		}), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestRunWorkerServesUntilCancelled(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ready := &readySignal{ch: make(chan struct{})}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- RunWorker(ctx, WorkerOptions{
			App:      "app:app",
			Registry: helloRegistry(t),
			Listener: ln,
			Ready:    ready,
			Logger:   quietLogger(),
			Getenv: func(key string) string {
				if key == "GREETING" {
					return "hello"
				}
				return ""
			},
		})
	}()

	waitClosed(t, ready.ch)
	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "hello" {
		t.Errorf("body = %q, want hello", body)
	}

	cancel()
	if err := receive(t, done); err != nil {
		t.Fatalf("RunWorker() error = %v", err)
	}
}

func TestRunWorkerFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     func(ln net.Listener) WorkerOptions
		wantErr  error
		wantCode int
	}{
		{
			name: "unknown application",
			opts: func(ln net.Listener) WorkerOptions {
				return WorkerOptions{App: "missing:app", Registry: helloRegistry(t), Listener: ln}
			},
			wantErr:  application.ErrNotFound,
			wantCode: ExitAppLoad,
		},
		{
			name: "malformed reference",
			opts: func(ln net.Listener) WorkerOptions {
				return WorkerOptions{App: "app", Registry: helloRegistry(t), Listener: ln}
			},
			wantErr:  application.ErrInvalidRef,
			wantCode: ExitAppLoad,
		},
		{
			name: "no listener",
			opts: func(net.Listener) WorkerOptions {
				return WorkerOptions{App: "app:app", Registry: helloRegistry(t)}
			},
			wantErr:  ErrWorkerBoot,
			wantCode: ExitWorkerBoot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { _ = ln.Close() })

			opts := tt.opts(ln)
			opts.Logger = quietLogger()
			err = RunWorker(t.Context(), opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RunWorker() error = %v, want %v", err, tt.wantErr)
			}
			if got := ExitCode(err); got != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestReadyPipe(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	if readyPipe(w) == nil {
		t.Error("readyPipe(pipe) = nil, want the pipe")
	}

	regular, err := os.Create(filepath.Join(t.TempDir(), "not-a-pipe"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = regular.Close() })
	if readyPipe(regular) != nil {
		t.Error("readyPipe(regular file) != nil")
	}

	closed, closedW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	_ = closed.Close()
	_ = closedW.Close()
	if readyPipe(closed) != nil {
		t.Error("readyPipe(closed file) != nil")
	}

	if readyPipe(nil) != nil {
		t.Error("readyPipe(nil) != nil")
	}
}
