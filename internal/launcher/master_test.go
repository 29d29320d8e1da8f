// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/lifecycle"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMaster(t *testing.T, cfg Config, spawner Spawner, opts ...Option) *Master {
	t.Helper()
	opts = append([]Option{WithSpawner(spawner), WithLogger(quietLogger())}, opts...)
	m, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Workers = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("New() accepted zero workers")
	}
}

func TestMasterStartAndStop(t *testing.T) {
	t.Parallel()

	spawner := newFakeSpawner(autoReady)
	m := newTestMaster(t, testConfig(), spawner)

	if got := m.State(); got != lifecycle.StateNotStarted {
		t.Fatalf("initial state = %s", got)
	}
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := m.State(); got != lifecycle.StateReady {
		t.Fatalf("state after Start = %s, want ready", got)
	}
	if m.Addr() == nil {
		t.Fatal("Addr() = nil after Start")
	}

	workers := spawner.all()
	if len(workers) != 2 {
		t.Fatalf("spawned %d workers, want 2", len(workers))
	}
	if testutil.ToFloat64(m.metrics.ready) != 2 {
		t.Errorf("ready gauge = %v, want 2", testutil.ToFloat64(m.metrics.ready))
	}

	if err := m.Stop(t.Context()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := m.State(); got != lifecycle.StateStopped {
		t.Fatalf("state after Stop = %s, want stopped", got)
	}
	for _, w := range workers {
		sigs := w.gotSignals()
		if len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
			t.Errorf("worker %d signals = %v, want [SIGTERM]", w.id, sigs)
		}
		if w.wasKilled() {
			t.Errorf("worker %d was killed", w.id)
		}
	}

	// Stop is idempotent.
	if err := m.Stop(t.Context()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestMasterBindsConfiguredPort(t *testing.T) {
	t.Parallel()

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	_ = probe.Close()

	cfg := testConfig()
	cfg.Port = port
	m := newTestMaster(t, cfg, newFakeSpawner(autoReady))
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := m.Addr().(*net.TCPAddr).Port; got != port {
		t.Errorf("bound port = %d, want %d", got, port)
	}
}

func TestMasterKillsAfterGracefulTimeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	spawner := newFakeSpawner(autoReady)
	spawner.ignoreTerm = true
	cfg := testConfig()
	cfg.GracefulTimeout = 10 * time.Second
	m := newTestMaster(t, cfg, spawner, WithClock(clock))

	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop(context.Background()) }()

	for _, w := range spawner.all() {
		eventually(t, "SIGTERM", func() bool { return len(w.gotSignals()) > 0 })
	}
	ctx, cancel := context.WithTimeout(t.Context(), waitTimeout)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("grace timer never armed: %v", err)
	}
	for _, w := range spawner.all() {
		if w.isDone() {
			t.Fatalf("worker %d exited before the grace period", w.id)
		}
	}
	clock.Advance(cfg.GracefulTimeout)

	if err := receive(t, stopped); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, w := range spawner.all() {
		if !w.wasKilled() {
			t.Errorf("worker %d not killed after grace period", w.id)
		}
	}
	if got := m.State(); got != lifecycle.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestMasterBindFailure(t *testing.T) {
	t.Parallel()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = busy.Close() })

	cfg := testConfig()
	cfg.Port = busy.Addr().(*net.TCPAddr).Port
	spawner := newFakeSpawner(autoReady)
	m := newTestMaster(t, cfg, spawner)

	err = m.Start(t.Context())
	if !errors.Is(err, ErrBind) {
		t.Fatalf("Start() error = %v, want ErrBind", err)
	}
	if ExitCode(err) != ExitFatal {
		t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitFatal)
	}
	if got := m.State(); got != lifecycle.StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
	if n := len(spawner.all()); n != 0 {
		t.Errorf("spawned %d workers after bind failure", n)
	}
}

func TestMasterStartupFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		onSpawn  func(w *fakeWorker)
		wantErr  error
		wantCode int
	}{
		{
			name: "application load failure",
			onSpawn: func(w *fakeWorker) {
				if w.id == 0 {
					w.exitWith(WorkerExit{Code: ExitAppLoad})
				}
			},
			wantErr:  ErrAppLoad,
			wantCode: ExitAppLoad,
		},
		{
			name: "worker boot failure",
			onSpawn: func(w *fakeWorker) {
				w.exitWith(WorkerExit{Code: ExitWorkerBoot})
			},
			wantErr:  ErrWorkerBoot,
			wantCode: ExitWorkerBoot,
		},
		{
			name: "exit before ready",
			onSpawn: func(w *fakeWorker) {
				if w.id == 1 {
					w.exitWith(WorkerExit{Code: 2})
				} else {
					w.markReady()
				}
			},
			wantErr:  ErrWorkerExited,
			wantCode: ExitFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spawner := newFakeSpawner(tt.onSpawn)
			m := newTestMaster(t, testConfig(), spawner)

			err := m.Start(t.Context())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
			}
			var exitErr *WorkerExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("Start() error = %T, want *WorkerExitError", err)
			}
			if got := ExitCode(err); got != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", got, tt.wantCode)
			}
			if got := m.State(); got != lifecycle.StateFailed {
				t.Errorf("state = %s, want failed", got)
			}
			for _, w := range spawner.all() {
				if !w.isDone() {
					t.Errorf("worker %d still running after failed start", w.id)
				}
			}
		})
	}
}

func TestMasterSpawnError(t *testing.T) {
	t.Parallel()

	spawner := newFakeSpawner(autoReady)
	spawner.err = errors.New("exec format error")
	m := newTestMaster(t, testConfig(), spawner)

	err := m.Start(t.Context())
	if !errors.Is(err, ErrWorkerBoot) {
		t.Fatalf("Start() error = %v, want ErrWorkerBoot", err)
	}
	if ExitCode(err) != ExitWorkerBoot {
		t.Errorf("ExitCode() = %d", ExitCode(err))
	}
}

func TestMasterStartupTimeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	spawner := newFakeSpawner(func(w *fakeWorker) {
		if w.id == 0 {
			w.markReady()
		}
	})
	cfg := testConfig()
	cfg.StartupTimeout = 5 * time.Second
	m := newTestMaster(t, cfg, spawner, WithClock(clock))

	started := make(chan error, 1)
	go func() { started <- m.Start(context.Background()) }()

	ctx, cancel := context.WithTimeout(t.Context(), waitTimeout)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("startup timer never armed: %v", err)
	}
	eventually(t, "first worker ready", func() bool { return testutil.ToFloat64(m.metrics.ready) == 1 })
	clock.Advance(cfg.StartupTimeout)

	err := receive(t, started)
	if !errors.Is(err, ErrStartupTimeout) {
		t.Fatalf("Start() error = %v, want ErrStartupTimeout", err)
	}
	if !strings.Contains(err.Error(), "1 of 2 ready") {
		t.Errorf("error %q does not report readiness", err)
	}
	for _, w := range spawner.all() {
		if !w.isDone() {
			t.Errorf("worker %d still running", w.id)
		}
	}
}

func TestMasterRespawnsExitedWorker(t *testing.T) {
	t.Parallel()

	spawner := newFakeSpawner(autoReady)
	m := newTestMaster(t, testConfig(), spawner)
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := receive(t, spawner.spawned)
	receive(t, spawner.spawned)

	first.exitWith(WorkerExit{Code: 1})

	replacement := receive(t, spawner.spawned)
	if replacement.id != first.id {
		t.Errorf("replacement slot = %d, want %d", replacement.id, first.id)
	}
	if replacement.pid == first.pid {
		t.Error("replacement reused the pid")
	}
	if got := m.State(); got != lifecycle.StateReady {
		t.Errorf("state = %s, want ready", got)
	}
	if got := testutil.ToFloat64(m.metrics.restarts); got != 1 {
		t.Errorf("restarts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.metrics.exits.WithLabelValues("1")); got != 1 {
		t.Errorf("exits{code=1} = %v, want 1", got)
	}
}

func TestMasterRespawnIsRateLimited(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	spawner := newFakeSpawner(autoReady)
	cfg := testConfig()
	cfg.Workers = 1
	cfg.RespawnInterval = 2 * time.Second
	m := newTestMaster(t, cfg, spawner, WithClock(clock))
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w := receive(t, spawner.spawned)

	// The first respawn uses the burst.
	w.exitWith(WorkerExit{Code: 1})
	w = receive(t, spawner.spawned)

	w.exitWith(WorkerExit{Code: 1})
	ctx, cancel := context.WithTimeout(t.Context(), waitTimeout)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("respawn timer never armed: %v", err)
	}
	select {
	case <-spawner.spawned:
		t.Fatal("respawned before the interval elapsed")
	default:
	}

	clock.Advance(cfg.RespawnInterval)
	receive(t, spawner.spawned)
}

func TestMasterCrashLoop(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	spawner := newFakeSpawner(autoReady)
	cfg := testConfig()
	cfg.Workers = 1
	cfg.MaxRestarts = 2
	m := newTestMaster(t, cfg, spawner, WithClock(clock))
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w := receive(t, spawner.spawned)
	for range cfg.MaxRestarts {
		w.exitWith(WorkerExit{Code: 1})
		w = receive(t, spawner.spawned)
	}
	w.exitWith(WorkerExit{Code: 1})

	waitClosed(t, m.Done())
	err := m.Stop(t.Context())
	if !errors.Is(err, ErrCrashLoop) {
		t.Fatalf("Stop() error = %v, want ErrCrashLoop", err)
	}
	if !errors.Is(err, ErrWorkerExited) {
		t.Errorf("crash loop error does not wrap the last exit: %v", err)
	}
	if got := m.State(); got != lifecycle.StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
	if ExitCode(err) != ExitFatal {
		t.Errorf("ExitCode() = %d", ExitCode(err))
	}
}

func TestMasterAppLoadAfterReadyIsFatal(t *testing.T) {
	t.Parallel()

	spawner := newFakeSpawner(autoReady)
	m := newTestMaster(t, testConfig(), spawner)
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w := receive(t, spawner.spawned)
	w.exitWith(WorkerExit{Code: ExitAppLoad})

	waitClosed(t, m.Done())
	if err := m.LastError(); ExitCode(err) != ExitAppLoad {
		t.Fatalf("LastError() = %v, want exit code %d", err, ExitAppLoad)
	}
}

func TestMasterRunReturnsNilOnCancel(t *testing.T) {
	t.Parallel()

	spawner := newFakeSpawner(autoReady)
	m := newTestMaster(t, testConfig(), spawner)

	ctx, cancel := context.WithCancel(t.Context())
	ran := make(chan error, 1)
	go func() { ran <- m.Run(ctx) }()

	waitClosed(t, m.Ready())
	cancel()

	if err := receive(t, ran); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := m.State(); got != lifecycle.StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestMasterMetricsEndpoint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	m := newTestMaster(t, cfg, newFakeSpawner(autoReady))
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	base := "http://" + m.MetricsAddr().String()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		State string `json:"state"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || health.State != "ready" {
		t.Errorf("healthz = %d %q, want 200 ready", resp.StatusCode, health.State)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"gantry_workers_ready 2", "gantry_workers_live 2"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
