// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/gantryhq/gantry/internal/lifecycle"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type (
	eventKind int

	event struct {
		kind   eventKind
		slot   int
		worker Worker
	}

	// Master is the process manager: it owns the listening socket and the
	// worker processes.
	Master struct {
		*lifecycle.Machine

		cfg     Config
		spawner Spawner
		clock   clockwork.Clock
		logger  *log.Logger
		metrics *metrics
		limiter *rate.Limiter
		crashes *crashDetector

		mu          sync.Mutex
		ln          net.Listener
		metricsHTTP *echo.Echo
		metricsLn   net.Listener

		events   chan event
		loopDone chan struct{}
	}
)

const (
	eventReady eventKind = iota
	eventExit
	eventRespawn
)

// New creates a Master. Without WithSpawner, workers are started by
// re-executing the current binary.
func New(cfg Config, opts ...Option) (*Master, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid launcher config: %w", err)
	}

	m := &Master{
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		logger:   log.Default().WithPrefix("launcher"),
		metrics:  newMetrics(),
		events:   make(chan event),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.spawner == nil {
		m.spawner = NewExecSpawner(ExecSpawnerConfig{App: cfg.App, Logger: m.logger})
	}

	limit := rate.Inf
	if cfg.RespawnInterval > 0 {
		limit = rate.Every(cfg.RespawnInterval)
	}
	m.limiter = rate.NewLimiter(limit, 1)
	m.crashes = newCrashDetector(m.clock, cfg.MaxRestarts, cfg.RestartWindow)

	m.Machine = lifecycle.New(lifecycle.WithObserver(func(from, to lifecycle.State) {
		m.metrics.observeState(to)
		m.logger.Debug("state change", "from", from, "to", to)
	}))

	return m, nil
}

// Addr returns the bound listener address, or nil before Start.
func (m *Master) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// MetricsAddr returns the bound metrics address, or nil when disabled.
func (m *Master) MetricsAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metricsLn == nil {
		return nil
	}
	return m.metricsLn.Addr()
}

// Start binds the socket, spawns the workers and blocks until every worker
// is ready, startup fails, or ctx ends. A failed start leaves no worker
// running.
func (m *Master) Start(ctx context.Context) error {
	if err := m.Begin(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", m.cfg.Address())
	if err != nil {
		err = fmt.Errorf("%w %s: %w", ErrBind, m.cfg.Address(), err)
		m.Fail(err)
		return err
	}
	m.mu.Lock()
	m.ln = ln
	m.mu.Unlock()

	if err := m.startMetrics(); err != nil {
		_ = ln.Close()
		m.Fail(err)
		return err
	}

	m.logger.Info("listening", "addr", ln.Addr().String(), "workers", m.cfg.Workers, "app", m.cfg.App)
	m.Go(m.loop)

	select {
	case <-m.Ready():
		m.logger.Info("ready")
		return nil
	case <-m.Done():
		m.Wait()
		return m.LastError()
	case <-ctx.Done():
		_ = m.Stop(context.Background())
		return fmt.Errorf("startup interrupted: %w", ctx.Err())
	}
}

// Stop drains the workers: SIGTERM, up to GracefulTimeout for them to exit,
// then SIGKILL. It is idempotent and returns the fatal error, if any.
func (m *Master) Stop(ctx context.Context) error {
	if m.BeginDrain() {
		m.logger.Info("draining", "grace", m.cfg.GracefulTimeout)
	}
	select {
	case <-m.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	m.Wait()
	return m.LastError()
}

// Run starts the master and blocks until ctx is cancelled or a fatal error
// occurs. Cancellation drains and returns nil.
func (m *Master) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		if ctx.Err() != nil && m.LastError() == nil {
			return nil
		}
		return err
	}

	select {
	case <-ctx.Done():
		return m.Stop(context.Background())
	case <-m.Done():
		m.Wait()
		return m.LastError()
	}
}

// loop owns the worker set from the first spawn to the last exit.
func (m *Master) loop() {
	defer close(m.loopDone)

	ctx := m.Context()
	workers := make(map[int]Worker, m.cfg.Workers)
	ready := make(map[int]bool, m.cfg.Workers)
	var (
		fatal  error
		timers []clockwork.Timer
	)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	startup := m.clock.NewTimer(m.cfg.StartupTimeout)
	defer startup.Stop()

	for slot := range m.cfg.Workers {
		if fatal = m.spawn(ctx, slot, workers); fatal != nil {
			break
		}
	}

supervise:
	for fatal == nil {
		select {
		case <-ctx.Done():
			break supervise

		case <-startup.Chan():
			if m.State() == lifecycle.StateStarting {
				fatal = fmt.Errorf("%w (%s, %d of %d ready)", ErrStartupTimeout, m.cfg.StartupTimeout, len(ready), m.cfg.Workers)
			}

		case ev := <-m.events:
			switch ev.kind {
			case eventReady:
				if workers[ev.slot] != ev.worker {
					continue
				}
				ready[ev.slot] = true
				m.metrics.ready.Set(float64(len(ready)))
				m.logger.Debug("worker ready", "worker", ev.slot, "pid", ev.worker.Pid())
				if len(ready) == m.cfg.Workers && m.MarkReady() {
					startup.Stop()
				}

			case eventExit:
				if workers[ev.slot] != ev.worker {
					continue
				}
				delete(workers, ev.slot)
				delete(ready, ev.slot)
				m.metrics.live.Set(float64(len(workers)))
				m.metrics.ready.Set(float64(len(ready)))
				if ctx.Err() != nil {
					continue
				}
				var delay time.Duration
				if delay, fatal = m.handleExit(ev); fatal != nil {
					continue
				}
				if delay <= 0 {
					m.metrics.restarts.Inc()
					fatal = m.spawn(ctx, ev.slot, workers)
					continue
				}
				slot := ev.slot
				timers = append(timers, m.clock.AfterFunc(delay, func() {
					m.send(event{kind: eventRespawn, slot: slot})
				}))

			case eventRespawn:
				if _, running := workers[ev.slot]; running {
					continue
				}
				m.metrics.restarts.Inc()
				fatal = m.spawn(ctx, ev.slot, workers)
			}
		}
	}

	if fatal != nil {
		m.logger.Error("fatal", "err", fatal)
		m.BeginDrain()
	}
	m.drain(workers)
	m.shutdown()

	if fatal != nil {
		m.Fail(fatal)
		return
	}
	m.MarkStopped()
	m.logger.Info("stopped")
}

// handleExit decides whether a worker exit is fatal. Otherwise it returns
// the respawn delay imposed by the rate limit.
func (m *Master) handleExit(ev event) (time.Duration, error) {
	exit := ev.worker.Exit()
	m.metrics.observeExit(exit.Code)
	logger := m.logger.With("worker", ev.slot, "pid", ev.worker.Pid(), "code", exit.Code)
	if exit.Signal != nil {
		logger = logger.With("signal", exit.Signal.String())
	}

	exitErr := &WorkerExitError{ID: ev.slot, Pid: ev.worker.Pid(), Code: exit.Code, Err: exit.Err}
	switch {
	case m.State() == lifecycle.StateStarting:
		return 0, exitErr
	case exit.Code == ExitAppLoad, exit.Code == ExitWorkerBoot:
		return 0, exitErr
	case m.crashes.record():
		return 0, fmt.Errorf("%w: %d exits within %s: %w", ErrCrashLoop, m.crashes.recent(), m.cfg.RestartWindow, exitErr)
	}

	now := m.clock.Now()
	delay := m.limiter.ReserveN(now, 1).DelayFrom(now)
	logger.Warn("worker exited, respawning", "delay", delay)
	return delay, nil
}

func (m *Master) spawn(ctx context.Context, slot int, workers map[int]Worker) error {
	w, err := m.spawner.Spawn(ctx, slot, m.ln)
	if err != nil {
		return fmt.Errorf("%w: spawn worker %d: %w", ErrWorkerBoot, slot, err)
	}
	workers[slot] = w
	m.metrics.live.Set(float64(len(workers)))
	m.logger.Debug("worker started", "worker", slot, "pid", w.Pid())

	m.Go(func() {
		select {
		case <-w.Ready():
			m.send(event{kind: eventReady, slot: slot, worker: w})
		case <-w.Done():
		}
		<-w.Done()
		m.send(event{kind: eventExit, slot: slot, worker: w})
	})
	return nil
}

func (m *Master) send(ev event) {
	select {
	case m.events <- ev:
	case <-m.loopDone:
	}
}

// drain terminates every live worker and waits for all of them to exit.
func (m *Master) drain(workers map[int]Worker) {
	for slot, w := range workers {
		if err := w.Signal(syscall.SIGTERM); err != nil {
			m.logger.Debug("signal failed", "worker", slot, "err", err)
		}
	}

	grace := m.clock.NewTimer(m.cfg.GracefulTimeout)
	defer grace.Stop()

	for len(workers) > 0 {
		select {
		case ev := <-m.events:
			if ev.kind == eventExit && workers[ev.slot] == ev.worker {
				delete(workers, ev.slot)
				m.metrics.observeExit(ev.worker.Exit().Code)
				m.metrics.live.Set(float64(len(workers)))
			}
		case <-grace.Chan():
			for slot, w := range workers {
				m.logger.Warn("worker did not exit in time, killing", "worker", slot, "pid", w.Pid())
				_ = w.Kill()
			}
		}
	}
	m.metrics.ready.Set(0)
}

func (m *Master) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		_ = m.ln.Close()
	}
	if m.metricsHTTP != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.metricsHTTP.Shutdown(ctx)
	}
}

func (m *Master) startMetrics() error {
	if m.cfg.MetricsAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("%w %s (metrics): %w", ErrBind, m.cfg.MetricsAddr, err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = ln
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.metrics.registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		state := m.State()
		status := http.StatusOK
		if state != lifecycle.StateReady {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, map[string]string{"state": state.String()})
	})

	m.mu.Lock()
	m.metricsHTTP = e
	m.metricsLn = ln
	m.mu.Unlock()

	go func() {
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Warn("metrics server stopped", "err", err)
		}
	}()
	return nil
}
