// SPDX-License-Identifier: MPL-2.0

package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gantryhq/gantry/internal/container"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// LabelSmoke marks containers started by a Checker.
const LabelSmoke = "io.gantry.smoke"

var checkOrder = map[string]int{CheckBoot: 0, CheckShutdown: 1, CheckMissingApp: 2}

// engineAttempts bounds retries of transient engine errors on Run and
// InspectState.
const engineAttempts = 3

// exitKilled is the exit status the engine reports for a container it had to
// SIGKILL once the stop grace period ran out.
const exitKilled = 128 + 9

var (
	// ErrExited is returned when the container exits while it should be
	// serving.
	ErrExited = errors.New("container exited")
	// ErrNotListening is returned when the port never answers.
	ErrNotListening = errors.New("container not listening")
)

type (
	// Options configures one run.
	Options struct {
		Image string
		// Port is the container port. Defaults to 8080.
		Port int
		Env  map[string]string

		StartupTimeout time.Duration
		StopTimeout    time.Duration

		// MissingAppCommand, when set, runs the image with this command,
		// which must reference an application object that does not exist.
		// The container is expected to exit non-zero within StartupTimeout.
		MissingAppCommand []string
	}

	// Checker runs smoke checks through a container engine.
	Checker struct {
		engine   container.Engine
		logger   *log.Logger
		client   *http.Client
		interval time.Duration
		freePort func() (int, error)
		// retryBackoff is the first wait before retrying a transient engine
		// error.
		retryBackoff time.Duration
	}

	// CheckerOption configures a Checker.
	CheckerOption func(*Checker)
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) CheckerOption {
	return func(c *Checker) { c.logger = l }
}

// WithPollInterval sets the initial probe interval.
func WithPollInterval(d time.Duration) CheckerOption {
	return func(c *Checker) { c.interval = d }
}

// WithRetryBackoff sets the first wait before retrying a transient engine
// error.
func WithRetryBackoff(d time.Duration) CheckerOption {
	return func(c *Checker) { c.retryBackoff = d }
}

// NewChecker creates a Checker.
func NewChecker(engine container.Engine, opts ...CheckerOption) *Checker {
	c := &Checker{
		engine:   engine,
		logger:   log.Default().WithPrefix("smoke"),
		client:   &http.Client{Timeout: 2 * time.Second},
		interval: 200 * time.Millisecond,
		freePort: freeLocalPort,

		retryBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = 30 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 10 * time.Second
	}
}

// Run executes the checks concurrently. Check failures are reported in the
// Report; the error is reserved for engine failures and cancellation.
func (c *Checker) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Image == "" {
		return nil, errors.New("smoke: image is required")
	}
	opts.setDefaults()

	report := &Report{Image: opts.Image}
	var mu sync.Mutex
	record := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results = append(report.Results, res)
		c.logger.Info("check", "name", res.Name, "passed", res.Passed, "duration", res.Duration.Round(time.Millisecond))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.bootAndStop(gctx, opts, record)
	})
	if len(opts.MissingAppCommand) > 0 {
		g.Go(func() error {
			res, err := c.missingApp(gctx, opts)
			if err != nil {
				return err
			}
			record(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	slices.SortStableFunc(report.Results, func(a, b Result) int {
		return checkOrder[a.Name] - checkOrder[b.Name]
	})
	return report, nil
}

func (c *Checker) bootAndStop(ctx context.Context, opts Options, record func(Result)) error {
	hostPort, err := c.freePort()
	if err != nil {
		return fmt.Errorf("smoke: pick host port: %w", err)
	}

	start := time.Now()
	id, err := c.start(ctx, opts, container.RunOptions{
		Ports: []container.PortMapping{{
			HostIP:        "127.0.0.1",
			HostPort:      uint16(hostPort),
			ContainerPort: uint16(opts.Port),
		}},
	})
	if err != nil {
		return err
	}
	defer c.cleanup(id)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(hostPort))
	boot := Result{Name: CheckBoot}
	probeErr := c.waitListening(ctx, id, addr, opts.StartupTimeout)
	boot.Duration = time.Since(start)
	switch {
	case probeErr == nil:
		boot.Passed = true
		boot.Detail = fmt.Sprintf("listening on container port %d", opts.Port)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		boot.Detail = probeErr.Error()
	}
	record(boot)
	if !boot.Passed {
		return nil
	}

	stop := Result{Name: CheckShutdown}
	start = time.Now()
	if err := c.engine.Stop(ctx, id, opts.StopTimeout); err != nil {
		return fmt.Errorf("smoke: stop container: %w", err)
	}
	stop.Duration = time.Since(start)

	state, err := c.inspect(ctx, id)
	if err != nil {
		return fmt.Errorf("smoke: inspect container: %w", err)
	}
	switch {
	case state.Running:
		stop.Detail = "container still running after stop"
	case state.ExitCode == exitKilled:
		stop.Detail = fmt.Sprintf("killed after the %s grace period (exit code %d)", opts.StopTimeout, state.ExitCode)
	case stop.Duration >= opts.StopTimeout:
		stop.Detail = fmt.Sprintf("stop took %s, grace period is %s", stop.Duration.Round(time.Millisecond), opts.StopTimeout)
	default:
		stop.Passed = true
		stop.Detail = fmt.Sprintf("exited with code %d", state.ExitCode)
	}
	record(stop)
	return nil
}

func (c *Checker) missingApp(ctx context.Context, opts Options) (Result, error) {
	res := Result{Name: CheckMissingApp}
	start := time.Now()
	id, err := c.start(ctx, opts, container.RunOptions{Command: opts.MissingAppCommand})
	if err != nil {
		return res, err
	}
	defer c.cleanup(id)

	state, err := c.waitExited(ctx, id, opts.StartupTimeout)
	res.Duration = time.Since(start)
	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case err != nil:
		res.Detail = err.Error()
	case state.ExitCode == 0:
		res.Detail = "exited with code 0, want non-zero"
	default:
		res.Passed = true
		res.Detail = fmt.Sprintf("exited with code %d", state.ExitCode)
	}
	return res, nil
}

func (c *Checker) start(ctx context.Context, opts Options, run container.RunOptions) (string, error) {
	run.Image = opts.Image
	run.Env = opts.Env
	run.Detach = true
	run.Labels = map[string]string{LabelSmoke: "true"}
	run.Stdout = io.Discard
	run.Stderr = io.Discard

	var id string
	err := container.RetryTransient(ctx, engineAttempts, c.retryBackoff, func() error {
		// A failed attempt may leave a created container holding the name.
		run.Name = "gantry-smoke-" + uuid.NewString()[:8]
		res, err := c.engine.Run(ctx, run)
		if err == nil {
			err = res.Error
		}
		if err != nil {
			if container.IsTransientError(err) {
				c.logger.Warn("transient engine error", "name", run.Name, "err", err)
				c.cleanup(run.Name)
			}
			return err
		}
		id = res.ContainerID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("smoke: run %s: %w", opts.Image, err)
	}
	c.logger.Debug("container started", "name", run.Name, "id", id)
	return id, nil
}

func (c *Checker) inspect(ctx context.Context, id string) (container.ContainerState, error) {
	var state container.ContainerState
	err := container.RetryTransient(ctx, engineAttempts, c.retryBackoff, func() error {
		var err error
		state, err = c.engine.InspectState(ctx, id)
		return err
	})
	return state, err
}

// waitListening polls until addr answers HTTP or the container exits.
// Container engines may accept TCP on a published port before the process
// listens, so a bare connect is not enough.
func (c *Checker) waitListening(ctx context.Context, id, addr string, timeout time.Duration) error {
	return c.poll(ctx, timeout, func(ctx context.Context) error {
		state, err := c.inspect(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("inspect: %w", err))
		}
		if state.Exited() {
			return backoff.Permanent(fmt.Errorf("%w with code %d before listening", ErrExited, state.ExitCode))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w within %s: %w", ErrNotListening, timeout, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil
	})
}

func (c *Checker) waitExited(ctx context.Context, id string, timeout time.Duration) (container.ContainerState, error) {
	var state container.ContainerState
	err := c.poll(ctx, timeout, func(ctx context.Context) error {
		s, err := c.inspect(ctx, id)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("inspect: %w", err))
		}
		if !s.Exited() {
			return fmt.Errorf("still running after %s", timeout)
		}
		state = s
		return nil
	})
	return state, err
}

func (c *Checker) poll(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = 0

	var last error
	err := backoff.Retry(func() error {
		last = op(ctx)
		return last
	}, backoff.WithContext(policy, ctx))
	if err != nil && last != nil && errors.Is(err, context.DeadlineExceeded) {
		return last
	}
	return err
}

func (c *Checker) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.engine.Remove(ctx, id, true); err != nil {
		c.logger.Warn("remove container", "id", id, "err", err)
	}
}

func freeLocalPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
