// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gantryhq/gantry/internal/application"

	"github.com/charmbracelet/log"
)

// File descriptors a worker inherits from ExecSpawner.
const (
	ListenerFD = 3
	ReadyFD    = 4
)

// WorkerOptions configures RunWorker.
type WorkerOptions struct {
	App      string
	Registry *application.Registry
	Listener net.Listener
	// Ready receives one byte once the application is loaded. It is closed
	// afterwards when it implements io.Closer.
	Ready   io.Writer
	WorkDir string
	Logger  *log.Logger
	// ShutdownTimeout bounds in-flight requests after ctx ends.
	ShutdownTimeout time.Duration
	Getenv          func(string) string
}

// InheritedListener adopts the listening socket passed by the master.
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(ListenerFD, "gantry-listener")
	if f == nil {
		return nil, fmt.Errorf("%w: no file descriptor %d", ErrWorkerBoot, ListenerFD)
	}
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("%w: adopt listener: %w", ErrWorkerBoot, err)
	}
	return ln, nil
}

// InheritedReadyPipe returns the readiness pipe passed by the master, or
// nil when the worker was started without one.
func InheritedReadyPipe() io.WriteCloser {
	return readyPipe(os.NewFile(ReadyFD, "gantry-ready"))
}

// readyPipe returns f only when it is an open pipe, so a worker started by
// hand never writes into an unrelated descriptor.
func readyPipe(f *os.File) io.WriteCloser {
	if f == nil {
		return nil
	}
	fi, err := f.Stat()
	if err != nil || fi.Mode()&os.ModeNamedPipe == 0 {
		return nil
	}
	return f
}

// RunWorker loads the application and serves it on the listener until ctx
// ends, then shuts down gracefully. Load failures wrap ErrAppLoad.
func RunWorker(ctx context.Context, opts WorkerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Listener == nil {
		return fmt.Errorf("%w: no listener", ErrWorkerBoot)
	}
	if opts.Registry == nil {
		return fmt.Errorf("%w: no application registry", ErrAppLoad)
	}
	defer opts.Listener.Close()

	handler, err := opts.Registry.Load(ctx, opts.App, application.Env{
		WorkDir: opts.WorkDir,
		Logger:  logger,
		Getenv:  opts.Getenv,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAppLoad, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(opts.Listener) }()

	if opts.Ready != nil {
		if _, err := opts.Ready.Write([]byte{1}); err != nil {
			logger.Warn("readiness pipe", "err", err)
		}
		if c, ok := opts.Ready.(io.Closer); ok {
			_ = c.Close()
		}
	}
	logger.Info("worker serving", "app", opts.App, "addr", opts.Listener.Addr().String())

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", "err", err)
		_ = srv.Close()
	}
	return nil
}
