// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/container"
)

type (
	// stubProvider returns a fixed configuration.
	stubProvider struct {
		cfg  *config.Config
		path string
		err  error
	}

	// memEngine keeps built images in memory and refuses to run containers.
	memEngine struct {
		mu     sync.Mutex
		images map[string]bool
		builds int
	}

	testCLI struct {
		app    *App
		stdout *bytes.Buffer
		stderr *bytes.Buffer
	}
)

var _ container.Engine = (*memEngine)(nil)

func (p *stubProvider) Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error) {
	cfg, _, err := p.LoadWithPath(ctx, opts)
	return cfg, err
}

func (p *stubProvider) LoadWithPath(context.Context, config.LoadOptions) (*config.Config, string, error) {
	if p.err != nil {
		return nil, "", p.err
	}
	cfg := config.DefaultConfig()
	if p.cfg != nil {
		c := *p.cfg
		cfg = &c
	}
	return cfg, p.path, nil
}

func newMemEngine() *memEngine { return &memEngine{images: map[string]bool{}} }

func (e *memEngine) Name() string                               { return "mem" }
func (e *memEngine) Available() bool                            { return true }
func (e *memEngine) Version(context.Context) (string, error)    { return "1.0", nil }
func (e *memEngine) Remove(context.Context, string, bool) error { return nil }
func (e *memEngine) Stop(context.Context, string, time.Duration) error {
	return nil
}

func (e *memEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return nil, errors.New("not supported")
}

func (e *memEngine) InspectState(context.Context, string) (container.ContainerState, error) {
	return container.ContainerState{}, errors.New("not supported")
}

func (e *memEngine) Build(_ context.Context, opts container.BuildOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds++
	e.images[opts.Tag] = true
	return nil
}

func (e *memEngine) ImageExists(_ context.Context, image string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[image], nil
}

func (e *memEngine) RemoveImage(_ context.Context, image string, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.images, image)
	return nil
}

func newTestCLI(t *testing.T, deps Dependencies) *testCLI {
	t.Helper()

	c := &testCLI{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	deps.Stdout, deps.Stderr = c.stdout, c.stderr
	if deps.Config == nil {
		deps.Config = &stubProvider{}
	}
	if deps.Engines == nil {
		deps.Engines = func(config.ContainerEngine) (container.Engine, error) {
			return nil, errors.New("no engine in tests")
		}
	}
	app, err := NewApp(deps)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	c.app = app
	return c
}

func (c *testCLI) run(t *testing.T, args ...string) error {
	t.Helper()

	c.stdout.Reset()
	c.stderr.Reset()
	root := NewRootCommand(c.app)
	root.SetArgs(args)
	return root.ExecuteContext(t.Context())
}

// writeProject creates a minimal source tree with a pinned manifest.
func writeProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"requirements.txt": "flask==3.0.3\ngunicorn==22.0.0\n",
		"app.py":           "from flask import Flask\napp = Flask(__name__)\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
