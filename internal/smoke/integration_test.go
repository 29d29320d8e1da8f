// SPDX-License-Identifier: MPL-2.0

package smoke

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gantryhq/gantry/internal/imagebuild"
	"github.com/gantryhq/gantry/internal/recipe"
	"github.com/gantryhq/gantry/internal/testutil"

	"github.com/charmbracelet/log"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestImageContract_Integration builds a real image from a recipe and checks
// that it boots, listens on the documented port and stops in time.
func TestImageContract_Integration(t *testing.T) {
	engine := testutil.RequireDocker(t)
	sem := testutil.ContainerSemaphore()
	sem <- struct{}{}
	defer func() { <-sem }()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "requirements.txt"), "")
	writeFile(t, filepath.Join(src, "index.html"), "ok\n")

	r := recipe.Default()
	r.BaseImage = "python:3.12-alpine"
	r.Launch.Manager = recipe.ManagerCustom
	r.Launch.Command = `python -m http.server --bind 0.0.0.0 "${PORT}"`

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Minute)
	defer cancel()

	logger := log.New(io.Discard)
	builder := imagebuild.NewBuilder(engine,
		imagebuild.WithLogger(logger),
		imagebuild.WithOutput(io.Discard, io.Discard),
		imagebuild.WithContextParent(t.TempDir()),
	)
	res, err := builder.Build(ctx, imagebuild.Request{Recipe: r, SourceDir: src, Name: "gantry-integration"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.RemoveImage(context.Background(), res.Tag, true) })

	t.Run("testcontainers", func(t *testing.T) {
		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        res.Tag,
				ExposedPorts: []string{"8080/tcp"},
				WaitingFor:   wait.ForHTTP("/").WithPort("8080/tcp").WithStartupTimeout(time.Minute),
			},
			Started: true,
		})
		testcontainers.CleanupContainer(t, ctr)
		if err != nil {
			t.Fatalf("start container: %v", err)
		}

		endpoint, err := ctr.PortEndpoint(ctx, "8080/tcp", "http")
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.Get(endpoint + "/index.html")
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if string(body) != "ok\n" {
			t.Errorf("body = %q, want the copied source file", body)
		}
	})

	t.Run("checker", func(t *testing.T) {
		report, err := NewChecker(engine, WithLogger(logger)).Run(ctx, Options{
			Image:          res.Tag,
			Port:           r.Launch.Port,
			StartupTimeout: time.Minute,
			StopTimeout:    10 * time.Second,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Failed() {
			t.Fatalf("smoke checks failed:\n%s", report.Markdown())
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
