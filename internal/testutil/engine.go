// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/gantryhq/gantry/internal/container"

	"github.com/testcontainers/testcontainers-go"
)

// ContainerParallelEnv overrides the container semaphore capacity.
const ContainerParallelEnv = "GANTRY_TEST_CONTAINER_PARALLEL"

// ContainerSemaphore returns a process-wide buffered channel that limits
// concurrent container operations in tests. Acquire a slot by sending,
// release by receiving:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism(os.Getenv(ContainerParallelEnv)))
})

// containerParallelism parses the override, falling back to
// min(GOMAXPROCS, 2). Podman hangs rather than failing when too many builds
// run at once on small CI runners.
func containerParallelism(override string) int {
	if override != "" {
		if n, err := strconv.Atoi(override); err == nil && n > 0 {
			return n
		}
	}
	return min(runtime.GOMAXPROCS(0), 2)
}

// RequireDocker returns the docker engine, skipping the test in short mode
// or when neither the docker CLI nor a testcontainers provider is usable.
func RequireDocker(t testing.TB) container.Engine {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	engine, err := container.NewEngine(container.EngineTypeDocker)
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	if engine.Name() != string(container.EngineTypeDocker) {
		t.Skipf("skipping integration test: docker unavailable, found %s", engine.Name())
	}
	if !providerAvailable() {
		t.Skip("skipping integration test: testcontainers provider not available")
	}
	return engine
}

// providerAvailable reports whether testcontainers can reach a Docker
// provider. Provider detection can panic without a daemon.
func providerAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}
