// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

type (
	options struct {
		logger        *log.Logger
		stdout        io.Writer
		stderr        io.Writer
		contextParent string
		keepContext   bool
		tagSuffix     string
		retryBackoff  time.Duration
	}

	// Option configures a Builder.
	Option func(*options)
)

func defaultOptions() options {
	return options{
		logger: log.Default().WithPrefix("builder"),
		stdout: os.Stderr,
		stderr: os.Stderr,
		// GANTRY_BUILD_TAG_SUFFIX isolates images built by parallel test runs.
		tagSuffix:    os.Getenv("GANTRY_BUILD_TAG_SUFFIX"),
		retryBackoff: 500 * time.Millisecond,
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput sets where engine build output goes. Both default to stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithContextParent sets the directory temporary build contexts are created
// in. The default is ~/gantry-build, which snap-confined Docker can read.
func WithContextParent(dir string) Option {
	return func(o *options) { o.contextParent = dir }
}

// WithKeepContext leaves the build context on disk after the build.
func WithKeepContext(keep bool) Option {
	return func(o *options) { o.keepContext = keep }
}

// WithTagSuffix appends "-<suffix>" to generated tags.
func WithTagSuffix(suffix string) Option {
	return func(o *options) { o.tagSuffix = suffix }
}

// WithRetryBackoff sets the first wait before retrying a transient engine
// error during cleanup.
func WithRetryBackoff(d time.Duration) Option {
	return func(o *options) { o.retryBackoff = d }
}
