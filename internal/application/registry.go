// SPDX-License-Identifier: MPL-2.0

package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// ErrInvalidRef is returned for references not of the form module:object.
	ErrInvalidRef = errors.New("invalid application reference")
	// ErrNotFound is returned when no factory is registered for a reference.
	ErrNotFound = errors.New("application object not found")
	// ErrLoad is returned when a registered factory fails.
	ErrLoad = errors.New("application failed to load")

	modulePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	objectPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// Ref addresses an application object.
	Ref struct {
		Module string
		Object string
	}

	// Env is what a factory may depend on.
	Env struct {
		// WorkDir is the directory the application was deployed to.
		WorkDir string
		Logger  *log.Logger
		// Getenv reads the process environment. A nil Getenv makes every
		// lookup empty.
		Getenv func(string) string
	}

	// Factory constructs the handler for one application object.
	Factory func(ctx context.Context, env Env) (http.Handler, error)

	// Registry maps references to factories. It is safe for concurrent use.
	Registry struct {
		mu        sync.RWMutex
		factories map[Ref]Factory
	}
)

// ParseRef parses "module:object". The module may be dotted.
func ParseRef(s string) (Ref, error) {
	module, object, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Ref{}, fmt.Errorf("%w %q: expected module:object", ErrInvalidRef, s)
	}
	if !modulePattern.MatchString(module) {
		return Ref{}, fmt.Errorf("%w %q: bad module %q", ErrInvalidRef, s, module)
	}
	if !objectPattern.MatchString(object) {
		return Ref{}, fmt.Errorf("%w %q: bad object %q", ErrInvalidRef, s, object)
	}
	return Ref{Module: module, Object: object}, nil
}

func (r Ref) String() string {
	return r.Module + ":" + r.Object
}

// Lookup returns the value for key, or "" when Getenv is unset.
func (e Env) Lookup(key string) string {
	if e.Getenv == nil {
		return ""
	}
	return e.Getenv(key)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Ref]Factory)}
}

// Register binds ref to f. Registering a reference twice is an error.
func (r *Registry) Register(ref string, f Factory) error {
	parsed, err := ParseRef(ref)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("register %s: nil factory", parsed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[parsed]; dup {
		return fmt.Errorf("register %s: already registered", parsed)
	}
	r.factories[parsed] = f
	return nil
}

// Load resolves ref and runs its factory.
func (r *Registry) Load(ctx context.Context, ref string, env Env) (http.Handler, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	f, ok := r.factories[parsed]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parsed)
	}

	h, err := f(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, parsed, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s: factory returned no handler", ErrLoad, parsed)
	}
	return h, nil
}

// Refs lists the registered references in sorted order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.factories))
	for ref := range r.factories {
		out = append(out, ref.String())
	}
	slices.Sort(out)
	return out
}
