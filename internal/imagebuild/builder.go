// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gantryhq/gantry/internal/container"
	"github.com/gantryhq/gantry/internal/issue"
	"github.com/gantryhq/gantry/internal/manifest"
	"github.com/gantryhq/gantry/internal/recipe"
)

// DefaultName is the image repository used when Request.Name is empty.
const DefaultName = "gantry-app"

// cleanupAttempts bounds retries of transient engine errors while removing a
// partial image.
const cleanupAttempts = 3

// Image labels.
const (
	LabelCacheKey       = "io.gantry.cache-key"
	LabelManifestDigest = "io.gantry.manifest-digest"
	LabelApp            = "io.gantry.app"
	LabelBaseImage      = "org.opencontainers.image.base.name"
)

var (
	// ErrUnpinnedDependencies is returned when RequirePinned is set and the
	// manifest has specifiers without an exact version.
	ErrUnpinnedDependencies = errors.New("manifest has unpinned dependencies")
	// ErrLocalDependency is returned when the manifest references a path on
	// disk. Only the manifest is present when dependencies install.
	ErrLocalDependency = errors.New("manifest references a local path")
	// ErrManifestMissing is returned when the manifest is absent from the
	// filtered source tree.
	ErrManifestMissing = errors.New("dependency manifest not found in source tree")
	// ErrImageMissing is returned when the engine reported success but the
	// tag does not exist.
	ErrImageMissing = errors.New("image missing after build")
)

type (
	// Request describes one build.
	Request struct {
		Recipe *recipe.Recipe
		// SourceDir is the source tree root. The manifest path in the recipe
		// is relative to it.
		SourceDir string
		// Name is the image repository. Defaults to DefaultName.
		Name string
		// NoCache disables the engine layer cache.
		NoCache bool
		// Force rebuilds even when the tag already exists.
		Force bool
		// Pull refreshes the base image.
		Pull bool
		// RequirePinned fails the build on unpinned dependencies.
		RequirePinned bool
		// BinaryPath is the gantry binary copied into images that use the
		// gantry manager. Defaults to the running executable.
		BinaryPath string
	}

	// Result describes a built or planned image.
	Result struct {
		Tag            string
		CacheKey       string
		Dockerfile     string
		ManifestDigest string
		Unpinned       []manifest.Requirement
		// Cached is true when an existing image was reused.
		Cached bool
		// ContextDir is the kept build context, when WithKeepContext is set.
		ContextDir string
	}

	// Builder builds application images through a container engine.
	Builder struct {
		engine container.Engine
		opts   options
	}

	plan struct {
		Result
		filter     *Filter
		binaryPath string
		labels     map[string]string
	}
)

// NewBuilder creates a Builder.
func NewBuilder(engine container.Engine, opts ...Option) *Builder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{engine: engine, opts: o}
}

// Plan validates the request and computes the Dockerfile, cache key and tag
// without calling the engine.
func (b *Builder) Plan(req Request) (*Result, error) {
	p, err := b.plan(req)
	if err != nil {
		return nil, err
	}
	return &p.Result, nil
}

// Build produces the image, or reuses an existing one with the same tag. On
// failure no tag is left behind.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	p, err := b.plan(req)
	if err != nil {
		return nil, err
	}
	logger := b.opts.logger.With("tag", p.Tag)

	if !req.Force {
		exists, err := b.engine.ImageExists(ctx, p.Tag)
		if err != nil {
			logger.Debug("image lookup failed, building", "err", err)
		}
		if exists {
			logger.Info("image up to date")
			p.Cached = true
			return &p.Result, nil
		}
	}

	dir, cleanup, err := b.prepareBuildContext(p.Dockerfile, req.SourceDir, p.filter, p.binaryPath)
	if err != nil {
		return nil, err
	}
	if b.opts.keepContext {
		p.ContextDir = dir
		logger.Info("keeping build context", "dir", dir)
	} else {
		defer cleanup()
	}

	logger.Info("building image", "engine", b.engine.Name(), "base", req.Recipe.BaseImage)
	err = b.engine.Build(ctx, container.BuildOptions{
		ContextDir: dir,
		Dockerfile: DockerfileName,
		Tag:        p.Tag,
		Labels:     p.labels,
		NoCache:    req.NoCache,
		Pull:       req.Pull,
		Stdout:     b.opts.stdout,
		Stderr:     b.opts.stderr,
	})
	if err != nil {
		b.discardTag(p.Tag)
		return nil, err
	}

	exists, err := b.engine.ImageExists(ctx, p.Tag)
	if err != nil || !exists {
		return nil, buildError(p.Tag, errors.Join(ErrImageMissing, err))
	}

	logger.Info("image built", "cache_key", p.CacheKey[:12])
	return &p.Result, nil
}

// discardTag removes a tag a failed build may have left. It runs on a fresh
// context because the build context may already be cancelled. The build
// itself is never retried.
func (b *Builder) discardTag(tag string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if exists, err := b.engine.ImageExists(ctx, tag); err != nil || !exists {
		return
	}
	err := container.RetryTransient(ctx, cleanupAttempts, b.opts.retryBackoff, func() error {
		return b.engine.RemoveImage(ctx, tag, true)
	})
	if err != nil {
		b.opts.logger.Warn("failed to remove partial image", "tag", tag, "err", err)
	}
}

func (b *Builder) plan(req Request) (*plan, error) {
	if req.Recipe == nil {
		return nil, errors.New("build request has no recipe")
	}

	dockerfile, err := req.Recipe.Render()
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("render Dockerfile").
			WithIssue(issue.RecipeInvalidId).
			Wrap(err).
			BuildError()
	}

	filter, err := LoadFilter(req.SourceDir)
	if err != nil {
		return nil, err
	}

	m, err := b.loadManifest(req, filter)
	if err != nil {
		return nil, err
	}

	p := &plan{filter: filter}
	p.Dockerfile = dockerfile
	p.ManifestDigest = m.Digest()
	p.Unpinned = m.Unpinned()

	if len(p.Unpinned) > 0 {
		names := make([]string, len(p.Unpinned))
		for i, r := range p.Unpinned {
			names[i] = r.String()
		}
		if req.RequirePinned {
			return nil, issue.NewErrorContext().
				WithOperation("check dependency manifest").
				WithResource(req.Recipe.Manifest).
				WithIssue(issue.ManifestInvalidId).
				WithSuggestion("Pin each dependency with ==, or drop --require-pinned").
				Wrap(fmt.Errorf("%w: %s", ErrUnpinnedDependencies, strings.Join(names, ", "))).
				BuildError()
		}
		b.opts.logger.Warn("unpinned dependencies make the install step non-deterministic", "requirements", names)
	}

	if req.Recipe.NeedsBinary() {
		p.binaryPath = req.BinaryPath
		if p.binaryPath == "" {
			if p.binaryPath, err = os.Executable(); err != nil {
				return nil, fmt.Errorf("locate gantry binary: %w", err)
			}
		}
		if runtime.GOOS != "linux" {
			b.opts.logger.Warn("copying a non-linux gantry binary into the image", "goos", runtime.GOOS)
		}
	}

	p.CacheKey, err = cacheKey(dockerfile, p.ManifestDigest, req.SourceDir, filter, p.binaryPath)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = DefaultName
	}
	p.Tag = name + ":" + p.CacheKey[:12]
	if b.opts.tagSuffix != "" {
		p.Tag += "-" + b.opts.tagSuffix
	}

	p.labels = map[string]string{
		LabelCacheKey:       p.CacheKey,
		LabelManifestDigest: p.ManifestDigest,
		LabelApp:            req.Recipe.Launch.App,
		LabelBaseImage:      req.Recipe.BaseImage,
	}

	return p, nil
}

func (b *Builder) loadManifest(req Request, filter *Filter) (*manifest.Manifest, error) {
	manifestErr := func(err error) error {
		return issue.NewErrorContext().
			WithOperation("read dependency manifest").
			WithResource(req.Recipe.Manifest).
			WithIssue(issue.ManifestInvalidId).
			Wrap(err).
			BuildError()
	}

	excluded, err := filter.Excluded(req.Recipe.Manifest)
	if err != nil {
		return nil, err
	}
	if excluded {
		return nil, manifestErr(fmt.Errorf("%w: %s is excluded by %s", ErrManifestMissing, req.Recipe.Manifest, IgnoreFileName))
	}

	m, err := manifest.ParseFile(filepath.Join(req.SourceDir, filepath.FromSlash(req.Recipe.Manifest)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, manifestErr(fmt.Errorf("%w: %s", ErrManifestMissing, req.Recipe.Manifest))
	}
	if err != nil {
		return nil, manifestErr(err)
	}
	for _, r := range m.Requirements {
		if r.Local() {
			return nil, issue.NewErrorContext().
				WithOperation("read dependency manifest").
				WithResource(req.Recipe.Manifest).
				WithIssue(issue.ManifestInvalidId).
				WithSuggestion("Publish the package to an index or reference it by archive or VCS URL").
				Wrap(fmt.Errorf("%w: line %d: %s", ErrLocalDependency, r.Line, r.URL)).
				BuildError()
		}
	}
	return m, nil
}

func cacheKey(dockerfile, manifestDigest, sourceDir string, filter *Filter, binaryPath string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "dockerfile:%s\n", dockerfile)
	fmt.Fprintf(h, "manifest:%s\n", manifestDigest)

	treeHash, err := HashTree(sourceDir, filter)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(h, "source:%s\n", treeHash)

	if binaryPath != "" {
		binHash, err := HashFile(binaryPath)
		if err != nil {
			return "", fmt.Errorf("failed to hash gantry binary: %w", err)
		}
		fmt.Fprintf(h, "binary:%s\n", binHash)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func buildError(tag string, err error) error {
	return issue.NewErrorContext().
		WithOperation("build container image").
		WithResource(tag).
		WithIssue(issue.ImageBuildFailedId).
		Wrap(err).
		BuildError()
}
