// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gantryhq/gantry/internal/recipe"
)

// DockerfileName is the Dockerfile name inside the build context.
const DockerfileName = "Dockerfile"

// prepareBuildContext lays out a temporary build context:
//
//	Dockerfile
//	src/    the filtered source tree
//	gantry  the gantry binary, when binaryPath is set
func (b *Builder) prepareBuildContext(dockerfile, sourceDir string, filter *Filter, binaryPath string) (dir string, cleanup func(), err error) {
	parent := b.opts.contextParent
	if parent == "" {
		parent = defaultContextParent()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}

	dir, err = os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	if err := CopyTree(sourceDir, filepath.Join(dir, recipe.SourceDir), filter); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy source tree: %w", err)
	}

	if binaryPath != "" {
		dst := filepath.Join(dir, recipe.BinaryName)
		if err := CopyFile(binaryPath, dst); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to copy gantry binary: %w", err)
		}
		if err := os.Chmod(dst, 0o755); err != nil {
			cleanup()
			return "", nil, err
		}
	}

	if err := os.WriteFile(filepath.Join(dir, DockerfileName), []byte(dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return dir, cleanup, nil
}

// defaultContextParent prefers a visible directory in $HOME because
// snap-confined Docker cannot read /tmp or hidden directories.
func defaultContextParent() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, err := os.Stat(home); err == nil {
			return filepath.Join(home, "gantry-build")
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, ".gantry-build")
	}
	return filepath.Join(os.TempDir(), "gantry-build")
}

// CopyTree copies the entries of src kept by filter into dst.
func CopyTree(src, dst string, filter *Filter) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return walkFiltered(src, filter, func(rel string, d fs.DirEntry) error {
		from := filepath.Join(src, rel)
		to := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(to, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(from)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
				return err
			}
			return os.Symlink(target, to)
		case info.Mode().IsRegular():
			if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
				return err
			}
			return CopyFile(from, to)
		default:
			// Sockets, devices and pipes cannot be part of a build context.
			return nil
		}
	})
}

// CopyFile copies a file from src to dst, keeping its permission bits.
func CopyFile(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return nil
}
