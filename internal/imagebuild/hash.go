// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// HashFile returns the hex SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashTree hashes every file under root that the filter keeps, by relative
// path, executable bit and contents. Modification times are ignored so that
// a fresh checkout hashes like the original.
func HashTree(root string, filter *Filter) (string, error) {
	h := sha256.New()
	err := walkFiltered(root, filter, func(rel string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		full := filepath.Join(root, rel)
		switch {
		case d.IsDir():
			fmt.Fprintf(h, "d %s\n", filepath.ToSlash(rel))
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "l %s %s\n", filepath.ToSlash(rel), target)
		case info.Mode().IsRegular():
			sum, err := HashFile(full)
			if err != nil {
				return err
			}
			fmt.Fprintf(h, "f %s %t %s\n", filepath.ToSlash(rel), info.Mode()&0o111 != 0, sum)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hash source tree: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
