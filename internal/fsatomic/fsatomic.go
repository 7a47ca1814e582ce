// Package fsatomic provides the crash-safe filesystem primitives every
// pipeline component builds on: atomic file replacement, atomic copy, and
// the rename-based publish/claim move.
//
// The only portability assumption is that rename within a single directory
// tree is atomic with respect to concurrent observers. Everything else
// (fsync ordering, exclusive create) is plain POSIX.
package fsatomic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks in-flight files and directories. Readers of shared
// namespaces must skip names carrying this prefix.
const TempPrefix = ".tmp_"

// WriteFile atomically replaces path with data. The target is either fully
// updated or untouched, even if the process is killed mid-write: the data is
// written to a temp sibling, fsynced, and renamed onto the final path.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	// Any failure past this point must not leave the temp file behind.
	fail := func(e error) error {
		tmp.Close()
		os.Remove(tmpName)
		return e
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("writing %s: %w", tmpName, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing %s: %w", tmpName, err))
	}
	if err := tmp.Close(); err != nil {
		return fail(fmt.Errorf("closing %s: %w", tmpName, err))
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}
	return nil
}

// WriteJSON marshals v with indentation and atomically replaces path with it.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return WriteFile(path, append(data, '\n'))
}

// CopyFile atomically copies src to dst. A missing src is a no-op, not an
// error: callers treat auxiliary blobs as optional.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	return WriteFile(dst, data)
}

// Move relocates src to dst via rename. It is the identity-preserving move
// used both to publish a staged entry and to claim a shared one: it fails if
// src no longer exists, which is how claim races are lost safely.
func Move(src, dst string) error {
	return os.Rename(src, dst)
}

// Touch creates path as an empty file if absent, or leaves it as-is.
// Used for existence-triggered signal files.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("touching %s: %w", path, err)
	}
	return f.Close()
}

// Remove deletes path, treating a missing file as success.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// SweepTemp removes temp-prefixed leftovers from dir. Interrupted writes can
// strand temp files; they are invisible to readers, so the sweep is hygiene,
// not correctness. Missing dir is a no-op.
func SweepTemp(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), TempPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("sweeping %s: %w", e.Name(), err)
		}
	}
	return nil
}
