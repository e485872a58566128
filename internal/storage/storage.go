// Package storage persists bundle payloads and manifests on the local
// filesystem. Files are named after the content hash they hold, so writing a
// new version never touches the files the index currently points to.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/nebula-labs/nebula/internal/platform"
)

const (
	payloadFile  = "payload"
	manifestFile = "manifest"
)

var safeTag = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Backend stores payload bytes per bundle id and content hash.
type Backend interface {
	// Write stores the payload of id at hash and returns its path.
	Write(id, hash string, data []byte) (string, error)
	// WriteManifest stores the manifest of id at hash and returns its path.
	WriteManifest(id, hash string, data []byte) (string, error)
	// Read returns the content stored at path.
	Read(path string) ([]byte, error)
	// Discard deletes one file returned by Write or WriteManifest. A missing
	// file is not an error.
	Discard(path string) error
	// Retain deletes every file stored for id except keep.
	Retain(id string, keep ...string) error
	// Remove deletes everything stored for id. Removing an unknown id is not
	// an error.
	Remove(id string) error
}

// FileBackend lays bundles out as <root>/<id>/payload-<tag> and
// <root>/<id>/manifest-<tag>, where tag is derived from the content hash.
type FileBackend struct {
	root string
}

// NewFileBackend creates the root directory if needed and sweeps temp files
// left by interrupted writes.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	if _, err := platform.SweepTempFiles(root); err != nil {
		return nil, fmt.Errorf("sweeping storage root: %w", err)
	}
	return &FileBackend{root: root}, nil
}

// Root returns the storage root directory.
func (b *FileBackend) Root() string {
	return b.root
}

func (b *FileBackend) Write(id, hash string, data []byte) (string, error) {
	return b.write(id, payloadFile+"-"+tag(hash), data)
}

func (b *FileBackend) WriteManifest(id, hash string, data []byte) (string, error) {
	return b.write(id, manifestFile+"-"+tag(hash), data)
}

func (b *FileBackend) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (b *FileBackend) Discard(path string) error {
	if rel, err := filepath.Rel(b.root, path); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %s is outside the storage root", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discarding %s: %w", path, err)
	}
	return nil
}

func (b *FileBackend) Retain(id string, keep ...string) error {
	dir, err := b.bundleDir(id)
	if err != nil {
		return err
	}
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing bundle %s: %w", id, err)
	}
	var errs []error
	for _, f := range files {
		path := filepath.Join(dir, f.Name())
		if f.IsDir() || slices.Contains(keep, path) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (b *FileBackend) Remove(id string) error {
	dir, err := b.bundleDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing bundle %s: %w", id, err)
	}
	return nil
}

func (b *FileBackend) write(id, name string, data []byte) (string, error) {
	dir, err := b.bundleDir(id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := platform.WriteFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("storing %s for bundle %s: %w", name, id, err)
	}
	return path, nil
}

// tag turns a content hash into a file name suffix. Hashes that are not
// already safe file names are replaced by a digest of themselves.
func tag(hash string) string {
	if safeTag.MatchString(hash) && hash != "." && hash != ".." {
		return hash
	}
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:12])
}

// bundleDir rejects ids that would escape the storage root.
func (b *FileBackend) bundleDir(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid bundle id %q", id)
	}
	return filepath.Join(b.root, id), nil
}
