package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// publicPrefix is the URL prefix the router serves the storage root under.
const publicPrefix = "/files/"

// Disk stores objects as files under a root directory. URLs map 1:1 to the
// relative path under /files/, served statically.
type Disk struct {
	root string
}

// NewDisk creates the root directory if needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Disk{root: root}, nil
}

// Root returns the directory objects live under, for static file serving.
func (d *Disk) Root() string { return d.root }

func (d *Disk) Put(_ context.Context, key string, data []byte) (string, error) {
	path, err := d.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return publicPrefix + key, nil
}

func (d *Disk) Delete(_ context.Context, key string) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// resolve maps a key to an absolute path, refusing anything that would
// escape the root.
func (d *Disk) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

// KeyFromURL recovers the object key from a public URL path, or "" when the
// URL is not one of ours. Used by cleanup when blocks are deleted.
func KeyFromURL(url string) string {
	if !strings.HasPrefix(url, publicPrefix) {
		return ""
	}
	return strings.TrimPrefix(url, publicPrefix)
}
