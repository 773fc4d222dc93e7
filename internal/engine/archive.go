// Package engine evaluates an extracted diagnostic archive against the
// loaded rule packages.
//
// The gateway only relies on the contract exposed here: Select picks an
// Evaluator for an archive root and Process returns either a result
// document or the reason the archive cannot be evaluated.
package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Archive is a read-only view over an extracted archive root.
type Archive struct {
	root string
}

// NewArchive wraps an extraction root.
func NewArchive(root string) *Archive {
	return &Archive{root: root}
}

// Root is the directory the view reads from.
func (a *Archive) Root() string { return a.root }

func (a *Archive) resolve(rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q is outside the archive", rel)
	}
	return filepath.Join(a.root, rel), nil
}

// Content returns the bytes of rel. A missing file yields (nil, nil).
func (a *Archive) Content(rel string) ([]byte, error) {
	p, err := a.resolve(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

// Text is Content trimmed of surrounding whitespace; errors read as "".
func (a *Archive) Text(rel string) string {
	b, err := a.Content(rel)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}

// Exists reports whether rel is present in the archive.
func (a *Archive) Exists(rel string) bool {
	p, err := a.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Sub returns a view rooted at the directory name, if it exists.
func (a *Archive) Sub(name string) (*Archive, bool) {
	p, err := a.resolve(name)
	if err != nil {
		return nil, false
	}
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return nil, false
	}
	return &Archive{root: p}, true
}

var hostnameFiles = []string{
	"insights_commands/hostname",
	"hostname",
	"etc/hostname",
}

// Hostname returns the first hostname recorded in the archive, or "".
func (a *Archive) Hostname() string {
	for _, f := range hostnameFiles {
		if h := a.Text(f); h != "" {
			return h
		}
	}
	return ""
}
