// Package workspace hands out one private scratch directory per upload and
// removes it when the upload finishes.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const dirPattern = "insights-upload-*"

// Manager creates workspaces under a common parent directory.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at dir. An empty dir means os.TempDir().
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Manager{root: dir}
}

// Root is the parent directory of every workspace.
func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh, uniquely named directory (os.MkdirTemp uses a
// random suffix, so concurrent requests never collide).
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(m.root, dirPattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Workspace is a directory owned by exactly one request.
type Workspace struct {
	dir string

	once sync.Once
	err  error
}

// Dir is the absolute path of the workspace.
func (w *Workspace) Dir() string { return w.dir }

// Path joins elem under the workspace directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Mkdir creates a subdirectory and returns its path.
func (w *Workspace) Mkdir(name string) (string, error) {
	p := w.Path(name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}

// Release removes the workspace recursively. Only the first call does any
// work; later calls return the first result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}
