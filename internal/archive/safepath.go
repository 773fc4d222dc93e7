package archive

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errSkipEntry = errors.New("entry resolves to extraction root")

// entryPath validates a tar entry name and joins it under root.
// Leading slashes are stripped the way GNU tar does; anything that would
// land outside root is rejected.
func entryPath(root, name string) (string, error) {
	name = strings.TrimLeft(filepath.FromSlash(name), string(filepath.Separator))
	if name == "" {
		return "", errSkipEntry
	}
	clean := filepath.Clean(name)
	if clean == "." {
		return "", errSkipEntry
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("parent traversal is not allowed: %q", name)
	}

	full := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return "", fmt.Errorf("compare paths: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %q", name)
	}
	return full, nil
}
