package engine

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// MetadataFile sits at the archive root of multi-system uploads.
const MetadataFile = "metadata.json"

// Metadata is the parsed metadata.json document.
type Metadata map[string]any

// ReadMetadata parses metadata.json. A missing or blank file is an empty map.
func ReadMetadata(a *Archive) (Metadata, error) {
	b, err := a.Content(MetadataFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetadataFile, err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Metadata{}, nil
	}
	var md Metadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	if md == nil {
		md = Metadata{}
	}
	return md, nil
}

// HasSystems reports whether the archive bundles several hosts.
func (m Metadata) HasSystems() bool {
	_, ok := m["systems"]
	return ok
}

// String returns the string value at key, or "".
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}
