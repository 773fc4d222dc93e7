// Package archive classifies uploaded archives and extracts them safely.
package archive

import (
	"insights-gateway/internal/model"

	"github.com/gabriel-vasile/mimetype"
)

// Type is the closed set of archive formats the gateway accepts.
type Type int

const (
	TypeUnknown Type = iota
	GzipTar
	Bzip2Tar
	XzTar
	Tar
)

func (t Type) String() string {
	switch t {
	case GzipTar:
		return "gzip-tar"
	case Bzip2Tar:
		return "bzip2-tar"
	case XzTar:
		return "xz-tar"
	case Tar:
		return "tar"
	default:
		return "unknown"
	}
}

// Extension is the object-key suffix used when the archive is persisted.
// xz archives share the gzip suffix, matching the keys already in the buckets.
func (t Type) Extension() string {
	switch t {
	case GzipTar, XzTar:
		return "tar.gz"
	case Bzip2Tar:
		return "tar.bz"
	case Tar:
		return "tar"
	default:
		return ""
	}
}

// mimeTable is checked in order; aliases (x-gzip vs gzip) are resolved by
// mimetype itself.
var mimeTable = []struct {
	mime string
	typ  Type
}{
	{"application/x-xz", XzTar},
	{"application/x-gzip", GzipTar},
	{"application/gzip", GzipTar},
	{"application/x-bzip2", Bzip2Tar},
	{"application/x-tar", Tar},
}

// Sniff detects the archive type of the file at path from its content.
// The declared Content-Type of the upload is never consulted.
func Sniff(path string) (Type, string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return TypeUnknown, "", err
	}
	for _, e := range mimeTable {
		if m.Is(e.mime) {
			return e.typ, m.String(), nil
		}
	}
	return TypeUnknown, m.String(), model.NewError(model.KindUnsupportedArchiveType,
		"Unsupported archive type: %s", m.String())
}
