package archive

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"insights-gateway/internal/model"
	"insights-gateway/internal/pool"

	"github.com/ulikunitz/xz"
)

var errLimit = errors.New("extraction limit exceeded")

// Limits bounds what a single archive may expand to.
// Zero values mean "no limit".
type Limits struct {
	MaxBytes   int64
	MaxEntries int
}

// Extracted describes an archive unpacked into a workspace.
type Extracted struct {
	Type  Type
	Dir   string // extraction directory
	Root  string // archive root: Dir, or its single top-level directory
	Files int
	Bytes int64
}

// Extract unpacks the archive at src into dest.
//
// Only directories and regular files are materialised; links and device
// nodes are skipped. A corrupt stream fails with InvalidArchive, exceeding
// lim fails with PayloadTooLarge, and a ctx deadline fails with
// EvaluationTimeout.
func Extract(ctx context.Context, src string, typ Type, dest string, lim Limits) (*Extracted, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r, release, err := decompressor(typ, f)
	if err != nil {
		return nil, model.WrapError(model.KindInvalidArchive, err, "Invalid archive: %v", err)
	}
	defer release()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	out := &Extracted{Type: typ, Dir: dest}
	tr := tar.NewReader(r)
	entries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, ctxError(err, "extraction")
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArchive, err, "Invalid archive: %v", err)
		}

		entries++
		if lim.MaxEntries > 0 && entries > lim.MaxEntries {
			return nil, model.NewError(model.KindPayloadTooLarge,
				"Archive has more than %d entries", lim.MaxEntries)
		}

		target, err := entryPath(dest, hdr.Name)
		if errors.Is(err, errSkipEntry) {
			continue
		}
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArchive, err, "Invalid archive: unsafe entry %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("create %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			remaining := int64(-1)
			if lim.MaxBytes > 0 {
				remaining = lim.MaxBytes - out.Bytes
			}
			n, err := writeFile(target, tr, remaining)
			out.Bytes += n
			if errors.Is(err, errLimit) {
				return nil, model.NewError(model.KindPayloadTooLarge,
					"Archive expands beyond %d bytes", lim.MaxBytes)
			}
			if err != nil {
				return nil, err
			}
			out.Files++
		default:
			// symlinks, hardlinks, devices, fifos
			continue
		}
	}

	root, err := findRoot(dest)
	if err != nil {
		return nil, err
	}
	out.Root = root
	return out, nil
}

// decompressor wraps f according to typ. release must always be called.
func decompressor(typ Type, f io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch typ {
	case GzipTar:
		zr, err := pool.GetGzipReader(f)
		if err != nil {
			return nil, noop, err
		}
		return zr, func() { pool.PutGzipReader(zr) }, nil
	case Bzip2Tar:
		return bzip2.NewReader(f), noop, nil
	case XzTar:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case Tar:
		return f, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported archive type %s", typ)
	}
}

// writeFile copies one entry to disk. remaining < 0 disables the size check.
func writeFile(target string, r io.Reader, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create parent of %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", target, err)
	}

	src := r
	if remaining >= 0 {
		src = io.LimitReader(r, remaining+1)
	}
	n, err := pool.Copy(out, src)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return n, model.WrapError(model.KindInvalidArchive, err, "Invalid archive: %v", err)
	}
	if remaining >= 0 && n > remaining {
		return n, errLimit
	}
	return n, nil
}

// findRoot returns dir, or its only child when that child is a directory.
func findRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read extraction dir: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func ctxError(err error, stage string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.WrapError(model.KindEvaluationTimeout, err, "Archive %s timed out", stage)
	}
	return fmt.Errorf("%s aborted: %w", stage, err)
}
