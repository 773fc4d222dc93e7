package pool

import (
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Pools for the upload hot path
//
// Every upload streams up to 100 MiB to disk and then decompresses and
// extracts it. Copy buffers and gzip readers are reused so concurrent
// uploads do not each allocate their own.
// ---------------------------------------------------------------

// CopyBufferSize is the size of buffers handed out by CopyBufPool.
const CopyBufferSize = 64 * 1024

var (
	// CopyBufPool:
	//   - scratch buffers for io.CopyBuffer (intake, tar extraction)
	//   - stored as *[]byte so Put does not allocate
	CopyBufPool = sync.Pool{
		New: func() any {
			b := make([]byte, CopyBufferSize)
			return &b
		},
	}

	// GzipReaderPool:
	//   - gzip.Reader keeps a large decompression window; Reset reuses it
	GzipReaderPool = sync.Pool{
		New: func() any { return new(gzip.Reader) },
	}
)

// Copy is io.CopyBuffer with a pooled buffer.
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	bp := CopyBufPool.Get().(*[]byte)
	defer CopyBufPool.Put(bp)
	return io.CopyBuffer(dst, src, *bp)
}

// GetGzipReader returns a pooled gzip reader reset onto r.
// Callers return it with PutGzipReader once done.
func GetGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := GzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		GzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

// PutGzipReader closes zr and hands it back to the pool.
func PutGzipReader(zr *gzip.Reader) {
	_ = zr.Close()
	GzipReaderPool.Put(zr)
}
