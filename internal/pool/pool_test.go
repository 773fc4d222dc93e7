package pool

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestCopy(t *testing.T) {
	src := strings.Repeat("abc", CopyBufferSize)
	var dst bytes.Buffer
	n, err := Copy(&dst, strings.NewReader(src))
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != int64(len(src)) || dst.String() != src {
		t.Fatalf("copied %d bytes, content mismatch", n)
	}
}

func TestGzipReaderReuse(t *testing.T) {
	for _, payload := range []string{"first payload", "second payload"} {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte(payload))
		_ = zw.Close()

		zr, err := GetGzipReader(&buf)
		if err != nil {
			t.Fatalf("GetGzipReader: %v", err)
		}
		var out bytes.Buffer
		if _, err := Copy(&out, zr); err != nil {
			t.Fatalf("read: %v", err)
		}
		PutGzipReader(zr)
		if out.String() != payload {
			t.Fatalf("got %q, want %q", out.String(), payload)
		}
	}
}

func TestGetGzipReaderRejectsGarbage(t *testing.T) {
	if _, err := GetGzipReader(strings.NewReader("not gzip at all")); err == nil {
		t.Fatal("expected header error")
	}
}
