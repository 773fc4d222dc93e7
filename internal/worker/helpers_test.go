package worker

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"insights-gateway/internal/config"
	"insights-gateway/internal/engine"
	"insights-gateway/internal/workspace"

	"github.com/klauspost/compress/gzip"
)

// tarGz builds a gzip-compressed tar with every file under one top dir.
func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	if err := tw.WriteHeader(&tar.Header{Name: "insights-archive/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: time.Unix(0, 0)}); err != nil {
		t.Fatal(err)
	}
	for name, body := range files {
		hdr := &tar.Header{Name: "insights-archive/" + name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body)), ModTime: time.Unix(0, 0)}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func writeFile(t *testing.T, dir string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, "upload")
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func testConfig() config.Config {
	return config.Config{
		ExtractTimeout:    time.Minute,
		EvalTimeout:       time.Minute,
		MaxExtractedBytes: 1 << 20,
		MaxArchiveEntries: 100,
	}
}

func acquire(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir()).Acquire()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ws.Release() })
	return ws
}

func ruleSet(rules ...engine.Rule) *engine.RuleSet {
	return engine.NewRuleSet(engine.Package{Name: "test", Version: "1", Rules: rules})
}

func alwaysHit(id string) engine.Rule {
	return engine.RuleFunc{ID: id, Fn: func(context.Context, *engine.Archive) (*engine.Hit, error) {
		return &engine.Hit{Key: "HIT"}, nil
	}}
}

func panics() engine.Rule {
	return engine.RuleFunc{ID: "panics", Fn: func(context.Context, *engine.Archive) (*engine.Hit, error) {
		panic("rule blew up")
	}}
}

// put is one recorded ObjectStore write.
type put struct {
	bucket, key string
	body        []byte
}

type fakeStore struct {
	mu   sync.Mutex
	puts []put
	fail map[string]error // by bucket
}

func (s *fakeStore) Upload(_ context.Context, body io.ReadSeeker, size int64, bucket, key string) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return io.ErrShortBuffer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[bucket]; err != nil {
		return err
	}
	s.puts = append(s.puts, put{bucket: bucket, key: key, body: b})
	return nil
}

func (s *fakeStore) calls() []put {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]put(nil), s.puts...)
}
