package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"insights-gateway/internal/archive"
	"insights-gateway/internal/config"
)

func persistConfig() config.Config {
	return config.Config{
		S3Bucket:           "primary",
		AWSAccessKeyID:     "id",
		AWSSecretAccessKey: "secret",
		SecondaryBucket:    "secondary",
		SecondaryAccounts:  []string{"540155", "477931"},
	}
}

var fixedDay = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

func TestPersistDisabledWithoutCredentials(t *testing.T) {
	for name, cfg := range map[string]config.Config{
		"nothing":   {},
		"no secret": {S3Bucket: "b", AWSAccessKeyID: "id"},
		"no bucket": {AWSAccessKeyID: "id", AWSSecretAccessKey: "s"},
	} {
		t.Run(name, func(t *testing.T) {
			store := &fakeStore{}
			p := NewPersister(cfg, store)
			path := writeFile(t, t.TempDir(), []byte("data"))
			if p.Enabled() || p.Persist(context.Background(), path, "sys", archive.GzipTar, "540155") {
				t.Fatal("persistence should be disabled")
			}
			if len(store.calls()) != 0 {
				t.Fatalf("writes = %v", store.calls())
			}
		})
	}
}

func TestPersistSkipsEmptySystemID(t *testing.T) {
	store := &fakeStore{}
	p := NewPersister(persistConfig(), store)
	if p.Persist(context.Background(), writeFile(t, t.TempDir(), []byte("x")), "", archive.Tar, "540155") {
		t.Fatal("empty system id should skip")
	}
	if len(store.calls()) != 0 {
		t.Fatalf("writes = %v", store.calls())
	}
}

func TestPersistPrimaryOnly(t *testing.T) {
	store := &fakeStore{}
	p := NewPersister(persistConfig(), store).WithClock(func() time.Time { return fixedDay })
	p.Persist(context.Background(), writeFile(t, t.TempDir(), []byte("payload")), "sys-1", archive.Bzip2Tar, "not-listed")

	calls := store.calls()
	if len(calls) != 1 || calls[0].bucket != "primary" || calls[0].key != "sys-1.tar.bz" {
		t.Fatalf("writes = %+v", calls)
	}
}

func TestPersistPrimaryAndSecondary(t *testing.T) {
	store := &fakeStore{}
	p := NewPersister(persistConfig(), store).WithClock(func() time.Time { return fixedDay })
	data := []byte("archive bytes")
	p.Persist(context.Background(), writeFile(t, t.TempDir(), data), "sys-1", archive.GzipTar, "540155")

	calls := store.calls()
	if len(calls) != 2 {
		t.Fatalf("writes = %+v", calls)
	}
	if calls[0].bucket != "primary" || calls[0].key != "sys-1.tar.gz" {
		t.Fatalf("primary = %+v", calls[0])
	}
	if calls[1].bucket != "secondary" || calls[1].key != "540155/sys-1/2024-05-17.tar.gz" {
		t.Fatalf("secondary = %+v", calls[1])
	}
	for _, c := range calls {
		if !bytes.Equal(c.body, data) {
			t.Fatalf("%s got %q", c.bucket, c.body)
		}
	}
}

func TestPersistSecondaryNeedsBucket(t *testing.T) {
	cfg := persistConfig()
	cfg.SecondaryBucket = ""
	store := &fakeStore{}
	NewPersister(cfg, store).Persist(context.Background(), writeFile(t, t.TempDir(), []byte("x")), "sys-1", archive.Tar, "540155")
	if len(store.calls()) != 1 {
		t.Fatalf("writes = %+v", store.calls())
	}
}

func TestPersistFailuresAreSwallowed(t *testing.T) {
	store := &fakeStore{fail: map[string]error{"primary": errors.New("access denied")}}
	p := NewPersister(persistConfig(), store).WithClock(func() time.Time { return fixedDay })

	if !p.Persist(context.Background(), writeFile(t, t.TempDir(), []byte("x")), "sys-1", archive.Tar, "477931") {
		t.Fatal("a write should have been attempted")
	}
	calls := store.calls()
	if len(calls) != 1 || calls[0].bucket != "secondary" {
		t.Fatalf("secondary should still be written: %+v", calls)
	}

	// missing source file is also only a warning
	p.Persist(context.Background(), "/does/not/exist", "sys-1", archive.Tar, "")
}

// readOnce reads body from wherever it is positioned and never rewinds.
type readOnce struct {
	bodies [][]byte
}

func (s *readOnce) Upload(_ context.Context, body io.ReadSeeker, size int64, _, _ string) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.bodies = append(s.bodies, b)
	return nil
}

func TestPersistRewindsBetweenWrites(t *testing.T) {
	store := &readOnce{}
	p := NewPersister(persistConfig(), store).WithClock(func() time.Time { return fixedDay })
	data := []byte("full archive body")
	p.Persist(context.Background(), writeFile(t, t.TempDir(), data), "sys-1", archive.Tar, "540155")

	if len(store.bodies) != 2 {
		t.Fatalf("writes = %d, want 2", len(store.bodies))
	}
	for i, b := range store.bodies {
		if !bytes.Equal(b, data) {
			t.Fatalf("write %d got %q, want %q", i, b, data)
		}
	}
}
