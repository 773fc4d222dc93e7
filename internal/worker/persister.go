package worker

import (
	"context"
	"io"
	"os"
	"time"

	"insights-gateway/internal/archive"
	"insights-gateway/internal/config"
	"insights-gateway/internal/model"

	"github.com/rs/zerolog"
)

// Persister copies accepted archives to object storage.
//
// Persistence is advisory: every failure is logged at warn level and
// swallowed, so Persist never affects the response.
type Persister struct {
	store     ObjectStore // nil: persistence disabled
	bucket    string
	secondary string
	accounts  map[string]struct{}
	now       func() time.Time
}

// NewPersister wires store according to cfg. store is ignored unless
// bucket, key id and secret are all configured.
func NewPersister(cfg config.Config, store ObjectStore) *Persister {
	p := &Persister{
		bucket:    cfg.S3Bucket,
		secondary: cfg.SecondaryBucket,
		accounts:  make(map[string]struct{}, len(cfg.SecondaryAccounts)),
		now:       time.Now,
	}
	if cfg.PersistenceEnabled() {
		p.store = store
	}
	for _, a := range cfg.SecondaryAccounts {
		p.accounts[a] = struct{}{}
	}
	return p
}

// Enabled reports whether archives are written anywhere.
func (p *Persister) Enabled() bool { return p.store != nil }

// WithClock replaces the clock used for the secondary key date.
func (p *Persister) WithClock(now func() time.Time) *Persister {
	p.now = now
	return p
}

func (p *Persister) secondaryAllowed(accountID string) bool {
	if p.secondary == "" || accountID == "" {
		return false
	}
	_, ok := p.accounts[accountID]
	return ok
}

// Persist writes the archive at path to the primary bucket and, for
// allow-listed accounts, to the secondary bucket. It reports whether any
// write was attempted.
func (p *Persister) Persist(ctx context.Context, path, systemID string, typ archive.Type, accountID string) bool {
	if p.store == nil || systemID == "" {
		return false
	}
	log := zerolog.Ctx(ctx)

	f, err := os.Open(path)
	if err != nil {
		p.warn(log, err, systemID, p.bucket, "")
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		p.warn(log, err, systemID, p.bucket, "")
		return false
	}
	size := info.Size()

	// Each write gets the file from offset 0; the store may leave it anywhere.
	upload := func(bucket, key string) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return p.store.Upload(ctx, f, size, bucket, key)
	}

	key := PrimaryKey(systemID, typ)
	if err := upload(p.bucket, key); err != nil {
		p.warn(log, err, systemID, p.bucket, key)
	} else {
		log.Debug().Str("bucket", p.bucket).Str("key", key).Int64("size", size).Msg("archive persisted")
	}

	if p.secondaryAllowed(accountID) {
		key := SecondaryKey(accountID, systemID, p.now(), typ)
		if err := upload(p.secondary, key); err != nil {
			p.warn(log, err, systemID, p.secondary, key)
		} else {
			log.Debug().Str("bucket", p.secondary).Str("key", key).Str("account", accountID).Msg("archive persisted")
		}
	}
	return true
}

func (p *Persister) warn(log *zerolog.Logger, err error, systemID, bucket, key string) {
	err = model.WrapError(model.KindStoragePersistence, err, "Archive persistence failed")
	log.Warn().Err(err).
		Str("system_id", systemID).
		Str("bucket", bucket).
		Str("key", key).
		Msg("failed to persist archive")
}
