package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/omkarshukla84/klymo-client/contract"
	"github.com/omkarshukla84/klymo-client/domain"
	"github.com/omkarshukla84/klymo-client/errors"
)

const (
	deviceIDKey   = "anon_chat_device_id"
	dailyStatsKey = "anon_chat_daily_stats"

	// fingerprintSalt is fixed and not secret: it only namespaces the hash.
	fingerprintSalt = "anon_chat_v1_salt"

	DefaultDailyLimit = 100
)

type dailyStats struct {
	Count      int    `cbor:"count"`
	Date       string `cbor:"date"`
	LastActive int64  `cbor:"last_active"`
}

// IdentityRepository is the Device Identity Store. It is the only writer of
// the durable store.
type IdentityRepository struct {
	db            *badger.DB
	fingerprinter contract.Fingerprinter
	log           *slog.Logger
	now           func() time.Time
	mu            sync.Mutex
}

func NewIdentityRepository(db *badger.DB, fingerprinter contract.Fingerprinter, log *slog.Logger) *IdentityRepository {
	return &IdentityRepository{db: db, fingerprinter: fingerprinter, log: log, now: time.Now}
}

// DeriveDeviceID hashes the raw fingerprint with the fixed salt and returns
// the hex digest. The same fingerprint always yields the same id.
func DeriveDeviceID(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint + fingerprintSalt))
	return hex.EncodeToString(sum[:])
}

// GetOrCreateID returns the persisted identifier, deriving and persisting it
// on first use. Any storage or fingerprint failure is returned as an error and
// the caller must not queue.
func (r *IdentityRepository) GetOrCreateID(ctx context.Context) (string, error) {
	if r.db == nil {
		return "", errors.ErrStorageUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok, err := get(r.db, deviceIDKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	if ok && len(raw) > 0 {
		return string(raw), nil
	}

	if r.fingerprinter == nil {
		return "", errors.ErrFingerprintUnavailable
	}
	fingerprint, err := r.fingerprinter.Fingerprint(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrFingerprintUnavailable, err)
	}
	if fingerprint == "" {
		return "", errors.ErrFingerprintUnavailable
	}

	id := DeriveDeviceID(fingerprint)
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceIDKey), []byte(id))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	r.log.Info("Device identity derived")
	return id, nil
}

// GetDailyCount applies the lazy reset: a record from another day counts as
// zero but is not rewritten until the next increment.
func (r *IdentityRepository) GetDailyCount() (int, error) {
	if r.db == nil {
		return 0, errors.ErrStorageUnavailable
	}
	stats, ok, err := r.loadStats()
	if err != nil {
		return 0, err
	}
	if !ok || stats.Date != domain.DateLabel(r.now()) {
		return 0, nil
	}
	return stats.Count, nil
}

// IncrementDailyCount persists count+1 under today's label.
func (r *IdentityRepository) IncrementDailyCount() error {
	if r.db == nil {
		return errors.ErrStorageUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.GetDailyCount()
	if err != nil {
		return err
	}
	now := r.now()
	value, err := encodeRecord(dailyStats{
		Count:      current + 1,
		Date:       domain.DateLabel(now),
		LastActive: now.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dailyStatsKey), value)
	})
}

// IsLimitReached reports whether today's count has reached limit.
// A non-positive limit falls back to DefaultDailyLimit.
func (r *IdentityRepository) IsLimitReached(limit int) (bool, error) {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	count, err := r.GetDailyCount()
	if err != nil {
		return false, err
	}
	return count >= limit, nil
}

// Identity returns a snapshot of the stored identity without deriving one.
func (r *IdentityRepository) Identity() (domain.DeviceIdentity, error) {
	if r.db == nil {
		return domain.DeviceIdentity{}, errors.ErrStorageUnavailable
	}
	raw, _, err := get(r.db, deviceIDKey)
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	stats, _, err := r.loadStats()
	if err != nil {
		return domain.DeviceIdentity{}, err
	}
	identity := domain.DeviceIdentity{
		ID:            string(raw),
		DailyCount:    stats.Count,
		LastCountDate: stats.Date,
	}
	if stats.LastActive > 0 {
		identity.LastActiveAt = time.UnixMilli(stats.LastActive)
	}
	return identity, nil
}

// loadStats treats an undecodable record as absent. A storage failure is
// returned, so limit checks fail closed.
func (r *IdentityRepository) loadStats() (dailyStats, bool, error) {
	var stats dailyStats
	ok, err := getRecord(r.db, dailyStatsKey, &stats)
	switch {
	case err == nil:
	case isDecodeError(err):
		r.log.Warn("Ignoring unreadable daily stats", "err", err)
		return dailyStats{}, false, nil
	default:
		return dailyStats{}, false, fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return stats, ok, nil
}
