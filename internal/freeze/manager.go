// Package freeze tracks temporary exclusivity holds on assets. A frozen
// asset cannot back a second match until the hold expires and is released.
package freeze

import (
	"errors"
	"fmt"
	"time"

	"github.com/crptomonkeys/monKey-matching/internal/store"
)

// ErrAlreadyLocked is returned by TryLock when a live freeze record exists.
var ErrAlreadyLocked = errors.New("freeze: asset already frozen")

// ErrStillFrozen is returned when a release is attempted before the freeze
// duration has elapsed. The message matches the reason surfaced to callers.
var ErrStillFrozen = errors.New("Could not unfreeze the asset")

// Manager enforces the freeze rules over the store. It never extends or
// refreshes an existing hold.
type Manager struct {
	db       store.DB
	duration time.Duration
}

// NewManager creates a manager with the configured freeze duration.
func NewManager(db store.DB, duration time.Duration) *Manager {
	return &Manager{db: db, duration: duration}
}

// Expired reports whether a freeze record taken at lockedAt has run out at
// now. The boundary itself counts as expired.
func (m *Manager) Expired(lockedAt, now time.Time) bool {
	return now.Sub(lockedAt) >= m.duration
}

// TryLock creates a freeze record for the asset. Fails with
// ErrAlreadyLocked when a record already exists, expired or not; expired
// records must be released first.
func (m *Manager) TryLock(assetID uint64, owner string, now time.Time) error {
	err := m.db.InsertFreeze(&store.FrozenAsset{AssetID: assetID, Owner: owner, Time: now})
	if errors.Is(err, store.ErrFrozenExists) {
		return ErrAlreadyLocked
	}
	return err
}

// Unlock removes the freeze record for the asset if it has expired and
// reports whether a record was released. A missing record is a no-op; a
// live record fails with ErrStillFrozen.
func (m *Manager) Unlock(assetID uint64, now time.Time) (bool, error) {
	rec, err := m.db.GetFreeze(assetID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !m.Expired(rec.Time, now) {
		return false, ErrStillFrozen
	}

	if err := m.db.DeleteFreeze(assetID); err != nil {
		return false, err
	}
	return true, nil
}

// UnlockAllExpired releases every expired freeze held by owner. Live
// freezes are left untouched and the scan continues past them.
func (m *Manager) UnlockAllExpired(owner string, now time.Time) (int, error) {
	freezes, err := m.db.FreezesByOwner(owner)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, f := range freezes {
		if !m.Expired(f.Time, now) {
			continue
		}
		if err := m.db.DeleteFreeze(f.AssetID); err != nil {
			return released, fmt.Errorf("failed to release asset %d: %w", f.AssetID, err)
		}
		released++
	}

	return released, nil
}

// Precheck walks the presented asset ids and partitions their freeze
// state: expired holds are returned for release, a live hold on any of
// them aborts with ErrStillFrozen, unfrozen assets pass through.
func (m *Manager) Precheck(assetIDs []uint64, now time.Time) ([]uint64, error) {
	var release []uint64
	for _, id := range assetIDs {
		rec, err := m.db.GetFreeze(id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if !m.Expired(rec.Time, now) {
			return nil, ErrStillFrozen
		}
		release = append(release, id)
	}

	return release, nil
}
