package badger

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrLeaseHeld is returned when another session owns the lease
var ErrLeaseHeld = errors.New("lease held by another session")

// leaseKey lives outside the badgerhold key space (bh_<Type>:...)
func leaseKey(name string) []byte {
	return []byte("lease:" + name)
}

// AcquireLease claims name for owner until ttl passes or the returned release
// func is called. A lease left behind by a crashed process expires on its own.
func (j *Journal) AcquireLease(name, owner string, ttl time.Duration) (func() error, error) {
	if name == "" || owner == "" {
		return nil, errors.New("lease name and owner are required")
	}
	db := j.db.Store().Badger()
	key := leaseKey(name)

	err := db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			return item.Value(func(holder []byte) error {
				return fmt.Errorf("%w: %s held by %s", ErrLeaseHeld, name, holder)
			})
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.SetEntry(badger.NewEntry(key, []byte(owner)).WithTTL(ttl))
	})
	if err != nil {
		return nil, err
	}

	j.logger.Debug().Str("lease", name).Str("owner", owner).Dur("ttl", ttl).Msg("Lease acquired")

	release := func() error {
		return db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			holder, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			// Expired and re-acquired by someone else
			if string(holder) != owner {
				return nil
			}
			return txn.Delete(key)
		})
	}
	return release, nil
}
