package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/harvester/internal/storage/badger"
)

// listingLeaseTTL bounds how long a crashed listing run keeps the store claimed
const listingLeaseTTL = 2 * time.Hour

// leaseOwner identifies this process in the store lease
func leaseOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

// leaseTTL outlives the longest possible session
func leaseTTL() time.Duration {
	return config.Harvest.RunBudget() + config.Harvest.GraceBudget() + 10*time.Minute
}

// holdStoreLease claims the record store for owner so harvest and listing
// runs never rewrite the same file concurrently. Without a journal there is
// nothing to coordinate through and the release is a no-op.
func holdStoreLease(journal *badger.Journal, storePath, owner string, ttl time.Duration) (func() error, error) {
	if journal == nil {
		return func() error { return nil }, nil
	}
	release, err := journal.AcquireLease(storePath, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("record store %s is busy: %w", storePath, err)
	}
	return release, nil
}
