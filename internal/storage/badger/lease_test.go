package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_Lease(t *testing.T) {
	j := openJournal(t)

	release, err := j.AcquireLease("./mobile_phones.json", "host-a:101", time.Hour)
	require.NoError(t, err)

	_, err = j.AcquireLease("./mobile_phones.json", "host-b:202", time.Hour)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	assert.Contains(t, err.Error(), "host-a:101")

	other, err := j.AcquireLease("./other.json", "host-b:202", time.Hour)
	require.NoError(t, err, "leases are per name")
	require.NoError(t, other())

	require.NoError(t, release())
	require.NoError(t, release(), "release is idempotent")

	again, err := j.AcquireLease("./mobile_phones.json", "host-b:202", time.Hour)
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestJournal_LeaseRequiresOwner(t *testing.T) {
	j := openJournal(t)

	_, err := j.AcquireLease("store", "", time.Minute)
	assert.Error(t, err)
}
