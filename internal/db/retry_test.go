package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSQLiteBusy(t *testing.T) {
	assert.False(t, isSQLiteBusy(nil))
	assert.True(t, isSQLiteBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isSQLiteBusy(errors.New("SQLITE_BUSY")))
	assert.False(t, isSQLiteBusy(errors.New("no such table: captures")))
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("succeeds after contention", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("constraint failed")
		err := retryOnBusy(func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return errors.New("SQLITE_BUSY")
		})
		assert.Error(t, err)
		assert.Equal(t, busyMaxAttempts, calls)
	})
}
