package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvazu/SQAN/internal/lock"
)

func TestNoopAlwaysGrants(t *testing.T) {
	var l lock.Locker = lock.Noop{}
	for i := 0; i < 3; i++ {
		lease, err := l.TryAcquire(context.Background())
		require.NoError(t, err)
		require.NotNil(t, lease)
		assert.NoError(t, lease.Release(context.Background()))
	}
	assert.NoError(t, l.Close())
}

func TestOpenRejectsBadURL(t *testing.T) {
	_, err := lock.Open(context.Background(), "not-a-url", "k", time.Second)
	assert.Error(t, err)
}
