package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryUserStoreCreateIsAtomic(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()

	var created, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Create(ctx, "race@x.com", fmt.Sprintf("h%d", i))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrUserExists):
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 31, rejected.Load())
	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestInMemoryUserStoreLookups(t *testing.T) {
	store := NewInMemoryUserStore()
	ctx := context.Background()

	u, err := store.Create(ctx, "a@x.com", "h")
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	byID, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, byID)

	_, err = store.GetByEmail(ctx, "b@x.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	store.AddFiles(2)
	files, err := store.CountFiles(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, files)
}
