package commissions_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
)

var errBackendDown = errors.New("backend down")

// MockCache implements commissions.Cache for testing.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (*commissions.CacheEntry, error) {
	args := m.Called(ctx, key)

	entry, _ := args.Get(0).(*commissions.CacheEntry)

	return entry, args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, entry *commissions.CacheEntry) error {
	return m.Called(ctx, key, entry).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCache) Has(ctx context.Context, key string) bool {
	return m.Called(ctx, key).Bool(0)
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	t.Parallel()

	cache := commissions.NewMemoryCache(10)
	ctx := context.Background()

	entry := commissions.NewEntry([]byte("test data"), time.Hour)
	require.NoError(t, cache.Set(ctx, "key1", entry))

	got, err := cache.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("test data"), got.Data)
	assert.True(t, cache.Has(ctx, "key1"))

	_, err = cache.Get(ctx, "missing")
	require.ErrorIs(t, err, commissions.ErrKeyNotFound)

	require.ErrorIs(t, cache.Set(ctx, "", entry), commissions.ErrEmptyCacheKey)
	require.ErrorIs(t, cache.Set(ctx, "key2", nil), commissions.ErrInvalidEntry)
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	cache := commissions.NewMemoryCache(10)
	ctx := context.Background()

	expired := &commissions.CacheEntry{Data: []byte("old"), ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, cache.Set(ctx, "old", expired))
	require.NoError(t, cache.Set(ctx, "forever", commissions.NewEntry([]byte("new"), 0)))

	assert.False(t, cache.Has(ctx, "old"))

	_, err := cache.Get(ctx, "old")
	require.ErrorIs(t, err, commissions.ErrEntryExpired)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Set(ctx, "old", expired))
	cache.Cleanup()
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Has(ctx, "forever"))
}

func TestMemoryCache_Eviction(t *testing.T) {
	t.Parallel()

	cache := commissions.NewMemoryCache(2)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "soon", commissions.NewEntry([]byte("1"), time.Minute)))
	require.NoError(t, cache.Set(ctx, "later", commissions.NewEntry([]byte("2"), time.Hour)))
	require.NoError(t, cache.Set(ctx, "latest", commissions.NewEntry([]byte("3"), 2*time.Hour)))

	assert.Equal(t, 2, cache.Len())
	assert.False(t, cache.Has(ctx, "soon"))
	assert.True(t, cache.Has(ctx, "later"))
	assert.True(t, cache.Has(ctx, "latest"))

	require.NoError(t, cache.Set(ctx, "later", commissions.NewEntry([]byte("4"), time.Hour)))
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Delete(ctx, "later"))
	require.NoError(t, cache.Clear(ctx))
	assert.Zero(t, cache.Len())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	t.Parallel()

	cache := commissions.NewMemoryCache(50)
	ctx := context.Background()
	done := make(chan struct{})

	for worker := range 8 {
		go func() {
			defer func() { done <- struct{}{} }()

			for i := range 100 {
				key := fmt.Sprintf("k%d", (worker*100+i)%80)
				_ = cache.Set(ctx, key, commissions.NewEntry([]byte(key), time.Minute))
				_, _ = cache.Get(ctx, key)
				_ = cache.Has(ctx, key)
			}
		}()
	}

	for range 8 {
		<-done
	}

	assert.LessOrEqual(t, cache.Len(), 50)
}

func TestCacheFactory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cache, err := commissions.NewCacheFromConfig(ctx, nil)
	require.NoError(t, err)
	assert.IsType(t, &commissions.MemoryCache{}, cache)

	cache, err = commissions.NewCacheFromConfig(ctx, &commissions.CacheConfig{
		Type:   commissions.CacheTypeMemory,
		Memory: &commissions.MemoryCacheConfig{MaxSize: 5},
	})
	require.NoError(t, err)
	assert.IsType(t, &commissions.MemoryCache{}, cache)

	cache, err = commissions.NewCacheFromConfig(ctx, &commissions.CacheConfig{Type: commissions.CacheTypeNone})
	require.NoError(t, err)
	assert.IsType(t, &commissions.NoOpCache{}, cache)

	_, err = commissions.NewCacheFromConfig(ctx, &commissions.CacheConfig{Type: commissions.CacheTypeTiered})
	require.ErrorIs(t, err, commissions.ErrNATSConfigRequired)

	_, err = commissions.NewCacheFromConfig(ctx, &commissions.CacheConfig{Type: "redis"})
	require.ErrorIs(t, err, commissions.ErrUnsupportedCacheType)
}

func TestNoOpCache(t *testing.T) {
	t.Parallel()

	cache := commissions.NewNoOpCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", commissions.NewEntry([]byte("x"), 0)))

	_, err := cache.Get(ctx, "key")
	require.ErrorIs(t, err, commissions.ErrCacheDisabled)
	assert.False(t, cache.Has(ctx, "key"))
	require.NoError(t, cache.Delete(ctx, "key"))
	require.NoError(t, cache.Clear(ctx))
}

func TestCacheChain_BackfillsFrontLayers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entry := commissions.NewEntry([]byte("shared"), time.Minute)

	front := commissions.NewMemoryCache(10)
	back := &MockCache{}
	back.On("Get", ctx, "unit_type/1").Return(entry, nil).Once()

	chain := commissions.NewCacheChain(front, back)

	got, err := chain.Get(ctx, "unit_type/1")
	require.NoError(t, err)
	assert.Same(t, entry, got)
	assert.True(t, front.Has(ctx, "unit_type/1"))

	got, err = chain.Get(ctx, "unit_type/1")
	require.NoError(t, err)
	assert.Same(t, entry, got)

	back.AssertExpectations(t)
}

func TestCacheChain_Miss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	back := &MockCache{}
	back.On("Get", ctx, "k").Return(nil, commissions.ErrKeyNotFound)
	back.On("Has", ctx, "k").Return(false)

	chain := commissions.NewCacheChain(commissions.NewMemoryCache(1), back)

	_, err := chain.Get(ctx, "k")
	require.ErrorIs(t, err, commissions.ErrKeyNotFoundInAnyCache)
	assert.False(t, chain.Has(ctx, "k"))

	back.AssertExpectations(t)
}

func TestCacheChain_JoinsWriteErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	entry := commissions.NewEntry([]byte("x"), time.Minute)

	front := commissions.NewMemoryCache(10)
	back := &MockCache{}
	back.On("Set", ctx, "k", entry).Return(errBackendDown)
	back.On("Delete", ctx, "k").Return(errBackendDown)
	back.On("Clear", ctx).Return(nil)

	chain := commissions.NewCacheChain(front, back)

	require.ErrorIs(t, chain.Set(ctx, "k", entry), errBackendDown)
	assert.True(t, front.Has(ctx, "k"))

	require.ErrorIs(t, chain.Delete(ctx, "k"), errBackendDown)
	assert.False(t, front.Has(ctx, "k"))

	require.NoError(t, chain.Clear(ctx))

	back.AssertExpectations(t)
}
