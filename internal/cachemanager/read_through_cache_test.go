package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager[K comparable, V any] struct {
	mock.Mock
}

func (m *mockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetMultiple(ctx context.Context, keys []K) (map[K]V, bool) {
	args := m.Called(ctx, keys)
	return args.Get(0).(map[K]V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type seriesRequest struct {
	ID string
}

func loader(calls *int) func(context.Context, seriesRequest) ([]observation, error) {
	return func(_ context.Context, req seriesRequest) ([]observation, error) {
		*calls++
		if req.ID == "BROKEN" {
			return nil, errors.New("upstream 500")
		}
		return []observation{{Date: req.ID, Value: 1}}, nil
	}
}

func TestReadThroughCache_Bypass(t *testing.T) {
	m := &mockCacheManager[string, []observation]{}
	calls := 0
	rt := NewReadThroughCache[string, []observation, seriesRequest](m, loader(&calls), true)

	got, err := rt.Get(context.Background(), "k", seriesRequest{ID: "WALCL"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, []observation{{Date: "WALCL", Value: 1}}, got)
	require.Equal(t, 1, calls)
	m.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_Hit(t *testing.T) {
	m := &mockCacheManager[string, []observation]{}
	cached := []observation{{Date: "cached", Value: 9}}
	m.On("Get", mock.Anything, "k").Return(cached, true)
	calls := 0
	rt := NewReadThroughCache[string, []observation, seriesRequest](m, loader(&calls), false)

	got, err := rt.Get(context.Background(), "k", seriesRequest{ID: "WALCL"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, cached, got)
	require.Zero(t, calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_MissStores(t *testing.T) {
	m := &mockCacheManager[string, []observation]{}
	m.On("Get", mock.Anything, "k").Return([]observation(nil), false)
	m.On("Set", mock.Anything, "k", []observation{{Date: "WALCL", Value: 1}}, time.Minute).Return()
	calls := 0
	rt := NewReadThroughCache[string, []observation, seriesRequest](m, loader(&calls), false)

	_, err := rt.Get(context.Background(), "k", seriesRequest{ID: "WALCL"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	m.AssertExpectations(t)
}

func TestReadThroughCache_ErrorIsNotCached(t *testing.T) {
	m := &mockCacheManager[string, []observation]{}
	m.On("GetWithRefresh", mock.Anything, "k", time.Minute).Return([]observation(nil), false)
	calls := 0
	rt := NewReadThroughCache[string, []observation, seriesRequest](m, loader(&calls), false)

	_, err := rt.GetWithRefresh(context.Background(), "k", seriesRequest{ID: "BROKEN"}, time.Minute)
	require.ErrorContains(t, err, "upstream 500")
	m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_Flush(t *testing.T) {
	m := &mockCacheManager[string, []observation]{}
	m.On("Flush", mock.Anything).Return(nil)
	rt := NewReadThroughCache[string, []observation, seriesRequest](m, loader(new(int)), false)

	require.NoError(t, rt.Flush(context.Background()))
	m.AssertExpectations(t)
}
