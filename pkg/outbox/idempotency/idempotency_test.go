package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	keys   map[string]time.Duration
	setErr error
}

func (m *memStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "ff:idempotency:" + scope + ":" + id
}

func TestClaimIsFirstWins(t *testing.T) {
	store := &memStore{keys: map[string]time.Duration{}}
	marker, err := NewMarker(store, "analytics", time.Hour)
	require.NoError(t, err)
	id := uuid.New()

	first, err := marker.Claim(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := marker.Claim(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, again)

	assert.Equal(t, time.Hour, store.keys["ff:idempotency:evt:analytics:"+id.String()])
}

func TestReleaseAllowsReprocessing(t *testing.T) {
	store := &memStore{keys: map[string]time.Duration{}}
	marker, err := NewMarker(store, "analytics", time.Hour)
	require.NoError(t, err)
	id := uuid.New()

	_, err = marker.Claim(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, marker.Release(context.Background(), id))

	claimed, err := marker.Claim(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestConsumersAreIsolated(t *testing.T) {
	store := &memStore{keys: map[string]time.Duration{}}
	a, _ := NewMarker(store, "analytics", time.Hour)
	b, _ := NewMarker(store, "notifications", time.Hour)
	id := uuid.New()

	okA, _ := a.Claim(context.Background(), id)
	okB, _ := b.Claim(context.Background(), id)
	assert.True(t, okA)
	assert.True(t, okB)
}

func TestClaimErrors(t *testing.T) {
	marker, err := NewMarker(&memStore{setErr: errors.New("redis down")}, "analytics", time.Hour)
	require.NoError(t, err)

	_, err = marker.Claim(context.Background(), uuid.New())
	assert.Error(t, err)
	_, err = marker.Claim(context.Background(), uuid.Nil)
	assert.Error(t, err)
}

func TestNewMarkerValidates(t *testing.T) {
	_, err := NewMarker(nil, "analytics", time.Hour)
	assert.Error(t, err)
	_, err = NewMarker(&memStore{}, "", time.Hour)
	assert.Error(t, err)
	_, err = NewMarker(&memStore{}, "analytics", 0)
	assert.Error(t, err)
}
