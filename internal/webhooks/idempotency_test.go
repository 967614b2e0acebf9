package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]string{}}
}

func (s *memoryStore) IdempotencyKey(scope, key string) string {
	return scope + "|" + key
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = value
	return true, nil
}

func (s *memoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func TestIdempotencyGuardCheckAndMark(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "webhook:stripe")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardDeleteReleasesEvent(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "webhook:courier")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)

	// Processing failed; releasing the marker lets the provider retry.
	require.NoError(t, guard.Delete(ctx, "evt_1"))

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardScopesAreIsolated(t *testing.T) {
	store := newMemoryStore()
	stripeGuard, err := NewIdempotencyGuard(store, time.Hour, "webhook:stripe")
	require.NoError(t, err)
	courierGuard, err := NewIdempotencyGuard(store, time.Hour, "webhook:courier")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = stripeGuard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)

	seen, err := courierGuard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestNewIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "webhook:stripe")
	require.Error(t, err)

	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	require.Error(t, err)

	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second, "webhook:stripe")
	require.Error(t, err)
}
