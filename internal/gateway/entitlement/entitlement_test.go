package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: make(map[string]string)}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	return s.keys[key], nil
}

func (s *fakeStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.keys[key] = value
	return nil
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := New(store)

	require.NoError(t, svc.Activate(ctx, "u3", "sub_123", "cus_456"))

	t.Run("sets the unrestricted flag and references", func(t *testing.T) {
		unrestricted, err := svc.Unrestricted(ctx, "u3")
		require.NoError(t, err)
		assert.True(t, unrestricted)

		subRef, err := svc.SubscriptionRef(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, "sub_123", subRef)

		custRef, err := svc.CustomerRef(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, "cus_456", custRef)
	})

	t.Run("maintains the reverse index", func(t *testing.T) {
		assert.Equal(t, "u3", store.keys["sub:sub_123:user"])
	})

	t.Run("replaying the event leaves state unchanged", func(t *testing.T) {
		before := make(map[string]string, len(store.keys))
		for k, v := range store.keys {
			before[k] = v
		}

		require.NoError(t, svc.Activate(ctx, "u3", "sub_123", "cus_456"))
		assert.Equal(t, before, store.keys)
	})
}

func TestDeactivateBySubscription(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := New(store)

	require.NoError(t, svc.Activate(ctx, "u3", "sub_123", "cus_456"))

	t.Run("clears the flag for the owning subject", func(t *testing.T) {
		subject, err := svc.DeactivateBySubscription(ctx, "sub_123")
		require.NoError(t, err)
		assert.Equal(t, "u3", subject)

		unrestricted, err := svc.Unrestricted(ctx, "u3")
		require.NoError(t, err)
		assert.False(t, unrestricted)
	})

	t.Run("keeps the billing references for later lookup", func(t *testing.T) {
		subRef, err := svc.SubscriptionRef(ctx, "u3")
		require.NoError(t, err)
		assert.Equal(t, "sub_123", subRef)
	})

	t.Run("unknown subscription reference is a no-op", func(t *testing.T) {
		subject, err := svc.DeactivateBySubscription(ctx, "sub_unknown")
		require.NoError(t, err)
		assert.Empty(t, subject)
	})
}

func TestUnrestrictedDefault(t *testing.T) {
	svc := New(newFakeStore())
	unrestricted, err := svc.Unrestricted(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, unrestricted)
}
