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

type entry struct {
	value string
	ttl   time.Duration
}

type memStore struct {
	data   map[string]entry
	failNX error
}

func newMemStore() *memStore {
	return &memStore{data: map[string]entry{}}
}

func (m *memStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.failNX != nil {
		return false, m.failNX
	}
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = entry{value: value.(string), ttl: ttl}
	return true, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.data[key] = entry{value: value.(string), ttl: ttl}
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return "sh:idempotency:" + scope + ":" + id
}

func TestClaimCommitLifecycle(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, 24*time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.New()
	key := "sh:idempotency:consumer:realtime:" + id.String()

	claimed, err := ledger.Claim(ctx, "realtime", id)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, entry{value: stateClaimed, ttl: DefaultLease}, store.data[key])

	claimed, err = ledger.Claim(ctx, "realtime", id)
	require.NoError(t, err)
	assert.False(t, claimed, "in-flight claim hides the event")

	require.NoError(t, ledger.Commit(ctx, "realtime", id))
	assert.Equal(t, entry{value: stateDone, ttl: 24 * time.Hour}, store.data[key])

	claimed, err = ledger.Claim(ctx, "realtime", id)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = ledger.Claim(ctx, "analytics", id)
	require.NoError(t, err)
	assert.True(t, claimed, "consumers track events independently")
}

func TestReleaseAllowsRedelivery(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, time.Hour)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.New()
	_, err = ledger.Claim(ctx, "analytics", id)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, "analytics", id))
	assert.Empty(t, store.data)

	claimed, err := ledger.Claim(ctx, "analytics", id)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestLeaseCappedByRetention(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, time.Minute)
	require.NoError(t, err)

	id := uuid.New()
	_, err = ledger.Claim(context.Background(), "analytics", id)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, store.data["sh:idempotency:consumer:analytics:"+id.String()].ttl)
}

func TestClaimErrors(t *testing.T) {
	store := newMemStore()
	ledger, err := NewLedger(store, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = ledger.Claim(ctx, " ", uuid.New())
	require.Error(t, err)
	_, err = ledger.Claim(ctx, "analytics", uuid.Nil)
	require.Error(t, err)

	store.failNX = errors.New("boom")
	_, err = ledger.Claim(ctx, "analytics", uuid.New())
	require.ErrorIs(t, err, store.failNX)
}

func TestNewLedgerValidation(t *testing.T) {
	_, err := NewLedger(nil, time.Hour)
	require.Error(t, err)
	_, err = NewLedger(newMemStore(), 0)
	require.Error(t, err)
}
