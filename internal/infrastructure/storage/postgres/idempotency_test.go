package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tpvcore/internal/core/apperror"
)

func newTestIdempotency(q *mockQuerier, now time.Time) *IdempotencyStore {
	s := NewIdempotencyStore(q, 24*time.Hour)
	s.now = func() time.Time { return now }
	return s
}

// storedRow mirrors the RETURNING clause of AcquireKey.
func storedRow(k IdempotencyKey, status IdempotencyStatus, body []byte, code int, updated time.Time, inserted bool) *mockRow {
	return &mockRow{values: []any{k.UserID, k.Operation, status, k.RequestHash, body, code, "application/json", updated, inserted}}
}

func TestIdempotencyStore_AcquireKey(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	key := IdempotencyKey{TenantID: "t1", Key: "k1", UserID: "u1", Operation: "POST /invoices", RequestHash: "abc"}
	ctx := context.Background()

	t.Run("fresh key", func(t *testing.T) {
		q := &mockQuerier{rows: []*mockRow{storedRow(key, IdempotencyStatusPending, nil, 0, now, true)}}
		replay, err := newTestIdempotency(q, now).AcquireKey(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, replay)
		require.Len(t, q.calls, 1)
		assert.Equal(t, "t1", q.calls[0].args[0], "keys are scoped by tenant")
	})

	t.Run("replays completed response", func(t *testing.T) {
		q := &mockQuerier{rows: []*mockRow{storedRow(key, IdempotencyStatusSuccess, []byte(`{"number":"2026-00001"}`), 201, now.Add(-time.Hour), false)}}
		replay, err := newTestIdempotency(q, now).AcquireKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, replay)
		assert.Equal(t, 201, replay.StatusCode)
		assert.JSONEq(t, `{"number":"2026-00001"}`, string(replay.Body))
	})

	t.Run("in flight", func(t *testing.T) {
		q := &mockQuerier{rows: []*mockRow{storedRow(key, IdempotencyStatusPending, nil, 0, now.Add(-10*time.Second), false)}}
		_, err := newTestIdempotency(q, now).AcquireKey(ctx, key)
		assert.True(t, apperror.HasCode(err, apperror.CodeIdempotency))
	})

	t.Run("stale pending is reclaimed", func(t *testing.T) {
		q := &mockQuerier{rows: []*mockRow{storedRow(key, IdempotencyStatusPending, nil, 0, now.Add(-5*time.Minute), false)}}
		replay, err := newTestIdempotency(q, now).AcquireKey(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, replay)
		require.Len(t, q.calls, 2)
		assert.True(t, strings.Contains(q.calls[1].sql, "UPDATE sys_idempotency"))
	})

	t.Run("reused for another body", func(t *testing.T) {
		other := key
		other.RequestHash = "different"
		q := &mockQuerier{rows: []*mockRow{storedRow(other, IdempotencyStatusSuccess, nil, 201, now, false)}}
		_, err := newTestIdempotency(q, now).AcquireKey(ctx, key)
		require.Error(t, err)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, "Idempotency key mismatch", appErr.Message)
	})
}

func TestIdempotencyStore_CompleteKey(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	key := IdempotencyKey{TenantID: "t1", Key: "k1"}
	ctx := context.Background()

	q := &mockQuerier{}
	s := newTestIdempotency(q, now)

	require.NoError(t, s.CompleteKey(ctx, key, 201, "application/json", []byte(`{}`)))
	require.NoError(t, s.CompleteKey(ctx, key, 422, "application/json", []byte(`{}`)))
	require.NoError(t, s.CompleteKey(ctx, key, 503, "application/json", []byte(`{}`)))

	require.Len(t, q.calls, 3)
	assert.Equal(t, IdempotencyStatusSuccess, q.calls[0].args[0])
	assert.Equal(t, IdempotencyStatusFailed, q.calls[1].args[0])
	assert.Contains(t, q.calls[2].sql, "DELETE FROM sys_idempotency")
}
