package postgres

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tpvcore/internal/core/apperror"
)

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// stalePendingAfter is how long a pending key may sit before it is reclaimed.
const stalePendingAfter = time.Minute

// IdempotencyRecord stores the result of an idempotent operation.
type IdempotencyRecord struct {
	TenantID    string            `db:"tenant_id"`
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"` // SHA256 of request body
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the cached HTTP response for replay.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyKey identifies one request. Keys are scoped to the tenant.
type IdempotencyKey struct {
	TenantID    string
	Key         string
	UserID      string
	Operation   string
	RequestHash string
}

// IdempotencyStore manages idempotency keys in sys_idempotency.
type IdempotencyStore struct {
	db  QuerierProvider
	ttl time.Duration
	now func() time.Time
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(db QuerierProvider, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

// AcquireKey attempts to acquire an idempotency key.
// Returns:
//   - (nil, nil) if key acquired successfully
//   - (cachedResponse, nil) if operation already completed (success or failed)
//   - (nil, error) if key is in flight or reused for another request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, k IdempotencyKey) (*IdempotencyReplay, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	var record IdempotencyRecord
	var inserted bool
	err := s.db.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (tenant_id, idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8)
		ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, $8)
		RETURNING user_id, operation, status, request_hash, response, response_status, response_content_type, updated_at, (xmax = 0)
	`, k.TenantID, k.Key, k.UserID, k.Operation, IdempotencyStatusPending, k.RequestHash, now, expiresAt).Scan(
		&record.UserID, &record.Operation, &record.Status, &record.RequestHash,
		&record.Response, &record.StatusCode, &record.ContentType, &record.UpdatedAt, &inserted,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}
	return s.resolveExisting(ctx, k, record, now)
}

// resolveExisting decides what to do with a key that was already stored.
func (s *IdempotencyStore) resolveExisting(ctx context.Context, k IdempotencyKey, record IdempotencyRecord, now time.Time) (*IdempotencyReplay, error) {
	if record.UserID != k.UserID || record.Operation != k.Operation || record.RequestHash != k.RequestHash {
		return nil, apperror.NewIdempotencyMismatch(k.Key).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", k.Operation)
	}

	switch record.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return &IdempotencyReplay{
			StatusCode:  normalizeReplayStatus(record.StatusCode),
			ContentType: normalizeReplayContentType(record.ContentType),
			Body:        record.Response,
		}, nil
	}

	if now.Sub(record.UpdatedAt) <= stalePendingAfter {
		return nil, apperror.NewIdempotencyConflict(k.Key)
	}

	// Reclaim a key left pending by a crashed request
	tag, err := s.db.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET updated_at = $1
		WHERE tenant_id = $2 AND idempotency_key = $3 AND status = $4 AND updated_at = $5
	`, now, k.TenantID, k.Key, IdempotencyStatusPending, record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reclaim stale key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.NewIdempotencyConflict(k.Key)
	}
	return nil, nil
}

// CompleteKey stores the response of a finished request. Responses with
// status >= 500 are not cached: the key is released so the client can retry.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, k IdempotencyKey, statusCode int, contentType string, body []byte) error {
	if statusCode >= http.StatusInternalServerError {
		_, err := s.db.GetQuerier(ctx).Exec(ctx, `
			DELETE FROM sys_idempotency WHERE tenant_id = $1 AND idempotency_key = $2
		`, k.TenantID, k.Key)
		return err
	}

	status := IdempotencyStatusSuccess
	if statusCode >= http.StatusBadRequest {
		status = IdempotencyStatusFailed
	}
	_, err := s.db.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE tenant_id = $6 AND idempotency_key = $7
	`, status, body, statusCode, contentType, s.now().UTC(), k.TenantID, k.Key)
	return err
}

func normalizeReplayStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

func normalizeReplayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}

// CleanupExpired removes expired idempotency records.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
