package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"tpvcore/internal/core/apperror"
	appctx "tpvcore/internal/core/context"
	"tpvcore/internal/infrastructure/storage/postgres"
	"tpvcore/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const idempotencyCtxKey = "idempotency"

// IdempotencyStore is implemented by postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, k postgres.IdempotencyKey) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, k postgres.IdempotencyKey, statusCode int, contentType string, body []byte) error
}

type pendingKey struct {
	store IdempotencyStore
	key   postgres.IdempotencyKey
	done  bool
}

// Idempotency middleware replays the stored response of a request that
// repeats an X-Idempotency-Key of the same tenant. Requests without the
// header pass through. Must run after Auth.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		user := appctx.GetUser(ctx)
		if user == nil || user.TenantID == "" {
			abortUnauthorized(c, "authentication required")
			return
		}

		// Hash request body
		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		k := postgres.IdempotencyKey{
			TenantID: user.TenantID,
			Key:      key,
			UserID:   user.UserID,
			// Operation name from path
			Operation:   c.Request.Method + " " + c.FullPath() + " " + c.Param("id"),
			RequestHash: hex.EncodeToString(hash[:]),
		}

		replay, err := store.AcquireKey(ctx, k)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(idempotencyCtxKey, &pendingKey{store: store, key: k})
		c.Next()
	}
}

// CompleteIdempotency stores the response of the current request under its
// idempotency key. It is a no-op for requests without one.
func CompleteIdempotency(c *gin.Context, statusCode int, body []byte) {
	v, ok := c.Get(idempotencyCtxKey)
	if !ok {
		return
	}
	p, ok := v.(*pendingKey)
	if !ok || p.done {
		return
	}
	p.done = true
	// The ledger operation already committed; a failed write here only loses the replay
	if err := p.store.CompleteKey(c.Request.Context(), p.key, statusCode, "application/json", body); err != nil {
		logger.Warn(c.Request.Context(), "idempotency completion failed", "key", p.key.Key, "error", err)
	}
}
