// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"tpvcore/internal/core/apperror"
	"tpvcore/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. The ledger
// transaction the handler was in has already been rolled back by the time
// the panic reaches here. ErrorHandler does not run after a panic, so the
// response is written here.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", rec,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			c.Abort()
			if c.Writer.Written() {
				return
			}
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
			writeError(c)
		}()
		c.Next()
	}
}
