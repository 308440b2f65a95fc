// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tpvcore/internal/domain/invoice"
	"tpvcore/internal/domain/rectification"
	"tpvcore/internal/domain/register"
	"tpvcore/internal/domain/reports"
	"tpvcore/internal/infrastructure/http/v1/handlers"
	"tpvcore/internal/infrastructure/http/v1/middleware"
	"tpvcore/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator resolves the bearer token to a tenant
	JWTValidator middleware.JWTValidator

	// Idempotency stores responses of retried POSTs; nil disables replay
	Idempotency middleware.IdempotencyStore

	// DB is pinged by GET /health
	DB handlers.Pinger

	// Metrics is served on GET /metrics when set
	Metrics http.Handler

	Invoices      *invoice.Service
	Rectification *rectification.Service
	Register      *register.Service
	Reports       *reports.Service

	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger, "/health", "/metrics"))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.NewHealthHandler(cfg.DB, cfg.Version).Health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))

	idempotent := func(c *gin.Context) { c.Next() }
	if cfg.Idempotency != nil {
		idempotent = middleware.Idempotency(cfg.Idempotency)
	}

	base := handlers.NewBaseHandler()

	invoices := handlers.NewInvoiceHandler(base, cfg.Invoices, cfg.Rectification)
	inv := v1.Group("/invoices")
	{
		inv.POST("/calculate", invoices.Calculate)
		inv.POST("", idempotent, invoices.Create)
		inv.GET("", invoices.List)
		inv.GET("/:id", invoices.Get)
		inv.GET("/:id/rectifiable", invoices.Rectifiable)
		inv.POST("/:id/rectifications", idempotent, invoices.Rectify)
	}

	registerHandler := handlers.NewRegisterHandler(base, cfg.Register)
	reg := v1.Group("/register")
	{
		reg.POST("/open", registerHandler.Open)
		reg.POST("/close", registerHandler.Close)
		reg.GET("/current", registerHandler.Current)
		reg.GET("/closures/:id", registerHandler.GetClosure)
	}

	reportsHandler := handlers.NewReportsHandler(base, cfg.Reports)
	v1.GET("/reports/:period", reportsHandler.GetReport)

	return router
}
