package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// AuthConfig holds admin token settings
type AuthConfig struct {
	JWTSecret string
	AdminRole string
}

// NewEcho builds the router with all logbook routes
func NewEcho(h *Handler, auth AuthConfig, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(RequestLogger(logger))

	RegisterRoutes(e, h, auth)
	return e
}

// RegisterRoutes registers the public and admin routes
func RegisterRoutes(e *echo.Echo, h *Handler, auth AuthConfig) {
	e.GET("/healthz", h.Health)

	v1 := e.Group("/v1")
	v1.POST("/logs", h.SubmitLog)
	v1.GET("/reports/by-email", h.ViewEmailReport)
	v1.GET("/reports/:id", h.ViewReport)

	admin := RequireAdmin(auth.JWTSecret, auth.AdminRole)
	v1.GET("/logs", h.ListLogs, admin)
	v1.POST("/reports", h.CreateReport, admin)
	v1.GET("/reports", h.ListReports, admin)
}

// RegisterLifecycle starts e on address and shuts it down with the app,
// waiting at most shutdownTimeout for in-flight requests
func RegisterLifecycle(lc fx.Lifecycle, e *echo.Echo, address string, shutdownTimeout time.Duration, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("address", address))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			if err := e.Shutdown(ctx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
				return err
			}
			logger.Info("http server stopped")
			return nil
		},
	})
}
