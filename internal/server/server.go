// Package server exposes the relay's management API over HTTP. All routes
// except /health sit behind the management key.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"numrelay-go/internal/config"
	"numrelay-go/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HealthChecker is the narrow store view the health route needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP management surface.
type Server struct {
	engine *gin.Engine
	svc    *service.Service
	health HealthChecker
	http   *http.Server
}

// New builds the server and its route table.
func New(cfg *config.Config, svc *service.Service, health HealthChecker) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(RequestID(), AccessLog(), Recovery())

	s := &Server{
		engine: engine,
		svc:    svc,
		health: health,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	engine.GET("/health", s.handleHealth)

	auth := Auth(AuthConfig{Key: cfg.ManagementKey, KeyHash: cfg.ManagementKeyHash})
	api := engine.Group("/api", auth)
	{
		api.GET("/pool", s.handlePoolStatus)
		api.POST("/pool/accounts", s.handleAddAccount)
		api.POST("/pool/accounts/:sid/reactivate", s.handleReactivateAccount)

		api.GET("/principals/:id", s.handleGetPrincipal)
		api.POST("/principals/:id/verify", s.handleVerify)
		api.POST("/principals/:id/login", s.handleLogin)
		api.POST("/principals/:id/bulk_login", s.handleBulkLogin)
		api.POST("/principals/:id/logout", s.handleLogout)

		api.POST("/search", s.handleSearch)
		api.POST("/purchase", s.handlePurchase)
		api.GET("/messages", s.handleMessages)
		api.POST("/broadcast", s.handleBroadcast)

		api.GET("/logs", s.handleLogsFetch)
		api.GET("/logs/ws", s.handleLogsWS)
	}

	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.WithField("addr", s.http.Addr).Info("Management API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
