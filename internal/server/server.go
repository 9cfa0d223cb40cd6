// Package server exposes the admin HTTP surface: note ingestion, reprocess
// and batch triggers, and per-user AI settings management. Authentication is
// delegated to the fronting system, which supplies the X-User-ID header.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/ai"
	"github.com/LucaBras1/keep-brain/internal/queue"
	"github.com/LucaBras1/keep-brain/internal/store"
)

// userIDHeader carries the authenticated user identity set by the fronting
// system.
const userIDHeader = "X-User-ID"

// Store is the persistence surface the handlers need.
type Store interface {
	CreateNote(ctx context.Context, note *store.Note) error
	GetNote(ctx context.Context, id string) (*store.Note, error)
	GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error)
	SaveUserSettings(ctx context.Context, settings *store.UserSettings) error
}

// Dispatcher enqueues processing and sync jobs.
type Dispatcher interface {
	Enqueue(ctx context.Context, job queue.ProcessJob) (string, error)
	EnqueueSync(ctx context.Context, job queue.SyncJob) (string, error)
}

// BatchRunner drains pending notes outside queue delivery.
type BatchRunner interface {
	ProcessPending(ctx context.Context, userID string, limit int) (processed, errored int, err error)
}

// KeyValidator probes a candidate API key against the vendor API.
type KeyValidator interface {
	Validate(ctx context.Context, vendor store.Vendor, apiKey string) ai.ValidationResult
}

// Encrypter seals plaintext credentials for storage.
type Encrypter interface {
	Encrypt(plaintext string) (ciphertext, iv string, err error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the admin HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	store      Store
	dispatcher Dispatcher
	batch      BatchRunner
	validator  KeyValidator
	encrypter  Encrypter
	logger     *zap.Logger
	config     *Config
}

// NewServer creates the admin HTTP server.
func NewServer(st Store, dispatcher Dispatcher, batch BatchRunner, validator KeyValidator, encrypter Encrypter, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:       e,
		store:      st,
		dispatcher: dispatcher,
		batch:      batch,
		validator:  validator,
		encrypter:  encrypter,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1", requireUserID)
	v1.POST("/notes", s.handleCreateNote)
	v1.POST("/notes/:id/reprocess", s.handleReprocessNote)
	v1.POST("/process-pending", s.handleProcessPending)
	v1.GET("/settings/api-key", s.handleAPIKeyStatus)
	v1.POST("/settings/api-key", s.handleStoreAPIKey)
	v1.DELETE("/settings/api-key", s.handleDeleteAPIKey)
	v1.PUT("/settings/ai", s.handleUpdateAISettings)
	v1.POST("/keep/connect", s.handleKeepConnect)
	v1.POST("/keep/sync", s.handleKeepSync)
	v1.DELETE("/keep/disconnect", s.handleKeepDisconnect)
	v1.GET("/keep/status", s.handleKeepStatus)
}

// requireUserID rejects API calls without an identity header.
func requireUserID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(userIDHeader) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "X-User-ID header is required")
		}
		return next(c)
	}
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(userIDHeader)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP makes the server usable directly with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
