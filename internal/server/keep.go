package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/queue"
	"github.com/LucaBras1/keep-brain/internal/store"
)

// KeepConnectRequest is the request body for POST /api/v1/keep/connect.
type KeepConnectRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleKeepConnect stores Google Keep credentials and hands them to the sync
// worker for authentication. The password is encrypted before it touches the
// database; only the enqueued job carries it in the clear. A queue outage does
// not fail the connect: the worker can authenticate on the next sync instead.
func (s *Server) handleKeepConnect(c echo.Context) error {
	ctx := c.Request().Context()

	var req KeepConnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	ciphertext, iv, err := s.encrypter.Encrypt(req.Password)
	if err != nil {
		s.logger.Error("encrypt keep credential", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store credentials")
	}

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	settings.KeepEmail = req.Email
	settings.KeepToken = ciphertext
	settings.KeepTokenIV = iv
	settings.SyncStatus = store.SyncIdle
	settings.SyncError = ""

	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store credentials")
	}

	if _, err := s.dispatcher.EnqueueSync(ctx, queue.SyncJob{
		UserID:   settings.UserID,
		Action:   queue.SyncActionAuthenticate,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		s.logger.Warn("authentication job not enqueued",
			zap.String("user_id", settings.UserID),
			zap.Error(err))
	}

	s.logger.Info("keep account connected", zap.String("user_id", settings.UserID))
	return c.JSON(http.StatusOK, map[string]string{"status": "connected"})
}

// handleKeepSync triggers a sync run for a connected account. Only one run
// per user may be in flight; the status flips to SYNCING before the job is
// enqueued so a second trigger observes it.
func (s *Server) handleKeepSync(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	if settings.KeepEmail == "" || settings.KeepToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Google Keep is not connected")
	}
	if settings.SyncStatus == store.SyncSyncing {
		return echo.NewHTTPError(http.StatusBadRequest, "sync is already in progress")
	}

	settings.SyncStatus = store.SyncSyncing
	settings.SyncError = ""
	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update sync status")
	}

	if _, err := s.dispatcher.EnqueueSync(ctx, queue.SyncJob{
		UserID: settings.UserID,
		Action: queue.SyncActionSync,
	}); err != nil {
		s.logger.Error("sync job not enqueued",
			zap.String("user_id", settings.UserID),
			zap.Error(err))

		settings.SyncStatus = store.SyncFailed
		settings.SyncError = "failed to enqueue sync job"
		if saveErr := s.store.SaveUserSettings(ctx, settings); saveErr != nil {
			s.logger.Error("record sync failure", zap.Error(saveErr))
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sync queue unavailable")
	}

	s.logger.Info("sync started", zap.String("user_id", settings.UserID))
	return c.JSON(http.StatusOK, map[string]string{"status": string(store.SyncSyncing)})
}

// handleKeepDisconnect removes stored Keep credentials and resets sync state.
func (s *Server) handleKeepDisconnect(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	settings.KeepEmail = ""
	settings.KeepToken = ""
	settings.KeepTokenIV = ""
	settings.SyncStatus = store.SyncIdle
	settings.SyncError = ""

	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update settings")
	}

	s.logger.Info("keep account disconnected", zap.String("user_id", settings.UserID))
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

// KeepStatusResponse is the response body for GET /api/v1/keep/status.
type KeepStatusResponse struct {
	Connected  bool   `json:"connected"`
	Email      string `json:"email,omitempty"`
	SyncStatus string `json:"syncStatus"`
	SyncError  string `json:"syncError,omitempty"`
}

func (s *Server) handleKeepStatus(c echo.Context) error {
	settings, err := s.store.GetUserSettings(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	return c.JSON(http.StatusOK, KeepStatusResponse{
		Connected:  settings.KeepEmail != "" && settings.KeepToken != "",
		Email:      settings.KeepEmail,
		SyncStatus: string(settings.SyncStatus),
		SyncError:  settings.SyncError,
	})
}
