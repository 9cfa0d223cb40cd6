package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/prompt"
	"github.com/LucaBras1/keep-brain/internal/store"
)

func parseVendor(raw string) (store.Vendor, bool) {
	switch store.Vendor(raw) {
	case store.VendorClaude:
		return store.VendorClaude, true
	case store.VendorOpenAI:
		return store.VendorOpenAI, true
	}
	return "", false
}

// APIKeyStatusResponse reports which vendors have a stored key. Key material
// never leaves the store.
type APIKeyStatusResponse struct {
	Provider     string `json:"provider"`
	AIEnabled    bool   `json:"aiEnabled"`
	HasClaudeKey bool   `json:"hasClaudeKey"`
	HasOpenAIKey bool   `json:"hasOpenaiKey"`
}

func (s *Server) handleAPIKeyStatus(c echo.Context) error {
	settings, err := s.store.GetUserSettings(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	return c.JSON(http.StatusOK, APIKeyStatusResponse{
		Provider:     string(settings.Provider),
		AIEnabled:    settings.AIEnabled,
		HasClaudeKey: settings.AnthropicKey != "",
		HasOpenAIKey: settings.OpenAIKey != "",
	})
}

// StoreAPIKeyRequest is the request body for POST /api/v1/settings/api-key.
type StoreAPIKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// handleStoreAPIKey validates the candidate key against the vendor API,
// encrypts it and stores it. The stored vendor becomes the active provider.
func (s *Server) handleStoreAPIKey(c echo.Context) error {
	ctx := c.Request().Context()

	var req StoreAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	vendor, ok := parseVendor(req.Provider)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "provider must be CLAUDE or OPENAI")
	}
	if req.APIKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "apiKey field is required")
	}

	result := s.validator.Validate(ctx, vendor, req.APIKey)
	if !result.Valid {
		return echo.NewHTTPError(http.StatusBadRequest, "API key validation failed: "+result.Error)
	}

	ciphertext, iv, err := s.encrypter.Encrypt(req.APIKey)
	if err != nil {
		s.logger.Error("encrypt api key", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store key")
	}

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	switch vendor {
	case store.VendorOpenAI:
		settings.OpenAIKey = ciphertext
		settings.OpenAIIV = iv
	default:
		settings.AnthropicKey = ciphertext
		settings.AnthropicIV = iv
	}
	settings.Provider = vendor
	settings.AIEnabled = true

	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store key")
	}

	s.logger.Info("api key stored",
		zap.String("user_id", settings.UserID),
		zap.String("provider", string(vendor)))
	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}

// handleDeleteAPIKey removes a stored key. If the removed vendor was active,
// the other vendor takes over when it has a key; otherwise AI is disabled
// for the user.
func (s *Server) handleDeleteAPIKey(c echo.Context) error {
	ctx := c.Request().Context()

	vendor, ok := parseVendor(c.QueryParam("provider"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "provider must be CLAUDE or OPENAI")
	}

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	switch vendor {
	case store.VendorOpenAI:
		settings.OpenAIKey = ""
		settings.OpenAIIV = ""
	default:
		settings.AnthropicKey = ""
		settings.AnthropicIV = ""
	}

	if settings.Provider == vendor {
		switch {
		case vendor == store.VendorOpenAI && settings.AnthropicKey != "":
			settings.Provider = store.VendorClaude
		case vendor == store.VendorClaude && settings.OpenAIKey != "":
			settings.Provider = store.VendorOpenAI
		default:
			settings.AIEnabled = false
		}
	}

	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update settings")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"provider":  string(settings.Provider),
		"aiEnabled": settings.AIEnabled,
	})
}

// UpdateAISettingsRequest is the request body for PUT /api/v1/settings/ai.
// Pointer fields distinguish "leave unchanged" from explicit zero values.
type UpdateAISettingsRequest struct {
	Provider     *string  `json:"provider"`
	ClaudeModel  *string  `json:"claudeModel"`
	OpenAIModel  *string  `json:"openaiModel"`
	Temperature  *float64 `json:"temperature"`
	CustomPrompt *string  `json:"customPrompt"`
}

// handleUpdateAISettings updates per-user AI tuning. Custom templates must
// contain exactly one content placeholder; an empty template reverts to the
// default.
func (s *Server) handleUpdateAISettings(c echo.Context) error {
	ctx := c.Request().Context()

	var req UpdateAISettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	settings, err := s.store.GetUserSettings(ctx, userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}

	if req.Provider != nil {
		vendor, ok := parseVendor(*req.Provider)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "provider must be CLAUDE or OPENAI")
		}
		settings.Provider = vendor
	}
	if req.ClaudeModel != nil && *req.ClaudeModel != "" {
		settings.ClaudeModel = *req.ClaudeModel
	}
	if req.OpenAIModel != nil && *req.OpenAIModel != "" {
		settings.OpenAIModel = *req.OpenAIModel
	}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			return echo.NewHTTPError(http.StatusBadRequest, "temperature must be between 0 and 2")
		}
		settings.Temperature = *req.Temperature
	}
	if req.CustomPrompt != nil {
		if *req.CustomPrompt != "" {
			if err := prompt.Validate(*req.CustomPrompt); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		settings.CustomPrompt = *req.CustomPrompt
	}

	if err := s.store.SaveUserSettings(ctx, settings); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}
