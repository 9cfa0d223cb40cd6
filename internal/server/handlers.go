package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/queue"
	"github.com/LucaBras1/keep-brain/internal/store"
)

// CreateNoteRequest is the request body for POST /api/v1/notes.
type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateNoteResponse is the response body for POST /api/v1/notes.
type CreateNoteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

// handleCreateNote ingests a manual note and enqueues it for processing.
func (s *Server) handleCreateNote(c echo.Context) error {
	var req CreateNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	note := &store.Note{
		UserID:  userID(c),
		Title:   req.Title,
		Content: req.Content,
		Source:  store.SourceManual,
	}
	if err := s.store.CreateNote(c.Request().Context(), note); err != nil {
		s.logger.Error("create note", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create note")
	}

	jobID, err := s.dispatcher.Enqueue(c.Request().Context(), queue.ProcessJob{
		NoteID:  note.ID,
		UserID:  note.UserID,
		Content: note.Content,
		Title:   note.Title,
	})
	if err != nil {
		// The note is persisted as PENDING; a batch run will pick it up.
		s.logger.Error("enqueue note", zap.String("note_id", note.ID), zap.Error(err))
	}

	return c.JSON(http.StatusCreated, CreateNoteResponse{
		ID:     note.ID,
		Status: string(note.Status),
		JobID:  jobID,
	})
}

// ReprocessResponse is the response body for POST /api/v1/notes/:id/reprocess.
type ReprocessResponse struct {
	JobID string `json:"jobId"`
}

// handleReprocessNote enqueues an existing note again, whatever its current
// terminal state.
func (s *Server) handleReprocessNote(c echo.Context) error {
	ctx := c.Request().Context()

	note, err := s.store.GetNote(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNoteNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "note not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load note")
	}
	if note.UserID != userID(c) {
		return echo.NewHTTPError(http.StatusNotFound, "note not found")
	}

	jobID, err := s.dispatcher.Enqueue(ctx, queue.ProcessJob{
		NoteID:  note.ID,
		UserID:  note.UserID,
		Content: note.Content,
		Title:   note.Title,
	})
	if err != nil {
		s.logger.Error("enqueue reprocess", zap.String("note_id", note.ID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue")
	}

	return c.JSON(http.StatusAccepted, ReprocessResponse{JobID: jobID})
}

// ProcessPendingRequest is the request body for POST /api/v1/process-pending.
type ProcessPendingRequest struct {
	Limit int `json:"limit"`
}

// ProcessPendingResponse is the response body for POST /api/v1/process-pending.
type ProcessPendingResponse struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// handleProcessPending runs the batch runner synchronously for the calling
// user.
func (s *Server) handleProcessPending(c echo.Context) error {
	var req ProcessPendingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	processed, errored, err := s.batch.ProcessPending(c.Request().Context(), userID(c), req.Limit)
	if err != nil {
		s.logger.Error("batch run", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "batch run failed")
	}

	return c.JSON(http.StatusOK, ProcessPendingResponse{Processed: processed, Errors: errored})
}
