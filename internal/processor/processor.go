// Package processor drives a note through the extraction state machine:
// claim, provider call, parse, idea creation, terminal status write.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/ai"
	"github.com/LucaBras1/keep-brain/internal/extract"
	"github.com/LucaBras1/keep-brain/internal/prompt"
	"github.com/LucaBras1/keep-brain/internal/store"
)

// ErrAlreadyProcessing is returned when another worker holds the claim on a
// note. The loser must not touch the note.
var ErrAlreadyProcessing = errors.New("processor: note is already being processed")

// errNoProviderMessage is the fixed processing_error recorded when provider
// resolution fails.
const errNoProviderMessage = "No AI provider configured"

// errParseMessage is the fixed processing_error recorded when model output
// cannot be parsed.
const errParseMessage = "Failed to parse AI response"

// Store is the persistence surface the processor needs.
type Store interface {
	GetNote(ctx context.Context, id string) (*store.Note, error)
	ClaimNote(ctx context.Context, id string) (bool, error)
	FinishNote(ctx context.Context, id string, out store.Outcome) error
	ListPendingNotes(ctx context.Context, userID string, limit int) ([]*store.Note, error)
	GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error)
	CreateIdea(ctx context.Context, idea *store.Idea, tags []string) error
}

// Resolver picks an AI provider for a user's settings.
type Resolver interface {
	ForSettings(settings *store.UserSettings) (ai.Provider, error)
}

// Processor orchestrates one note's lifecycle.
type Processor struct {
	store    Store
	resolver Resolver
	logger   *zap.Logger
}

// New creates a Processor.
func New(st Store, resolver Resolver, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: st, resolver: resolver, logger: logger}
}

// Process runs the full extraction pipeline for one note.
//
// Once the note is claimed into PROCESSING, every failure path lands in a
// terminal status before returning; a note is never left in PROCESSING.
// Reprocessing a terminal note is allowed and appends a new Idea for a
// repeated COMPLETED outcome.
func (p *Processor) Process(ctx context.Context, noteID string) error {
	note, err := p.store.GetNote(ctx, noteID)
	if err != nil {
		return err
	}

	claimed, err := p.store.ClaimNote(ctx, noteID)
	if err != nil {
		return fmt.Errorf("claim note: %w", err)
	}
	if !claimed {
		return ErrAlreadyProcessing
	}

	logger := p.logger.With(zap.String("note_id", noteID), zap.String("user_id", note.UserID))

	settings, err := p.store.GetUserSettings(ctx, note.UserID)
	if err != nil {
		return p.fail(ctx, noteID, logger, "", err.Error(), err)
	}

	provider, err := p.resolver.ForSettings(settings)
	if err != nil {
		if errors.Is(err, ai.ErrNoProviderConfigured) {
			return p.fail(ctx, noteID, logger, "", errNoProviderMessage, err)
		}
		return p.fail(ctx, noteID, logger, "", err.Error(), err)
	}

	template := settings.CustomPrompt
	if template == "" {
		template = prompt.DefaultTemplate
	}
	rendered := prompt.Render(template, note.Title, note.Content)

	logger.Debug("calling provider",
		zap.String("model", provider.Model()),
		zap.Float64("temperature", settings.Temperature))

	raw, err := provider.Complete(ctx, rendered, ai.Options{Temperature: settings.Temperature})
	if err != nil {
		return p.fail(ctx, noteID, logger, "", err.Error(), err)
	}

	// From here on only persistence remains. It must finish even when the
	// job context is cancelled mid-shutdown; an aborted write would strand
	// the note in PROCESSING with no redelivery able to reclaim it.
	ctx = context.WithoutCancel(ctx)

	result, err := extract.Parse(raw)
	if err != nil {
		logger.Error("unparsable AI response", zap.Error(err))
		return p.fail(ctx, noteID, logger, raw, errParseMessage, err)
	}

	switch r := result.(type) {
	case extract.Skip:
		if err := p.store.FinishNote(ctx, noteID, store.Outcome{
			Status:      store.StatusSkipped,
			Decision:    store.DecisionSkipped,
			AIResponse:  raw,
			ProcessedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("write skipped status: %w", err)
		}
		logger.Info("note skipped")
		return nil

	case extract.Extracted:
		idea := &store.Idea{
			UserID:      note.UserID,
			NoteID:      note.ID,
			Title:       r.Draft.Title,
			Description: r.Draft.Description,
			Category:    r.Draft.Category,
			Potential:   r.Draft.Potential,
			Type:        r.Draft.Type,
			NextSteps:   r.Draft.NextSteps,
		}
		if err := p.store.CreateIdea(ctx, idea, r.Draft.Tags); err != nil {
			return p.fail(ctx, noteID, logger, raw, err.Error(), err)
		}

		if err := p.store.FinishNote(ctx, noteID, store.Outcome{
			Status:      store.StatusCompleted,
			Decision:    store.DecisionExtracted,
			AIResponse:  raw,
			ProcessedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("write completed status: %w", err)
		}
		logger.Info("idea extracted",
			zap.String("idea_id", idea.ID),
			zap.String("category", string(idea.Category)),
			zap.Int("tags", len(r.Draft.Tags)))
		return nil

	default:
		err := fmt.Errorf("unexpected parse result %T", result)
		return p.fail(ctx, noteID, logger, raw, err.Error(), err)
	}
}

// fail records a terminal FAILED outcome and returns the original cause.
// The terminal write must not be lost: its own failure is logged and joined.
func (p *Processor) fail(ctx context.Context, noteID string, logger *zap.Logger, raw, message string, cause error) error {
	logger.Warn("note processing failed", zap.String("reason", message), zap.Error(cause))

	if err := p.store.FinishNote(context.WithoutCancel(ctx), noteID, store.Outcome{
		Status:          store.StatusFailed,
		Decision:        store.DecisionError,
		AIResponse:      raw,
		ProcessingError: message,
		ProcessedAt:     time.Now().UTC(),
	}); err != nil {
		logger.Error("terminal status write failed", zap.Error(err))
		return errors.Join(cause, err)
	}
	return cause
}
