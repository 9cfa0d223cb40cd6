package processor

import (
	"context"

	"go.uber.org/zap"
)

// DefaultBatchLimit bounds a catch-up run when no limit is given.
const DefaultBatchLimit = 10

// BatchRunner drives the processor over pending notes without relying on
// queue delivery; used for catch-up and backfill.
type BatchRunner struct {
	store     Store
	processor *Processor
	logger    *zap.Logger
}

// NewBatchRunner creates a BatchRunner.
func NewBatchRunner(st Store, proc *Processor, logger *zap.Logger) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{store: st, processor: proc, logger: logger}
}

// ProcessPending loads up to limit oldest PENDING notes, optionally scoped
// to one user, and processes them sequentially. It returns how many notes
// reached a successful outcome and how many errored; an individual note
// failure does not stop the batch.
func (b *BatchRunner) ProcessPending(ctx context.Context, userID string, limit int) (processed, errored int, err error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}

	notes, err := b.store.ListPendingNotes(ctx, userID, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, note := range notes {
		if ctx.Err() != nil {
			return processed, errored, ctx.Err()
		}
		if err := b.processor.Process(ctx, note.ID); err != nil {
			b.logger.Warn("batch note failed",
				zap.String("note_id", note.ID),
				zap.Error(err))
			errored++
			continue
		}
		processed++
	}

	b.logger.Info("batch run finished",
		zap.String("user_id", userID),
		zap.Int("processed", processed),
		zap.Int("errors", errored))
	return processed, errored, nil
}
