package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/ai"
	"github.com/LucaBras1/keep-brain/internal/processor"
	"github.com/LucaBras1/keep-brain/internal/store"
)

const (
	// maxDeliver caps total delivery attempts per job. With the backoff
	// schedule below a job is tried at most three times before it is
	// dropped by the server.
	maxDeliver = 3

	fetchBatch = 10
	fetchWait  = 2 * time.Second
)

// redeliveryBackoff spaces the retries out; the schedule must be shorter
// than maxDeliver for the server to accept the consumer.
var redeliveryBackoff = []time.Duration{1 * time.Second, 2 * time.Second}

// NoteProcessor is the piece of the processor the worker drives.
type NoteProcessor interface {
	Process(ctx context.Context, noteID string) error
}

// Worker is the durable pull consumer for notes.process. Success acks,
// retryable provider failures nak into the backoff schedule, everything
// terminal (bad payload, missing note, non-retryable provider error) is
// terminated so it never redelivers.
type Worker struct {
	js        nats.JetStreamContext
	processor NoteProcessor
	logger    *zap.Logger
}

// NewWorker builds a Worker over an established NATS connection.
func NewWorker(nc *nats.Conn, proc NoteProcessor, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &Worker{js: js, processor: proc, logger: logger}, nil
}

// Run subscribes the durable consumer and processes jobs until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.js.PullSubscribe(SubjectProcess, DurableName,
		nats.BindStream(StreamName),
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliver),
		nats.BackOff(redeliveryBackoff),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectProcess, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	w.logger.Info("queue worker started",
		zap.String("stream", StreamName),
		zap.String("durable", DurableName))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch jobs: %w", err)
		}

		for _, msg := range msgs {
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *nats.Msg) {
	var job ProcessJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error("malformed job payload, dropping", zap.Error(err))
		_ = msg.Term()
		return
	}

	logger := w.logger.With(
		zap.String("note_id", job.NoteID),
		zap.String("user_id", job.UserID))

	err := w.processor.Process(ctx, job.NoteID)
	switch {
	case err == nil:
		_ = msg.Ack()

	case errors.Is(err, processor.ErrAlreadyProcessing):
		// Another worker holds the claim; this delivery is a duplicate.
		logger.Debug("note already claimed, acking duplicate delivery")
		_ = msg.Ack()

	case errors.Is(err, store.ErrNoteNotFound):
		logger.Warn("note gone, dropping job")
		_ = msg.Term()

	case ai.IsRetryable(err):
		// A plain Nak redelivers immediately; the delay must be explicit to
		// space the attempts out.
		delay := retryDelay(msg)
		logger.Warn("retryable failure, scheduling redelivery",
			zap.Duration("delay", delay),
			zap.Error(err))
		_ = msg.NakWithDelay(delay)

	default:
		// The processor already recorded the FAILED outcome; redelivering
		// would only repeat the same terminal error.
		logger.Error("terminal failure, dropping job", zap.Error(err))
		_ = msg.Term()
	}
}

// retryDelay picks the backoff step for the next redelivery of msg, doubling
// per attempt like the schedule the consumer was created with.
func retryDelay(msg *nats.Msg) time.Duration {
	meta, err := msg.Metadata()
	if err != nil {
		return redeliveryBackoff[0]
	}
	idx := int(meta.NumDelivered) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(redeliveryBackoff) {
		idx = len(redeliveryBackoff) - 1
	}
	return redeliveryBackoff[idx]
}
