package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Dispatcher publishes jobs to the KEEPBRAIN stream. It creates the stream
// on startup if it does not exist.
type Dispatcher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewDispatcher builds a Dispatcher over an established NATS connection and
// ensures the stream exists.
func NewDispatcher(nc *nats.Conn, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	d := &Dispatcher{js: js, logger: logger}
	if err := d.ensureStream(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) ensureStream() error {
	_, err := d.js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	_, err = d.js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectProcess, SubjectSync},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}

	d.logger.Info("created job stream", zap.String("stream", StreamName))
	return nil
}

// Enqueue publishes one processing job and returns its job ID. The ID doubles
// as the JetStream message ID, so republishing the same job within the
// dedup window is a no-op.
func (d *Dispatcher) Enqueue(ctx context.Context, job ProcessJob) (string, error) {
	return d.publish(ctx, SubjectProcess, job)
}

// EnqueueBatch publishes processing jobs one by one and returns the IDs of
// those that made it in. On failure the already-published IDs are returned
// alongside the error.
func (d *Dispatcher) EnqueueBatch(ctx context.Context, jobs []ProcessJob) ([]string, error) {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		id, err := d.Enqueue(ctx, job)
		if err != nil {
			return ids, fmt.Errorf("enqueue note %s: %w", job.NoteID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnqueueSync publishes a credential sync job for the external keep-sync
// worker.
func (d *Dispatcher) EnqueueSync(ctx context.Context, job SyncJob) (string, error) {
	return d.publish(ctx, SubjectSync, job)
}

func (d *Dispatcher) publish(ctx context.Context, subject string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	jobID := uuid.New().String()
	msg := nats.NewMsg(subject)
	msg.Header.Set(nats.MsgIdHdr, jobID)
	msg.Data = data

	if _, err := d.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("publish %s: %w", subject, err)
	}

	d.logger.Debug("job enqueued",
		zap.String("subject", subject),
		zap.String("job_id", jobID))
	return jobID, nil
}
