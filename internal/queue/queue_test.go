package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaBras1/keep-brain/internal/ai"
	"github.com/LucaBras1/keep-brain/internal/processor"
	"github.com/LucaBras1/keep-brain/internal/store"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1, // Random port
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// fakeProcessor returns scripted errors per call and signals each attempt.
type fakeProcessor struct {
	mu       sync.Mutex
	results  []error
	calls    []string
	attempts chan string
}

func newFakeProcessor(results ...error) *fakeProcessor {
	return &fakeProcessor{results: results, attempts: make(chan string, 16)}
}

func (f *fakeProcessor) Process(ctx context.Context, noteID string) error {
	f.mu.Lock()
	f.calls = append(f.calls, noteID)
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	f.mu.Unlock()

	f.attempts <- noteID
	return err
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitForAttempt(t *testing.T, f *fakeProcessor, timeout time.Duration) string {
	t.Helper()
	select {
	case id := <-f.attempts:
		return id
	case <-time.After(timeout):
		t.Fatal("timeout waiting for job delivery")
		return ""
	}
}

func runWorker(t *testing.T, nc *nats.Conn, proc NoteProcessor) {
	t.Helper()
	worker, err := NewWorker(nc, proc, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcherEnqueue(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	id, err := d.Enqueue(context.Background(), ProcessJob{
		NoteID: "note-1", UserID: "u1", Content: "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	js, err := nc.JetStream()
	require.NoError(t, err)
	info, err := js.StreamInfo(StreamName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestDispatcherStreamAlreadyExists(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	_, err := NewDispatcher(nc, nil)
	require.NoError(t, err)
	// Second dispatcher binds to the existing stream.
	_, err = NewDispatcher(nc, nil)
	require.NoError(t, err)
}

func TestDispatcherEnqueueBatch(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	jobs := []ProcessJob{
		{NoteID: "n1", UserID: "u1", Content: "a"},
		{NoteID: "n2", UserID: "u1", Content: "b"},
		{NoteID: "n3", UserID: "u2", Content: "c"},
	}
	ids, err := d.EnqueueBatch(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "job IDs must be unique")
		seen[id] = true
	}
}

func TestDispatcherEnqueueSync(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	_, err = d.EnqueueSync(context.Background(), SyncJob{
		UserID: "u1", Action: "sync", Email: "u@example.com", AppPassword: "abcd",
	})
	require.NoError(t, err)

	// The sync subject is part of the stream but untouched by the note
	// worker's subject filter.
	js, err := nc.JetStream()
	require.NoError(t, err)
	msg, err := js.GetLastMsg(StreamName, SubjectSync)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Data), `"appPassword":"abcd"`)
}

func TestWorkerProcessesJob(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	proc := newFakeProcessor(nil)
	runWorker(t, nc, proc)

	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "note-1", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "note-1", waitForAttempt(t, proc, 5*time.Second))
}

func TestWorkerRetryableFailureRedelivers(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	retryable := fmt.Errorf("call: %w", ai.NewRetryableError(errors.New("rate limited")))
	proc := newFakeProcessor(retryable, retryable, nil)
	runWorker(t, nc, proc)

	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "note-1", UserID: "u1"})
	require.NoError(t, err)

	// First attempt, then redeliveries after the 1s and 2s backoff steps.
	waitForAttempt(t, proc, 5*time.Second)
	waitForAttempt(t, proc, 5*time.Second)
	waitForAttempt(t, proc, 10*time.Second)

	// The third attempt succeeded; MaxDeliver is exhausted either way.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 3, proc.callCount())
}

func TestWorkerTerminalFailureNotRedelivered(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	proc := newFakeProcessor(errors.New("bad API key"))
	runWorker(t, nc, proc)

	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "note-1", UserID: "u1"})
	require.NoError(t, err)

	waitForAttempt(t, proc, 5*time.Second)

	// Longer than the first backoff step; a redelivery would have landed.
	time.Sleep(2 * time.Second)
	assert.Equal(t, 1, proc.callCount())
}

func TestWorkerDuplicateDeliveryAcked(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	proc := newFakeProcessor(processor.ErrAlreadyProcessing)
	runWorker(t, nc, proc)

	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "note-1", UserID: "u1"})
	require.NoError(t, err)

	waitForAttempt(t, proc, 5*time.Second)
	time.Sleep(2 * time.Second)
	assert.Equal(t, 1, proc.callCount())
}

func TestWorkerMissingNoteDropped(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	proc := newFakeProcessor(store.ErrNoteNotFound)
	runWorker(t, nc, proc)

	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "ghost", UserID: "u1"})
	require.NoError(t, err)

	waitForAttempt(t, proc, 5*time.Second)
	time.Sleep(2 * time.Second)
	assert.Equal(t, 1, proc.callCount())
}

func TestWorkerMalformedPayloadDropped(t *testing.T) {
	server := startTestNATSServer(t)
	nc := connect(t, server)

	_, err := NewDispatcher(nc, nil)
	require.NoError(t, err)

	proc := newFakeProcessor(nil)
	runWorker(t, nc, proc)

	js, err := nc.JetStream()
	require.NoError(t, err)
	_, err = js.Publish(SubjectProcess, []byte("not json"))
	require.NoError(t, err)

	// Follow with a valid job; it must still come through.
	d, err := NewDispatcher(nc, nil)
	require.NoError(t, err)
	_, err = d.Enqueue(context.Background(), ProcessJob{NoteID: "note-2", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "note-2", waitForAttempt(t, proc, 5*time.Second))
	assert.Equal(t, 1, proc.callCount())
}
