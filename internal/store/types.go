package store

import (
	"errors"
	"time"

	"github.com/LucaBras1/keep-brain/internal/extract"
)

var (
	// ErrNoteNotFound is returned when a note id does not exist.
	ErrNoteNotFound = errors.New("store: note not found")

	// ErrIdeaNotFound is returned when an idea id does not exist.
	ErrIdeaNotFound = errors.New("store: idea not found")
)

// Status is a note's position in the processing state machine.
type Status string

// Note statuses. PENDING is initial; PROCESSING is transient; the rest are
// terminal (FAILED and SKIPPED re-enterable via reprocess, COMPLETED
// re-enterable by explicit operator choice).
const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusSkipped    Status = "SKIPPED"
)

// Decision is the semantic outcome of extraction, correlated with Status.
type Decision string

// AI decisions.
const (
	DecisionExtracted Decision = "EXTRACTED"
	DecisionSkipped   Decision = "SKIPPED"
	DecisionError     Decision = "ERROR"
)

// Source identifies where a note was ingested from.
type Source string

// Note sources.
const (
	SourceManual Source = "MANUAL"
	SourceKeep   Source = "KEEP"
)

// Vendor names an AI provider slot in user settings.
type Vendor string

// Supported vendors.
const (
	VendorClaude Vendor = "CLAUDE"
	VendorOpenAI Vendor = "OPENAI"
)

// Note is a raw ingested piece of text awaiting or having undergone AI
// classification. The pipeline mutates only the processing fields; title and
// content edits belong to the user and never reset status.
type Note struct {
	ID              string
	UserID          string
	Title           string
	Content         string
	Source          Source
	Status          Status
	Decision        Decision // empty until a terminal write sets it
	AIResponse      string
	ProcessingError string
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Idea is the structured record extracted from a note. The back-reference to
// the note is a lookup relation: deleting the note does not cascade here.
type Idea struct {
	ID          string
	UserID      string
	NoteID      string // empty when the idea was entered directly
	Title       string
	Description string
	Category    extract.Category
	Potential   extract.Potential
	Type        extract.IdeaType
	Status      string
	NextSteps   []string
	CreatedAt   time.Time
}

// IdeaStatusNew is the workflow status every extracted idea starts in. The
// pipeline never moves it further.
const IdeaStatusNew = "NEW"

// Tag has a globally unique name shared across all users and ideas.
type Tag struct {
	ID   string
	Name string
}

// Outcome is a terminal status write for a note.
type Outcome struct {
	Status          Status
	Decision        Decision
	AIResponse      string
	ProcessingError string
	ProcessedAt     time.Time
}

// SyncStatus tracks the external Keep sync worker's progress for a user.
type SyncStatus string

// Sync statuses. The core writes IDLE, SYNCING and FAILED; SUCCESS comes
// from the external worker.
const (
	SyncIdle    SyncStatus = "IDLE"
	SyncSyncing SyncStatus = "SYNCING"
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailed  SyncStatus = "FAILED"
)

// UserSettings holds per-user AI configuration and the Google Keep
// connection. Key, IV and Keep token columns contain vault-encrypted hex;
// decryption happens in the provider resolver.
type UserSettings struct {
	UserID       string
	Provider     Vendor
	AIEnabled    bool
	AnthropicKey string
	AnthropicIV  string
	OpenAIKey    string
	OpenAIIV     string
	ClaudeModel  string
	OpenAIModel  string
	Temperature  float64
	CustomPrompt string
	KeepEmail    string
	KeepToken    string
	KeepTokenIV  string
	SyncStatus   SyncStatus
	SyncError    string
}

// Default model and temperature applied when a user has no settings row.
const (
	DefaultClaudeModel = "claude-3-5-sonnet-20241022"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

// DefaultSettings returns the settings used for a user with no stored row.
func DefaultSettings(userID string) *UserSettings {
	return &UserSettings{
		UserID:      userID,
		Provider:    VendorClaude,
		ClaudeModel: DefaultClaudeModel,
		OpenAIModel: DefaultOpenAIModel,
		Temperature: DefaultTemperature,
		SyncStatus:  SyncIdle,
	}
}
