// Package queue is the durable job layer: a JetStream stream holds note
// processing jobs and Keep credential sync jobs, a pull worker consumes the
// processing subject with bounded redelivery.
package queue

// Stream and consumer names. The sync subject is produced here and consumed
// by the external keep-sync worker.
const (
	StreamName     = "KEEPBRAIN"
	SubjectProcess = "notes.process"
	SubjectSync    = "keep.sync"
	DurableName    = "keepbrain-worker"
)

// ProcessJob asks the worker to run one note through extraction. Content and
// Title ride along for observability; the processor reloads the note from
// the store before acting on it.
type ProcessJob struct {
	NoteID  string `json:"noteId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
	Title   string `json:"title,omitempty"`
}

// Actions understood by the external sync worker.
const (
	SyncActionAuthenticate  = "authenticate"
	SyncActionSync          = "sync"
	SyncActionExchangeToken = "exchange-token"
	SyncActionLoginPassword = "login-password"
)

// SyncJob carries Google Keep credentials to the external sync worker.
// Exactly one credential field is set depending on the auth method.
type SyncJob struct {
	UserID      string `json:"userId"`
	Action      string `json:"action"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	OAuthToken  string `json:"oauthToken,omitempty"`
	AppPassword string `json:"appPassword,omitempty"`
}
