// Package store persists notes, ideas, tags and user settings in SQLite.
//
// The schema is bootstrapped on open. The driver is modernc.org/sqlite so
// tests and deployments need no cgo.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	content           TEXT NOT NULL,
	source            TEXT NOT NULL DEFAULT 'MANUAL',
	processing_status TEXT NOT NULL DEFAULT 'PENDING',
	ai_decision       TEXT,
	ai_response       TEXT,
	processing_error  TEXT,
	processed_at      TIMESTAMP,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_user_status ON notes(user_id, processing_status);
CREATE INDEX IF NOT EXISTS idx_notes_status_created ON notes(processing_status, created_at);

CREATE TABLE IF NOT EXISTS ideas (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	note_id     TEXT REFERENCES notes(id),
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT 'THOUGHT',
	potential   TEXT NOT NULL DEFAULT 'MEDIUM',
	type        TEXT NOT NULL DEFAULT 'CONCEPT',
	status      TEXT NOT NULL DEFAULT 'NEW',
	next_steps  TEXT NOT NULL DEFAULT '[]',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ideas_note ON ideas(note_id);

CREATE TABLE IF NOT EXISTS tags (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS idea_tags (
	idea_id TEXT NOT NULL REFERENCES ideas(id),
	tag_id  TEXT NOT NULL REFERENCES tags(id),
	PRIMARY KEY (idea_id, tag_id)
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id       TEXT PRIMARY KEY,
	ai_provider   TEXT NOT NULL DEFAULT 'CLAUDE',
	ai_enabled    INTEGER NOT NULL DEFAULT 0,
	anthropic_key TEXT NOT NULL DEFAULT '',
	anthropic_iv  TEXT NOT NULL DEFAULT '',
	openai_key    TEXT NOT NULL DEFAULT '',
	openai_iv     TEXT NOT NULL DEFAULT '',
	claude_model  TEXT NOT NULL DEFAULT '',
	openai_model  TEXT NOT NULL DEFAULT '',
	temperature   REAL NOT NULL DEFAULT 0.7,
	custom_prompt TEXT NOT NULL DEFAULT '',
	keep_email    TEXT NOT NULL DEFAULT '',
	keep_token    TEXT NOT NULL DEFAULT '',
	keep_token_iv TEXT NOT NULL DEFAULT '',
	sync_status   TEXT NOT NULL DEFAULT 'IDLE',
	sync_error    TEXT NOT NULL DEFAULT ''
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and bootstraps the
// schema. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The driver serializes access per connection; a single connection
	// avoids table-lock errors from concurrent writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateNote inserts a new note in PENDING status, assigning an id and
// timestamps. The note argument is updated in place.
func (s *Store) CreateNote(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.Source == "" {
		note.Source = SourceManual
	}
	now := time.Now().UTC()
	note.Status = StatusPending
	note.CreatedAt = now
	note.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, title, content, source, processing_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.UserID, note.Title, note.Content, note.Source, note.Status, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetNote loads a note by id.
func (s *Store) GetNote(ctx context.Context, id string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, source, processing_status,
		       COALESCE(ai_decision, ''), COALESCE(ai_response, ''),
		       COALESCE(processing_error, ''), processed_at, created_at, updated_at
		FROM notes WHERE id = ?`, id)

	var n Note
	var processedAt sql.NullTime
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Source, &n.Status,
		&n.Decision, &n.AIResponse, &n.ProcessingError, &processedAt, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load note: %w", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		n.ProcessedAt = &t
	}
	return &n, nil
}

// ClaimNote conditionally moves a note into PROCESSING. The update applies
// only when the current status is claimable (anything but PROCESSING), which
// turns a reprocess racing a queued job into a single winner. Returns whether
// this caller won the claim.
func (s *Store) ClaimNote(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET processing_status = ?, updated_at = ?
		WHERE id = ? AND processing_status IN (?, ?, ?, ?)`,
		StatusProcessing, time.Now().UTC(), id,
		StatusPending, StatusFailed, StatusSkipped, StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("claim note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim note: %w", err)
	}
	return affected == 1, nil
}

// FinishNote writes a terminal outcome for a note.
func (s *Store) FinishNote(ctx context.Context, id string, out Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET processing_status = ?, ai_decision = NULLIF(?, ''),
		       ai_response = NULLIF(?, ''), processing_error = NULLIF(?, ''),
		       processed_at = ?, updated_at = ?
		WHERE id = ?`,
		out.Status, string(out.Decision), out.AIResponse, out.ProcessingError,
		out.ProcessedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finish note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish note: %w", err)
	}
	if affected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// ListPendingNotes returns up to limit oldest PENDING notes, optionally
// scoped to one user.
func (s *Store) ListPendingNotes(ctx context.Context, userID string, limit int) ([]*Note, error) {
	query := `
		SELECT id, user_id, title, content, source, processing_status,
		       COALESCE(ai_decision, ''), COALESCE(ai_response, ''),
		       COALESCE(processing_error, ''), processed_at, created_at, updated_at
		FROM notes WHERE processing_status = ?`
	args := []any{StatusPending}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		var processedAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Source, &n.Status,
			&n.Decision, &n.AIResponse, &n.ProcessingError, &processedAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if processedAt.Valid {
			t := processedAt.Time
			n.ProcessedAt = &t
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

// CreateIdea inserts an idea, upserts its tags by name and links them, all
// in one transaction. Duplicate tag names produce a single tag row and a
// single link.
func (s *Store) CreateIdea(ctx context.Context, idea *Idea, tags []string) error {
	if idea.ID == "" {
		idea.ID = uuid.NewString()
	}
	if idea.Status == "" {
		idea.Status = IdeaStatusNew
	}
	idea.CreatedAt = time.Now().UTC()

	steps, err := json.Marshal(idea.NextSteps)
	if err != nil {
		return fmt.Errorf("marshal next steps: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ideas (id, user_id, note_id, title, description, category, potential, type, status, next_steps, created_at)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?)`,
		idea.ID, idea.UserID, idea.NoteID, idea.Title, idea.Description,
		idea.Category, idea.Potential, idea.Type, idea.Status, string(steps), idea.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert idea: %w", err)
	}

	for _, name := range tags {
		tagID, err := upsertTag(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO idea_tags (idea_id, tag_id) VALUES (?, ?)`,
			idea.ID, tagID); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	return tx.Commit()
}

// upsertTag looks a tag up by exact name, creating it on first use. The
// conflict-tolerant insert keeps concurrent upserts of the same name from
// producing duplicate rows.
func upsertTag(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name); err != nil {
		return "", fmt.Errorf("upsert tag %q: %w", name, err)
	}
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return "", fmt.Errorf("lookup tag %q: %w", name, err)
	}
	return id, nil
}

// UpsertTag is the standalone form of the lookup-or-create used inside
// CreateIdea.
func (s *Store) UpsertTag(ctx context.Context, name string) (*Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertTag(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Tag{ID: id, Name: name}, nil
}

// IdeasForNote returns the ideas derived from a note, oldest first.
func (s *Store) IdeasForNote(ctx context.Context, noteID string) ([]*Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(note_id, ''), title, description, category, potential, type, status, next_steps, created_at
		FROM ideas WHERE note_id = ? ORDER BY created_at ASC`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()
	return scanIdeas(rows)
}

func scanIdeas(rows *sql.Rows) ([]*Idea, error) {
	var ideas []*Idea
	for rows.Next() {
		var idea Idea
		var steps string
		if err := rows.Scan(&idea.ID, &idea.UserID, &idea.NoteID, &idea.Title, &idea.Description,
			&idea.Category, &idea.Potential, &idea.Type, &idea.Status, &steps, &idea.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		if err := json.Unmarshal([]byte(steps), &idea.NextSteps); err != nil {
			return nil, fmt.Errorf("decode next steps: %w", err)
		}
		ideas = append(ideas, &idea)
	}
	return ideas, rows.Err()
}

// TagsForIdea returns the tag names linked to an idea, sorted by name.
func (s *Store) TagsForIdea(ctx context.Context, ideaID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN idea_tags it ON it.tag_id = t.id
		WHERE it.idea_id = ? ORDER BY t.name`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list idea tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountTags returns the number of tag rows with the given name. At most one
// row per distinct name may ever exist.
func (s *Store) CountTags(ctx context.Context, name string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags WHERE name = ?`, name).Scan(&n)
	return n, err
}

// GetUserSettings loads a user's AI settings, falling back to defaults when
// no row exists.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (*UserSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, ai_provider, ai_enabled, anthropic_key, anthropic_iv,
		       openai_key, openai_iv, claude_model, openai_model, temperature, custom_prompt,
		       keep_email, keep_token, keep_token_iv, sync_status, sync_error
		FROM user_settings WHERE user_id = ?`, userID)

	var st UserSettings
	err := row.Scan(&st.UserID, &st.Provider, &st.AIEnabled, &st.AnthropicKey, &st.AnthropicIV,
		&st.OpenAIKey, &st.OpenAIIV, &st.ClaudeModel, &st.OpenAIModel, &st.Temperature, &st.CustomPrompt,
		&st.KeepEmail, &st.KeepToken, &st.KeepTokenIV, &st.SyncStatus, &st.SyncError)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if st.ClaudeModel == "" {
		st.ClaudeModel = DefaultClaudeModel
	}
	if st.OpenAIModel == "" {
		st.OpenAIModel = DefaultOpenAIModel
	}
	return &st, nil
}

// SaveUserSettings writes the full settings row for a user.
func (s *Store) SaveUserSettings(ctx context.Context, st *UserSettings) error {
	if st.SyncStatus == "" {
		st.SyncStatus = SyncIdle
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, ai_provider, ai_enabled, anthropic_key, anthropic_iv,
		                           openai_key, openai_iv, claude_model, openai_model, temperature, custom_prompt,
		                           keep_email, keep_token, keep_token_iv, sync_status, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			ai_provider = excluded.ai_provider,
			ai_enabled = excluded.ai_enabled,
			anthropic_key = excluded.anthropic_key,
			anthropic_iv = excluded.anthropic_iv,
			openai_key = excluded.openai_key,
			openai_iv = excluded.openai_iv,
			claude_model = excluded.claude_model,
			openai_model = excluded.openai_model,
			temperature = excluded.temperature,
			custom_prompt = excluded.custom_prompt,
			keep_email = excluded.keep_email,
			keep_token = excluded.keep_token,
			keep_token_iv = excluded.keep_token_iv,
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error`,
		st.UserID, st.Provider, st.AIEnabled, st.AnthropicKey, st.AnthropicIV,
		st.OpenAIKey, st.OpenAIIV, st.ClaudeModel, st.OpenAIModel, st.Temperature, st.CustomPrompt,
		st.KeepEmail, st.KeepToken, st.KeepTokenIV, st.SyncStatus, st.SyncError)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
