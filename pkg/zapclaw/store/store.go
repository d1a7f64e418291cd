// Package store persists per-user conversation history and the global bot
// settings in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_jid TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_ts ON conversations(user_jid, ts DESC);

CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	system_prompt TEXT NOT NULL,
	temperature REAL NOT NULL
);
`

// DefaultSystemPrompt seeds the settings row on first open.
const DefaultSystemPrompt = "Você é um assistente do WhatsApp. Responda de forma curta, clara e educada, sempre em português do Brasil."

// DefaultTemperature seeds the settings row on first open.
const DefaultTemperature = 0.7

// Turn is one stored conversation message.
type Turn struct {
	ID        int64
	UserJID   string
	Role      string // "user" or "assistant"
	Content   string
	Timestamp int64 // wall-clock milliseconds
}

// Settings is the single global settings record.
type Settings struct {
	SystemPrompt string
	Temperature  float64
}

// StorageError wraps every error leaving this package with the failing
// operation name. Callers fail fast on it; there are no retries here.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store is the SQLite-backed conversation and settings adapter.
type Store struct {
	db        *sql.DB
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
}

// Open opens (creating if needed) the database at path, applies the schema
// and seeds the settings row.
func Open(path string, sanitizer *sanitize.Sanitizer, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO settings (id, system_prompt, temperature) VALUES (1, ?, ?)`,
		DefaultSystemPrompt, DefaultTemperature,
	); err != nil {
		db.Close()
		return nil, storageErr("seed settings", err)
	}

	return &Store{
		db:        db,
		sanitizer: sanitizer,
		logger:    logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTurn sanitizes content and inserts it as one turn. Content that is
// empty after sanitization is silently skipped.
func (s *Store) AppendTurn(userJID, role, content string, ts int64) error {
	clean := s.sanitizer.Clean(content)
	if clean == "" {
		s.logger.Debug("skipping empty turn after sanitize", "user", userJID, "role", role)
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO conversations (user_jid, role, content, ts) VALUES (?, ?, ?, ?)`,
		userJID, role, clean, ts,
	)
	if err != nil {
		return storageErr("append turn", err)
	}
	return nil
}

// RecentWindow returns the newest limit turns for userJID, oldest first.
// Stored content is re-sanitized on the way out in case rows predate the
// current cleaning policy.
func (s *Store) RecentWindow(userJID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT id, user_jid, role, content, ts FROM conversations
		 WHERE user_jid = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		userJID, limit,
	)
	if err != nil {
		return nil, storageErr("recent window", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserJID, &t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, storageErr("recent window scan", err)
		}
		t.Content = s.sanitizer.Clean(t.Content)
		if t.Content == "" {
			continue
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent window rows", err)
	}

	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Trim deletes all but the newest keep turns for userJID.
func (s *Store) Trim(userJID string, keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM conversations WHERE user_jid = ? AND id IN (
			SELECT id FROM conversations WHERE user_jid = ?
			ORDER BY ts DESC, id DESC LIMIT -1 OFFSET ?
		)`,
		userJID, userJID, keep,
	)
	if err != nil {
		return storageErr("trim", err)
	}
	return nil
}

// Reset deletes every turn for userJID.
func (s *Store) Reset(userJID string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE user_jid = ?`, userJID)
	if err != nil {
		return storageErr("reset", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Info("conversation reset", "user", userJID, "removed", n)
	}
	return nil
}

// CountTurns returns how many turns are stored for userJID.
func (s *Store) CountTurns(userJID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE user_jid = ?`, userJID).Scan(&n)
	if err != nil {
		return 0, storageErr("count turns", err)
	}
	return n, nil
}

// Settings returns the global settings record.
func (s *Store) Settings() (Settings, error) {
	var st Settings
	err := s.db.QueryRow(`SELECT system_prompt, temperature FROM settings WHERE id = 1`).
		Scan(&st.SystemPrompt, &st.Temperature)
	if err != nil {
		return Settings{}, storageErr("settings", err)
	}
	return st, nil
}

// UpdateSettings replaces the whole settings record. Range validation of the
// temperature is the caller's job.
func (s *Store) UpdateSettings(prompt string, temperature float64) error {
	_, err := s.db.Exec(
		`UPDATE settings SET system_prompt = ?, temperature = ? WHERE id = 1`,
		prompt, temperature,
	)
	if err != nil {
		return storageErr("update settings", err)
	}
	return nil
}
