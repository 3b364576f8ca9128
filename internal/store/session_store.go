package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ephemerchat/ephemer/internal/domain"
)

// SQLiteSessionStore implements SessionStore backed by SQLite.
type SQLiteSessionStore struct {
	db *DB
}

// NewSQLiteSessionStore creates a session store using the given database.
func NewSQLiteSessionStore(db *DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db}
}

// Create persists a new session.
func (s *SQLiteSessionStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, title, ai_model, temperature, max_tokens,
		                       system_prompt, is_active, ip_address, user_agent,
		                       total_messages, total_tokens, created_at, last_activity, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.UserID, sess.Title,
		sess.Settings.AIModel, sess.Settings.Temperature, sess.Settings.MaxTokens, sess.Settings.SystemPrompt,
		boolToInt(sess.Active), sess.Meta.IPAddress, sess.Meta.UserAgent,
		sess.Usage.TotalMessages, sess.Usage.TotalTokens,
		sess.CreatedAt.Format(time.DateTime),
		sess.LastActivity.Format(time.DateTime),
		sess.ExpiresAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// FindActive returns a session only if it is active and not yet expired.
// Timestamps are stored in datetime format, so string comparison orders
// correctly.
func (s *SQLiteSessionStore) FindActive(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := time.Now().Format(time.DateTime)

	var sess domain.Session
	var active int
	var createdAt, lastActivity, expiresAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT session_id, user_id, title, ai_model, temperature, max_tokens, system_prompt,
		        is_active, ip_address, user_agent, total_messages, total_tokens,
		        created_at, last_activity, expires_at
		 FROM sessions
		 WHERE session_id = ? AND is_active = 1 AND expires_at > ?`,
		sessionID, now,
	).Scan(
		&sess.SessionID, &sess.UserID, &sess.Title,
		&sess.Settings.AIModel, &sess.Settings.Temperature, &sess.Settings.MaxTokens, &sess.Settings.SystemPrompt,
		&active, &sess.Meta.IPAddress, &sess.Meta.UserAgent,
		&sess.Usage.TotalMessages, &sess.Usage.TotalTokens,
		&createdAt, &lastActivity, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}

	sess.Active = active != 0
	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.LastActivity, _ = time.Parse(time.DateTime, lastActivity)
	sess.ExpiresAt, _ = time.Parse(time.DateTime, expiresAt)

	msgs, err := s.loadMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

func (s *SQLiteSessionStore) loadMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, content, kind, model, tokens, processing_ms, timestamp
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var model string
		var tokens int
		var processingMS int64
		var ts string
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Kind, &model, &tokens, &processingMS, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Timestamp, _ = time.Parse(time.DateTime, ts)
		if msg.Role == domain.RoleAssistant {
			msg.Meta = &domain.MessageMeta{Model: model, Tokens: tokens, ProcessingMS: processingMS}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// AppendMessage adds a message and updates the session's usage counters and
// activity timestamp in a single transaction.
func (s *SQLiteSessionStore) AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	kind := msg.Kind
	if kind == "" {
		kind = domain.KindChat
	}
	var model string
	var tokens int
	var processingMS int64
	if msg.Meta != nil {
		model = msg.Meta.Model
		tokens = msg.Meta.Tokens
		processingMS = msg.Meta.ProcessingMS
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, kind, model, tokens, processing_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, kind, model, tokens, processingMS,
		msg.Timestamp.Format(time.DateTime),
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions
		 SET total_messages = total_messages + 1,
		     total_tokens = total_tokens + ?,
		     last_activity = ?
		 WHERE session_id = ?`,
		tokens, msg.Timestamp.Format(time.DateTime), sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating session counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}

	return tx.Commit()
}

// UpdateSettings replaces a session's generation settings.
func (s *SQLiteSessionStore) UpdateSettings(ctx context.Context, sessionID string, settings domain.Settings) error {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE sessions
		 SET ai_model = ?, temperature = ?, max_tokens = ?, system_prompt = ?, last_activity = ?
		 WHERE session_id = ?`,
		settings.AIModel, settings.Temperature, settings.MaxTokens, settings.SystemPrompt,
		time.Now().Format(time.DateTime), sessionID,
	)
	if err != nil {
		return fmt.Errorf("updating settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ExtendExpiry moves a session's expiry to the given absolute time.
func (s *SQLiteSessionStore) ExtendExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ?, last_activity = ? WHERE session_id = ?`,
		expiresAt.Format(time.DateTime), time.Now().Format(time.DateTime), sessionID,
	)
	if err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session; messages go with it via ON DELETE CASCADE.
func (s *SQLiteSessionStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListByUser returns summaries of a user's live sessions, most recent first.
func (s *SQLiteSessionStore) ListByUser(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	now := time.Now().Format(time.DateTime)
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT session_id, title, last_activity, expires_at, total_messages, total_tokens
		 FROM sessions
		 WHERE user_id = ? AND is_active = 1 AND expires_at > ?
		 ORDER BY last_activity DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var lastActivity, expiresAt string
		if err := rows.Scan(&sum.SessionID, &sum.Title, &lastActivity, &expiresAt,
			&sum.TotalMessages, &sum.TotalTokens); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		sum.LastActivity, _ = time.Parse(time.DateTime, lastActivity)
		sum.ExpiresAt, _ = time.Parse(time.DateTime, expiresAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// CountAssistantMessages counts AI-generated messages of a kind across all
// of a user's sessions since the given time.
func (s *SQLiteSessionStore) CountAssistantMessages(ctx context.Context, userID, kind string, since time.Time) (int, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM messages m
		 JOIN sessions s ON s.session_id = m.session_id
		 WHERE s.user_id = ? AND m.role = ? AND m.kind = ? AND m.timestamp >= ?`,
		userID, domain.RoleAssistant, kind, since.Format(time.DateTime),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// SweepExpired deletes sessions that have expired or been deactivated.
func (s *SQLiteSessionStore) SweepExpired(ctx context.Context) (int64, error) {
	now := time.Now().Format(time.DateTime)
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ? OR is_active = 0`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.db.log.Info().Int64("removed", n).Msg("swept expired sessions")
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
