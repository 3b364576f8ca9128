// Package store provides session and user persistence. The SQLite
// implementation is the production backend; a memory implementation exists
// for tests and throwaway deployments.
package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ephemerchat/ephemer/internal/domain"
)

var (
	// ErrSessionNotFound is returned when a session does not exist, has
	// expired, or has been deactivated (callers cannot tell which).
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
)

// SessionStore persists temporary chat sessions and their messages.
type SessionStore interface {
	// Create persists a new session. The caller supplies a fully populated
	// session including its ID.
	Create(ctx context.Context, sess *domain.Session) error

	// FindActive returns a session with its full message history, but only
	// if it is active and not yet expired. Expired or deactivated sessions
	// are indistinguishable from missing ones.
	FindActive(ctx context.Context, sessionID string) (*domain.Session, error)

	// AppendMessage adds a message to a session, bumps its activity
	// timestamp and updates usage counters atomically.
	AppendMessage(ctx context.Context, sessionID string, msg domain.Message) error

	// UpdateSettings replaces a session's generation settings.
	UpdateSettings(ctx context.Context, sessionID string, settings domain.Settings) error

	// ExtendExpiry moves a session's expiry to the given absolute time.
	ExtendExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Delete removes a session and its messages permanently.
	Delete(ctx context.Context, sessionID string) error

	// ListByUser returns summaries of a user's active, unexpired sessions,
	// most recently used first.
	ListByUser(ctx context.Context, userID string) ([]domain.SessionSummary, error)

	// CountAssistantMessages counts AI-generated messages of the given kind
	// across all of a user's sessions since the given time. Used for daily
	// quota accounting.
	CountAssistantMessages(ctx context.Context, userID, kind string, since time.Time) (int, error)

	// SweepExpired deletes all sessions that have expired or been
	// deactivated, returning how many were removed.
	SweepExpired(ctx context.Context) (int64, error)
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByToken(ctx context.Context, token string) (*domain.User, error)
}

// NewSessionID generates a session identifier. The embedded base36
// millisecond timestamp keeps IDs roughly sortable by creation time.
func NewSessionID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	rand := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return "temp_" + ts + "_" + rand
}
