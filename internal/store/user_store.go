package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ephemerchat/ephemer/internal/domain"
)

// SQLiteUserStore implements UserStore backed by SQLite.
type SQLiteUserStore struct {
	db *DB
}

// NewSQLiteUserStore creates a user store using the given database.
func NewSQLiteUserStore(db *DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

// Create persists a new user.
func (s *SQLiteUserStore) Create(ctx context.Context, u *domain.User) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, role, tier, api_token,
		                    daily_chat_limit, daily_image_limit, daily_video_limit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.Role, u.Tier, u.APIToken,
		u.Limits.Chat, u.Limits.Image, u.Limits.Video,
		u.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// Get returns a user by ID.
func (s *SQLiteUserStore) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

// FindByEmail returns a user by email address.
func (s *SQLiteUserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, "email = ?", email)
}

// FindByToken returns the user holding the given API token.
func (s *SQLiteUserStore) FindByToken(ctx context.Context, token string) (*domain.User, error) {
	return s.findOne(ctx, "api_token = ?", token)
}

func (s *SQLiteUserStore) findOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	var u domain.User
	var createdAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, email, display_name, role, tier, api_token,
		        daily_chat_limit, daily_image_limit, daily_video_limit, created_at
		 FROM users WHERE `+where, arg,
	).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Tier, &u.APIToken,
		&u.Limits.Chat, &u.Limits.Image, &u.Limits.Video, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	u.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return &u, nil
}
