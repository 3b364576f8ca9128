package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ephemerchat/ephemer/internal/domain"
)

// MemorySessionStore is an in-memory SessionStore. Useful for tests and
// throwaway deployments; everything is lost on restart, which is arguably
// in the spirit of temporary sessions anyway.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = cloneSession(sess)
	return nil
}

func (s *MemorySessionStore) FindActive(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.Active || sess.IsExpired() {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemorySessionStore) AppendMessage(_ context.Context, sessionID string, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if msg.Kind == "" {
		msg.Kind = domain.KindChat
	}
	sess.Messages = append(sess.Messages, msg)
	sess.Usage.TotalMessages++
	if msg.Meta != nil {
		sess.Usage.TotalTokens += msg.Meta.Tokens
	}
	sess.LastActivity = msg.Timestamp
	return nil
}

func (s *MemorySessionStore) UpdateSettings(_ context.Context, sessionID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Settings = settings
	sess.LastActivity = time.Now()
	return nil
}

func (s *MemorySessionStore) ExtendExpiry(_ context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ExpiresAt = expiresAt
	sess.LastActivity = time.Now()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) ListByUser(_ context.Context, userID string) ([]domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SessionSummary
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active || sess.IsExpired() {
			continue
		}
		out = append(out, domain.SessionSummary{
			SessionID:     sess.SessionID,
			Title:         sess.Title,
			LastActivity:  sess.LastActivity,
			ExpiresAt:     sess.ExpiresAt,
			TotalMessages: sess.Usage.TotalMessages,
			TotalTokens:   sess.Usage.TotalTokens,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *MemorySessionStore) CountAssistantMessages(_ context.Context, userID, kind string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		for _, msg := range sess.Messages {
			if msg.Role == domain.RoleAssistant && msg.Kind == kind && !msg.Timestamp.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemorySessionStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, sess := range s.sessions {
		if sess.IsExpired() || !sess.Active {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func cloneSession(sess *domain.Session) *domain.Session {
	clone := *sess
	clone.Messages = make([]domain.Message, len(sess.Messages))
	copy(clone.Messages, sess.Messages)
	for i, msg := range sess.Messages {
		if msg.Meta != nil {
			meta := *msg.Meta
			clone.Messages[i].Meta = &meta
		}
	}
	return &clone
}

// MemoryUserStore is an in-memory UserStore for tests.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMemoryUserStore creates an empty in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*domain.User)}
}

func (s *MemoryUserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *MemoryUserStore) Get(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByToken(_ context.Context, token string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.APIToken == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}
