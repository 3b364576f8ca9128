// Package chat implements the temporary-session lifecycle: creation, message
// exchange with AI providers, settings updates, expiry management and
// cleanup. Every operation re-fetches authoritative session state from the
// store; nothing is cached across requests.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ephemerchat/ephemer/internal/domain"
	"github.com/ephemerchat/ephemer/internal/llm"
	"github.com/ephemerchat/ephemer/internal/logging"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

const (
	maxTitleLen   = 100
	maxMessageLen = 4000

	minTemperature = 0.0
	maxTemperature = 2.0
	minMaxTokens   = 1
	maxMaxTokens   = 4096

	minExtendHours = 1
	maxExtendHours = 168

	defaultTitle        = "Temporary Chat"
	defaultModel        = "gpt-3.5-turbo"
	defaultTemperature  = 0.7
	defaultMaxTokens    = 1000
	defaultSystemPrompt = "You are a helpful AI assistant."
)

// CreateParams are the caller-supplied inputs for a new session. Zero
// values fall back to defaults.
type CreateParams struct {
	UserID   string
	Title    string
	Settings domain.SettingsPatch
	Meta     domain.ClientMeta
}

// SendResult is what a successful message exchange returns.
type SendResult struct {
	SessionID     string         `json:"sessionId"`
	Reply         domain.Message `json:"lastMessage"`
	TotalMessages int            `json:"totalMessages"`
	TotalTokens   int            `json:"totalTokensUsed"`
}

// SessionStats reports a session's usage counters and timestamps.
type SessionStats struct {
	SessionID     string    `json:"sessionId"`
	TotalMessages int       `json:"totalMessages"`
	TotalTokens   int       `json:"totalTokensUsed"`
	CreatedAt     time.Time `json:"createdAt"`
	LastActivity  time.Time `json:"lastActivity"`
	ExpiresAt     time.Time `json:"expiresAt"`
	RemainingTime string    `json:"remainingTime"`
}

// Service orchestrates session operations against the store, the provider
// registry and the quota accountant.
type Service struct {
	sessions store.SessionStore
	registry *llm.Registry
	quota    *quota.Accountant
	ttl      time.Duration
	log      *logging.Logger
}

// NewService creates a session service. ttl is the default expiry window
// for new sessions.
func NewService(sessions store.SessionStore, registry *llm.Registry, accountant *quota.Accountant, ttl time.Duration, log *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		sessions: sessions,
		registry: registry,
		quota:    accountant,
		ttl:      ttl,
		log:      log.Sub("chat"),
	}
}

// Create validates params, fills defaults and persists a new session.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Session, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = defaultTitle
	}
	if len(title) > maxTitleLen {
		return nil, invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}

	settings := params.Settings.Apply(domain.Settings{
		AIModel:      defaultModel,
		Temperature:  defaultTemperature,
		MaxTokens:    defaultMaxTokens,
		SystemPrompt: defaultSystemPrompt,
	})
	if err := s.validateSettings(settings); err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &domain.Session{
		SessionID:    store.NewSessionID(),
		UserID:       params.UserID,
		Title:        title,
		Settings:     settings,
		Active:       true,
		Meta:         params.Meta,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.log.Info().Str("session", sess.SessionID).Str("user", sess.UserID).
		Str("model", settings.AIModel).Time("expires", sess.ExpiresAt).
		Msg("session created")
	return sess, nil
}

// Get returns a session with full history, or store.ErrSessionNotFound.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.FindActive(ctx, sessionID)
}

// SendMessage appends the user's message, calls the session's configured
// provider and appends the reply. The user message stays persisted even if
// generation fails; callers see the provider error but the history keeps
// the question.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (*SendResult, error) {
	text, err := validateMessage(text)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, sess.UserID, domain.KindChat); err != nil {
		return nil, err
	}

	client, err := s.registry.Resolve(sess.Settings.AIModel)
	if err != nil {
		return nil, err
	}

	userMsg := domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Kind:      domain.KindChat,
		Timestamp: time.Now(),
	}
	if err := s.sessions.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return nil, err
	}

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		Model:       sess.Settings.AIModel,
		Messages:    buildHistory(sess, userMsg),
		MaxTokens:   sess.Settings.MaxTokens,
		Temperature: sess.Settings.Temperature,
	})
	if err != nil {
		s.log.Error().Err(err).Str("session", sessionID).Str("model", sess.Settings.AIModel).
			Msg("provider call failed")
		return nil, err
	}

	reply := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   resp.Content,
		Kind:      domain.KindChat,
		Timestamp: time.Now(),
		Meta: &domain.MessageMeta{
			Model:        sess.Settings.AIModel,
			Tokens:       resp.Tokens,
			ProcessingMS: resp.Duration.Milliseconds(),
		},
	}
	if err := s.sessions.AppendMessage(ctx, sessionID, reply); err != nil {
		return nil, err
	}

	return &SendResult{
		SessionID:     sessionID,
		Reply:         reply,
		TotalMessages: sess.Usage.TotalMessages + 2,
		TotalTokens:   sess.Usage.TotalTokens + resp.Tokens,
	}, nil
}

// StreamMessage is SendMessage with a streaming reply. Events are forwarded
// as the provider produces them; once the stream finishes the assembled
// reply is persisted with its metadata. The returned channel closes after
// the final event.
func (s *Service) StreamMessage(ctx context.Context, sessionID, text string) (<-chan llm.StreamEvent, error) {
	text, err := validateMessage(text)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, sess.UserID, domain.KindChat); err != nil {
		return nil, err
	}

	client, err := s.registry.Resolve(sess.Settings.AIModel)
	if err != nil {
		return nil, err
	}

	userMsg := domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Kind:      domain.KindChat,
		Timestamp: time.Now(),
	}
	if err := s.sessions.AppendMessage(ctx, sessionID, userMsg); err != nil {
		return nil, err
	}

	upstream, err := client.Stream(ctx, llm.CompletionRequest{
		Model:       sess.Settings.AIModel,
		Messages:    buildHistory(sess, userMsg),
		MaxTokens:   sess.Settings.MaxTokens,
		Temperature: sess.Settings.Temperature,
	})
	if err != nil {
		s.log.Error().Err(err).Str("session", sessionID).Msg("provider stream failed")
		return nil, err
	}

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		for event := range upstream {
			if event.Type == "done" && event.Response != nil {
				reply := domain.Message{
					Role:      domain.RoleAssistant,
					Content:   event.Response.Content,
					Kind:      domain.KindChat,
					Timestamp: time.Now(),
					Meta: &domain.MessageMeta{
						Model:        sess.Settings.AIModel,
						Tokens:       event.Response.Tokens,
						ProcessingMS: event.Response.Duration.Milliseconds(),
					},
				}
				// Persist with a fresh context: client disconnects must not
				// lose an already-generated reply.
				if err := s.sessions.AppendMessage(context.Background(), sessionID, reply); err != nil {
					s.log.Error().Err(err).Str("session", sessionID).Msg("failed to persist streamed reply")
				}
			}
			out <- event
		}
	}()
	return out, nil
}

// UpdateSettings shallow-merges the patch into the session's settings and
// returns the updated session.
func (s *Service) UpdateSettings(ctx context.Context, sessionID string, patch domain.SettingsPatch) (*domain.Session, error) {
	sess, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(sess.Settings)
	if err := s.validateSettings(merged); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateSettings(ctx, sessionID, merged); err != nil {
		return nil, err
	}

	sess.Settings = merged
	return sess, nil
}

// ExtendExpiry resets the session's expiry to now + hours. The window is
// absolute, not added to the current expiry.
func (s *Service) ExtendExpiry(ctx context.Context, sessionID string, hours int) (time.Time, error) {
	if hours < minExtendHours || hours > maxExtendHours {
		return time.Time{}, invalid("hours", fmt.Sprintf("must be between %d and %d", minExtendHours, maxExtendHours))
	}

	if _, err := s.sessions.FindActive(ctx, sessionID); err != nil {
		return time.Time{}, err
	}
	expiresAt := time.Now().Add(time.Duration(hours) * time.Hour)
	if err := s.sessions.ExtendExpiry(ctx, sessionID, expiresAt); err != nil {
		return time.Time{}, err
	}

	s.log.Info().Str("session", sessionID).Int("hours", hours).Msg("session extended")
	return expiresAt, nil
}

// Delete hard-deletes a session. Expired sessions are already gone as far
// as callers are concerned, so they 404 here too.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.FindActive(ctx, sessionID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.log.Info().Str("session", sessionID).Msg("session deleted")
	return nil
}

// Stats returns a session's usage counters and timestamps.
func (s *Service) Stats(ctx context.Context, sessionID string) (*SessionStats, error) {
	sess, err := s.sessions.FindActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStats{
		SessionID:     sess.SessionID,
		TotalMessages: sess.Usage.TotalMessages,
		TotalTokens:   sess.Usage.TotalTokens,
		CreatedAt:     sess.CreatedAt,
		LastActivity:  sess.LastActivity,
		ExpiresAt:     sess.ExpiresAt,
		RemainingTime: time.Until(sess.ExpiresAt).Round(time.Second).String(),
	}, nil
}

// UserSessions lists a user's live sessions, most recently used first.
func (s *Service) UserSessions(ctx context.Context, userID string) ([]domain.SessionSummary, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// Cleanup removes all expired or deactivated sessions.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.sessions.SweepExpired(ctx)
}

// Models returns the static catalog of supported models.
func (s *Service) Models() []llm.ModelInfo {
	return s.registry.Models()
}

func (s *Service) validateSettings(settings domain.Settings) error {
	if !s.registry.Supports(settings.AIModel) {
		return &llm.UnsupportedModelError{Model: settings.AIModel}
	}
	if settings.Temperature < minTemperature || settings.Temperature > maxTemperature {
		return invalid("temperature", fmt.Sprintf("must be between %g and %g", minTemperature, maxTemperature))
	}
	if settings.MaxTokens < minMaxTokens || settings.MaxTokens > maxMaxTokens {
		return invalid("maxTokens", fmt.Sprintf("must be between %d and %d", minMaxTokens, maxMaxTokens))
	}
	return nil
}

func validateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid("message", "must not be empty")
	}
	if len(text) > maxMessageLen {
		return "", invalid("message", fmt.Sprintf("must be at most %d characters", maxMessageLen))
	}
	return text, nil
}

// buildHistory assembles the provider message list: the stored history plus
// the just-appended user message, with the system prompt prepended exactly
// once when the conversation is otherwise empty.
func buildHistory(sess *domain.Session, userMsg domain.Message) []llm.Message {
	history := make([]llm.Message, 0, len(sess.Messages)+2)
	if sess.Settings.SystemPrompt != "" && len(sess.Messages) == 0 {
		history = append(history, llm.Message{Role: llm.RoleSystem, Content: sess.Settings.SystemPrompt})
	}
	for _, msg := range sess.Messages {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return append(history, llm.Message{Role: userMsg.Role, Content: userMsg.Content})
}
