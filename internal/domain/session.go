package domain

import "time"

// Role identifies who produced a message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Kind classifies what a message is for quota accounting purposes.
// Chat, image and video outputs count against separate daily limits.
const (
	KindChat  = "chat"
	KindImage = "image"
	KindVideo = "video"
)

// MessageMeta carries per-message generation metadata. It is only populated
// for assistant messages; user and system messages carry none.
type MessageMeta struct {
	Model        string `json:"model,omitempty"`
	Tokens       int    `json:"tokens"`
	ProcessingMS int64  `json:"processingTimeMs"`
}

// Message is a single turn in a session's conversation. Messages are
// append-only: once written they are never edited in place.
type Message struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Kind      string       `json:"kind,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Meta      *MessageMeta `json:"metadata,omitempty"`
}

// Settings holds the mutable generation parameters of a session.
type Settings struct {
	AIModel      string  `json:"aiModel"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt"`
}

// SettingsPatch is a partial settings update. Nil fields keep their
// existing values (shallow merge).
type SettingsPatch struct {
	AIModel      *string  `json:"aiModel,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
}

// Apply merges the patch into s, leaving unset fields untouched.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.AIModel != nil {
		s.AIModel = *p.AIModel
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.SystemPrompt != nil {
		s.SystemPrompt = *p.SystemPrompt
	}
	return s
}

// ClientMeta is audit metadata captured once at session creation and
// immutable afterwards.
type ClientMeta struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Usage tracks cumulative consumption for a session. Counters only grow
// until the session is deleted.
type Usage struct {
	TotalMessages int `json:"totalMessages"`
	TotalTokens   int `json:"totalTokensUsed"`
}

// Session is a temporary, TTL-bound conversation record, optionally tied
// to an authenticated user. The session ID is generated server-side and is
// the only handle clients ever hold.
type Session struct {
	SessionID string     `json:"sessionId"`
	UserID    string     `json:"userId,omitempty"` // empty for anonymous sessions
	Title     string     `json:"title"`
	Messages  []Message  `json:"messages,omitempty"`
	Settings  Settings   `json:"settings"`
	Active    bool       `json:"isActive"`
	Meta      ClientMeta `json:"metadata"`
	Usage     Usage      `json:"usage"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsExpired returns true if the session's TTL has elapsed.
func (s *Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// SessionSummary is the subset of session state returned by user-facing
// listings; it omits the message history.
type SessionSummary struct {
	SessionID     string    `json:"sessionId"`
	Title         string    `json:"title"`
	LastActivity  time.Time `json:"lastActivity"`
	ExpiresAt     time.Time `json:"expiresAt"`
	TotalMessages int       `json:"totalMessages"`
	TotalTokens   int       `json:"totalTokensUsed"`
}
