package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ephemerchat/ephemer/internal/domain"
	"github.com/ephemerchat/ephemer/internal/llm"
	"github.com/ephemerchat/ephemer/internal/logging"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

type fixture struct {
	service  *Service
	sessions *store.MemorySessionStore
	users    *store.MemoryUserStore
	mock     *llm.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.New(nil, "silent")
	sessions := store.NewMemorySessionStore()
	users := store.NewMemoryUserStore()

	mock := &llm.MockClient{ProviderName: "openai"}
	registry := llm.NewRegistry(log)
	registry.Register(mock,
		llm.ModelInfo{ID: "gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Provider: "openai", Recommended: true},
		llm.ModelInfo{ID: "gpt-4", Name: "GPT-4", Provider: "openai"},
	)

	accountant := quota.NewAccountant(sessions, users, log)
	service := NewService(sessions, registry, accountant, 24*time.Hour, log)
	return &fixture{service: service, sessions: sessions, users: users, mock: mock}
}

func (f *fixture) createSession(t *testing.T, params CreateParams) *domain.Session {
	t.Helper()
	sess, err := f.service.Create(context.Background(), params)
	require.NoError(t, err)
	return sess
}

// --- Create ---

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)

	sess := f.createSession(t, CreateParams{})

	assert.True(t, strings.HasPrefix(sess.SessionID, "temp_"))
	assert.Equal(t, "Temporary Chat", sess.Title)
	assert.Equal(t, "gpt-3.5-turbo", sess.Settings.AIModel)
	assert.Equal(t, 0.7, sess.Settings.Temperature)
	assert.Equal(t, 1000, sess.Settings.MaxTokens)
	assert.Equal(t, "You are a helpful AI assistant.", sess.Settings.SystemPrompt)
	assert.True(t, sess.Active)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), sess.ExpiresAt, time.Minute)
}

func TestCreate_CustomSettings(t *testing.T) {
	f := newFixture(t)

	model := "gpt-4"
	temp := 1.5
	tokens := 2000
	prompt := "answer in haiku"
	sess := f.createSession(t, CreateParams{
		UserID: "u-1",
		Title:  "Haiku bot",
		Settings: domain.SettingsPatch{
			AIModel: &model, Temperature: &temp, MaxTokens: &tokens, SystemPrompt: &prompt,
		},
		Meta: domain.ClientMeta{IPAddress: "10.0.0.1", UserAgent: "curl"},
	})

	assert.Equal(t, "Haiku bot", sess.Title)
	assert.Equal(t, "gpt-4", sess.Settings.AIModel)
	assert.Equal(t, 1.5, sess.Settings.Temperature)
	assert.Equal(t, "answer in haiku", sess.Settings.SystemPrompt)
	assert.Equal(t, "10.0.0.1", sess.Meta.IPAddress)
}

func TestCreate_UnsupportedModel(t *testing.T) {
	f := newFixture(t)

	model := "gpt-99"
	_, err := f.service.Create(context.Background(), CreateParams{
		Settings: domain.SettingsPatch{AIModel: &model},
	})
	var unsupported *llm.UnsupportedModelError
	assert.ErrorAs(t, err, &unsupported)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	badTemp := 3.5
	_, err := f.service.Create(ctx, CreateParams{
		Settings: domain.SettingsPatch{Temperature: &badTemp},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "temperature", verr.Field)

	badTokens := 0
	_, err = f.service.Create(ctx, CreateParams{
		Settings: domain.SettingsPatch{MaxTokens: &badTokens},
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "maxTokens", verr.Field)

	_, err = f.service.Create(ctx, CreateParams{Title: strings.Repeat("x", 101)})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

// --- SendMessage ---

func TestSendMessage_Roundtrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mock.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Content: "Hi!", Tokens: 9, Model: req.Model, Duration: 150 * time.Millisecond,
		}, nil
	}

	sess := f.createSession(t, CreateParams{})
	result, err := f.service.SendMessage(ctx, sess.SessionID, "Hello")
	require.NoError(t, err)

	assert.Equal(t, sess.SessionID, result.SessionID)
	assert.Equal(t, "Hi!", result.Reply.Content)
	assert.Equal(t, domain.RoleAssistant, result.Reply.Role)
	require.NotNil(t, result.Reply.Meta)
	assert.Equal(t, 9, result.Reply.Meta.Tokens)
	assert.Equal(t, 2, result.TotalMessages)
	assert.Equal(t, 9, result.TotalTokens)

	got, err := f.service.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, "Hi!", got.Messages[1].Content)
}

func TestSendMessage_SystemPromptOnlyOnFirstTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var histories [][]llm.Message
	f.mock.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		histories = append(histories, req.Messages)
		return &llm.CompletionResponse{Content: "ok"}, nil
	}

	prompt := "be terse"
	sess := f.createSession(t, CreateParams{
		Settings: domain.SettingsPatch{SystemPrompt: &prompt},
	})

	_, err := f.service.SendMessage(ctx, sess.SessionID, "first")
	require.NoError(t, err)
	_, err = f.service.SendMessage(ctx, sess.SessionID, "second")
	require.NoError(t, err)

	require.Len(t, histories, 2)
	require.Len(t, histories[0], 2)
	assert.Equal(t, llm.RoleSystem, histories[0][0].Role)
	assert.Equal(t, "be terse", histories[0][0].Content)

	// Second turn: history is no longer empty, so no system prompt prepended
	for _, msg := range histories[1] {
		assert.NotEqual(t, llm.RoleSystem, msg.Role)
	}
	assert.Equal(t, "second", histories[1][len(histories[1])-1].Content)
}

func TestSendMessage_DefaultSystemPromptOnFirstTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var history []llm.Message
	f.mock.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		history = req.Messages
		return &llm.CompletionResponse{Content: "ok"}, nil
	}

	// No explicit prompt: sessions still open with the stock assistant persona
	sess := f.createSession(t, CreateParams{})

	_, err := f.service.SendMessage(ctx, sess.SessionID, "hello")
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, "You are a helpful AI assistant.", history[0].Content)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.createSession(t, CreateParams{})

	var verr *ValidationError
	_, err := f.service.SendMessage(ctx, sess.SessionID, "   ")
	assert.ErrorAs(t, err, &verr)

	_, err = f.service.SendMessage(ctx, sess.SessionID, strings.Repeat("a", 4001))
	assert.ErrorAs(t, err, &verr)
}

func TestSendMessage_ExpiredSessionIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.createSession(t, CreateParams{})
	require.NoError(t, f.sessions.ExtendExpiry(ctx, sess.SessionID, time.Now().Add(-time.Minute)))

	_, err := f.service.SendMessage(ctx, sess.SessionID, "anyone there?")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	// No partial write happened
	removed, err := f.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSendMessage_ProviderFailureKeepsUserMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mock.CompleteFunc = func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, &llm.ProviderError{Provider: "openai", Message: "upstream 500"}
	}

	sess := f.createSession(t, CreateParams{})
	_, err := f.service.SendMessage(ctx, sess.SessionID, "Hello")
	var perr *llm.ProviderError
	require.ErrorAs(t, err, &perr)

	got, err := f.service.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, domain.RoleUser, got.Messages[0].Role)
}

func TestSendMessage_QuotaDeniedForFreeTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &domain.User{
		ID: "u-1", Email: "a@b.c", Tier: domain.TierFree,
		Limits: domain.DailyLimits{Chat: 1, Image: 1, Video: 1},
	}))

	sess := f.createSession(t, CreateParams{UserID: "u-1"})

	_, err := f.service.SendMessage(ctx, sess.SessionID, "one")
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, sess.SessionID, "two")
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.Limit)

	// Denied request must not append anything
	got, err := f.service.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestSendMessage_PremiumNeverDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &domain.User{
		ID: "u-1", Email: "a@b.c", Tier: domain.TierPremium,
		Limits: domain.DailyLimits{Chat: 1, Image: 1, Video: 1},
	}))

	sess := f.createSession(t, CreateParams{UserID: "u-1"})
	for i := 0; i < 5; i++ {
		_, err := f.service.SendMessage(ctx, sess.SessionID, "again")
		require.NoError(t, err)
	}
}

// --- StreamMessage ---

func TestStreamMessage_PersistsAssembledReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mock.StreamFunc = func(_ context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
		ch := make(chan llm.StreamEvent, 3)
		ch <- llm.StreamEvent{Type: "delta", Content: "Hel"}
		ch <- llm.StreamEvent{Type: "delta", Content: "lo"}
		ch <- llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{
			Content: "Hello", Tokens: 4, Model: req.Model,
		}}
		close(ch)
		return ch, nil
	}

	sess := f.createSession(t, CreateParams{})
	events, err := f.service.StreamMessage(ctx, sess.SessionID, "hi")
	require.NoError(t, err)

	var types []string
	for event := range events {
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{"delta", "delta", "done"}, types)

	got, err := f.service.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello", got.Messages[1].Content)
	require.NotNil(t, got.Messages[1].Meta)
	assert.Equal(t, 4, got.Messages[1].Meta.Tokens)
}

// --- Settings / expiry / delete ---

func TestUpdateSettings_ShallowMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prompt := "be kind"
	sess := f.createSession(t, CreateParams{
		Settings: domain.SettingsPatch{SystemPrompt: &prompt},
	})

	temp := 0.2
	updated, err := f.service.UpdateSettings(ctx, sess.SessionID, domain.SettingsPatch{Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, 0.2, updated.Settings.Temperature)
	assert.Equal(t, "gpt-3.5-turbo", updated.Settings.AIModel)
	assert.Equal(t, 1000, updated.Settings.MaxTokens)
	assert.Equal(t, "be kind", updated.Settings.SystemPrompt)
}

func TestUpdateSettings_RejectsBadMerge(t *testing.T) {
	f := newFixture(t)

	sess := f.createSession(t, CreateParams{})
	model := "claude-unknown"
	_, err := f.service.UpdateSettings(context.Background(), sess.SessionID, domain.SettingsPatch{AIModel: &model})
	var unsupported *llm.UnsupportedModelError
	assert.ErrorAs(t, err, &unsupported)
}

func TestExtendExpiry_AbsoluteReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.createSession(t, CreateParams{})
	expiresAt, err := f.service.ExtendExpiry(ctx, sess.SessionID, 48)
	require.NoError(t, err)

	// now + 48h, not oldExpiry + 48h
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), expiresAt, time.Minute)
}

func TestExtendExpiry_HoursRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.createSession(t, CreateParams{})

	var verr *ValidationError
	_, err := f.service.ExtendExpiry(ctx, sess.SessionID, 0)
	assert.ErrorAs(t, err, &verr)
	_, err = f.service.ExtendExpiry(ctx, sess.SessionID, 169)
	assert.ErrorAs(t, err, &verr)
}

func TestLifecycle_CreateSendDeleteGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokens := 50
	temp := 0.7
	sess := f.createSession(t, CreateParams{
		Settings: domain.SettingsPatch{MaxTokens: &tokens, Temperature: &temp},
	})

	result, err := f.service.SendMessage(ctx, sess.SessionID, "Hello")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Reply.Content)
	assert.Equal(t, 2, result.TotalMessages)
	assert.GreaterOrEqual(t, result.TotalTokens, 0)

	require.NoError(t, f.service.Delete(ctx, sess.SessionID))

	_, err = f.service.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.createSession(t, CreateParams{})
	_, err := f.service.SendMessage(ctx, sess.SessionID, "Hello")
	require.NoError(t, err)

	stats, err := f.service.Stats(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.NotEmpty(t, stats.RemainingTime)
}

func TestUserSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.createSession(t, CreateParams{UserID: "u-1"})
	f.createSession(t, CreateParams{UserID: "u-1"})
	f.createSession(t, CreateParams{UserID: "u-2"})

	list, err := f.service.UserSessions(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live := f.createSession(t, CreateParams{})
	stale := f.createSession(t, CreateParams{})
	require.NoError(t, f.sessions.ExtendExpiry(ctx, stale.SessionID, time.Now().Add(-time.Hour)))

	removed, err := f.service.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = f.service.Get(ctx, live.SessionID)
	assert.NoError(t, err)
}

func TestModels_CatalogOrder(t *testing.T) {
	f := newFixture(t)

	models := f.service.Models()
	require.Len(t, models, 2)
	assert.True(t, models[0].Recommended)
	assert.Equal(t, "gpt-3.5-turbo", models[0].ID)
}
