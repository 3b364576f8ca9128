// Package quota enforces per-user daily generation limits.
//
// Usage is not tracked in a separate counter table: each check re-counts the
// user's AI-generated messages since local midnight, so quota state can never
// drift from the message history it is derived from.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ephemerchat/ephemer/internal/domain"
	"github.com/ephemerchat/ephemer/internal/logging"
	"github.com/ephemerchat/ephemer/internal/store"
)

// ExceededError is returned when a user has hit their daily limit for a
// message kind.
type ExceededError struct {
	Kind  string
	Used  int
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily %s limit reached (%d/%d)", e.Kind, e.Used, e.Limit)
}

// KindUsage is consumption against a single kind's daily limit.
type KindUsage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// DailyUsage is a user's consumption across all kinds for the current day.
type DailyUsage struct {
	Chat      KindUsage `json:"chat"`
	Image     KindUsage `json:"image"`
	Video     KindUsage `json:"video"`
	Unlimited bool      `json:"unlimited,omitempty"`
}

// Accountant checks daily limits before AI generation happens.
type Accountant struct {
	sessions store.SessionStore
	users    store.UserStore
	log      *logging.Logger

	// now is swappable for tests
	now func() time.Time
}

// NewAccountant creates an accountant over the given stores.
func NewAccountant(sessions store.SessionStore, users store.UserStore, log *logging.Logger) *Accountant {
	return &Accountant{
		sessions: sessions,
		users:    users,
		log:      log.Sub("quota"),
		now:      time.Now,
	}
}

// dayStart returns midnight of the current day in local time. Limits reset
// on the calendar day boundary, not a rolling 24h window.
func (a *Accountant) dayStart() time.Time {
	now := a.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Check returns nil if the user may generate one more message of the given
// kind, or an *ExceededError if their daily limit is reached. Anonymous
// sessions (empty userID) are never limited.
func (a *Accountant) Check(ctx context.Context, userID, kind string) error {
	if userID == "" {
		return nil
	}

	user, err := a.users.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user for quota check: %w", err)
	}
	if user.BypassesQuota() {
		return nil
	}

	limit := user.Limits.ForKind(kind)
	if limit <= 0 {
		return &ExceededError{Kind: kind, Used: 0, Limit: 0}
	}

	used, err := a.sessions.CountAssistantMessages(ctx, userID, kind, a.dayStart())
	if err != nil {
		return fmt.Errorf("counting usage: %w", err)
	}
	if used >= limit {
		a.log.Warn().Str("user", userID).Str("kind", kind).
			Int("used", used).Int("limit", limit).Msg("daily limit reached")
		return &ExceededError{Kind: kind, Used: used, Limit: limit}
	}
	return nil
}

// Usage reports a user's consumption for the current day. For users that
// bypass quotas the counters are still reported, with Unlimited set.
func (a *Accountant) Usage(ctx context.Context, userID string) (*DailyUsage, error) {
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user for usage report: %w", err)
	}

	since := a.dayStart()
	usage := &DailyUsage{Unlimited: user.BypassesQuota()}
	for _, entry := range []struct {
		kind string
		out  *KindUsage
	}{
		{domain.KindChat, &usage.Chat},
		{domain.KindImage, &usage.Image},
		{domain.KindVideo, &usage.Video},
	} {
		used, err := a.sessions.CountAssistantMessages(ctx, userID, entry.kind, since)
		if err != nil {
			return nil, fmt.Errorf("counting usage: %w", err)
		}
		entry.out.Used = used
		entry.out.Limit = user.Limits.ForKind(entry.kind)
	}
	return usage, nil
}
