package domain

import "time"

// Subscription tiers. Free users are subject to daily quota limits;
// premium and pro users bypass them.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierPro     = "pro"
)

// User roles.
const (
	RoleNameUser  = "user"
	RoleNameAdmin = "admin"
)

// DailyLimits are per-category caps on AI-generated outputs per calendar
// day (local time).
type DailyLimits struct {
	Chat  int `json:"dailyChatLimit"`
	Image int `json:"dailyImageLimit"`
	Video int `json:"dailyVideoLimit"`
}

// DefaultLimits returns the limits applied to new free-tier accounts.
func DefaultLimits() DailyLimits {
	return DailyLimits{Chat: 50, Image: 5, Video: 2}
}

// ForKind returns the limit for a message kind, or 0 for unknown kinds.
func (l DailyLimits) ForKind(kind string) int {
	switch kind {
	case KindChat:
		return l.Chat
	case KindImage:
		return l.Image
	case KindVideo:
		return l.Video
	default:
		return 0
	}
}

// User is an account that may own temporary chat sessions. Anonymous
// sessions have no user at all, so quota enforcement only applies to
// sessions created while authenticated.
type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName,omitempty"`
	Role        string      `json:"role"`
	Tier        string      `json:"tier"`
	APIToken    string      `json:"-"`
	Limits      DailyLimits `json:"limits"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleNameAdmin
}

// BypassesQuota reports whether the user's tier or role exempts them from
// daily limits.
func (u *User) BypassesQuota() bool {
	return u.Tier == TierPremium || u.Tier == TierPro || u.IsAdmin()
}
