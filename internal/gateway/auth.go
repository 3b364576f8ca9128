package gateway

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ephemerchat/ephemer/internal/domain"
	"github.com/ephemerchat/ephemer/internal/store"
)

const userKey contextKey = "user"

// userFrom returns the authenticated user from the request context, or nil
// for anonymous requests.
func userFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// authenticate resolves the request's bearer token against the user store.
// Returns nil with no error when no token is presented.
func (s *Server) authenticate(r *http.Request) (*domain.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}

	user, err := s.users.FindByToken(r.Context(), token)
	if err != nil {
		return nil, err
	}
	// The store lookup already matched, but compare in constant time anyway
	// so the token column can never become a timing oracle.
	if !safeEqual(user.APIToken, token) {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

// optionalAuth resolves credentials when present but allows anonymous
// requests through. A presented-but-invalid token is still a 401: silently
// downgrading to anonymous would mask client bugs.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if user != nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey, user))
		}
		next(w, r)
	}
}

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	}
}

// requireAdmin rejects requests from non-admin users.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	})
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
