package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ephemerchat/ephemer/internal/chat"
	"github.com/ephemerchat/ephemer/internal/domain"
	"github.com/ephemerchat/ephemer/internal/llm"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

// errorBody is the JSON error envelope for all non-2xx responses.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body errorBody
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeServiceError maps domain errors to HTTP statuses. Provider causes
// are logged upstream, never exposed to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *chat.ValidationError
	var exceeded *quota.ExceededError
	var unsupported *llm.UnsupportedModelError
	var perr *llm.ProviderError

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.As(err, &exceeded):
		writeError(w, http.StatusTooManyRequests, exceeded.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusNotImplemented, unsupported.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusInternalServerError, "AI provider request failed")
	default:
		s.log.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// --- Session handlers ---

type createRequest struct {
	Title        string   `json:"title"`
	AIModel      *string  `json:"aiModel"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"maxTokens"`
	SystemPrompt *string  `json:"systemPrompt"`
}

type createResponse struct {
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title"`
	Settings  domain.Settings `json:"settings"`
	ExpiresAt string          `json:"expiresAt"`
	CreatedAt string          `json:"createdAt"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	params := chat.CreateParams{
		Title: req.Title,
		Settings: domain.SettingsPatch{
			AIModel:      req.AIModel,
			Temperature:  req.Temperature,
			MaxTokens:    req.MaxTokens,
			SystemPrompt: req.SystemPrompt,
		},
		Meta: domain.ClientMeta{
			IPAddress: clientIPFrom(r.Context()),
			UserAgent: r.UserAgent(),
		},
	}
	if user := userFrom(r.Context()); user != nil {
		params.UserID = user.ID
	}

	sess, err := s.service.Create(r.Context(), params)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		SessionID: sess.SessionID,
		Title:     sess.Title,
		Settings:  sess.Settings,
		ExpiresAt: sess.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		CreatedAt: sess.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Get(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type sendRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.SendMessage(r.Context(), r.PathValue("sessionId"), req.Message)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}

	sess, err := s.service.UpdateSettings(r.Context(), r.PathValue("sessionId"), patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sess.SessionID,
		"settings":  sess.Settings,
	})
}

type extendRequest struct {
	Hours int `json:"hours"`
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sessionID := r.PathValue("sessionId")
	expiresAt, err := s.service.ExtendExpiry(r.Context(), sessionID, req.Hours)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"expiresAt": expiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.Context(), r.PathValue("sessionId")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Catalog / user / admin handlers ---

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.service.Models()})
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	sessions, err := s.service.UserSessions(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	usage, err := s.usage.Usage(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"usage":    usage,
	})
}

func (s *Server) handleAdminCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.service.Cleanup(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNotFound returns a JSON 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
