package gateway

import "net/http"

// registerRoutes sets up all HTTP routes on the mux. Create and the
// per-session operations take optional auth (anonymous sessions are
// allowed); listings require a user, cleanup requires an admin.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/temporary-chat", s.optionalAuth(s.handleCreate))
	mux.HandleFunc("GET /api/temporary-chat/models", s.handleModels)
	mux.HandleFunc("GET /api/temporary-chat/user/sessions", s.requireAuth(s.handleUserSessions))
	mux.HandleFunc("POST /api/temporary-chat/admin/cleanup", s.requireAdmin(s.handleAdminCleanup))

	mux.HandleFunc("GET /api/temporary-chat/{sessionId}", s.handleGet)
	mux.HandleFunc("DELETE /api/temporary-chat/{sessionId}", s.handleDelete)
	mux.HandleFunc("POST /api/temporary-chat/{sessionId}/message", s.optionalAuth(s.handleSendMessage))
	mux.HandleFunc("GET /api/temporary-chat/{sessionId}/stream", s.optionalAuth(s.handleStream))
	mux.HandleFunc("PUT /api/temporary-chat/{sessionId}/settings", s.handleUpdateSettings)
	mux.HandleFunc("PUT /api/temporary-chat/{sessionId}/extend", s.handleExtend)
	mux.HandleFunc("GET /api/temporary-chat/{sessionId}/stats", s.handleStats)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
