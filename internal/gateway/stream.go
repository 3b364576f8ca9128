package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ephemerchat/ephemer/internal/chat"
	"github.com/ephemerchat/ephemer/internal/llm"
	"github.com/ephemerchat/ephemer/internal/quota"
	"github.com/ephemerchat/ephemer/internal/store"
)

const (
	streamReadDeadline  = 30 * time.Second
	streamWriteDeadline = 10 * time.Second
	streamMaxPayload    = 64 * 1024
)

// streamRequest is the single frame a client sends after connecting.
type streamRequest struct {
	Message string `json:"message"`
}

// handleStream upgrades to WebSocket, reads one message request and streams
// the reply as delta/done/error events. The connection closes after the
// final event; one exchange per connection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(streamMaxPayload)

	conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
	var req streamRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeStreamEvent(conn, llm.StreamEvent{Type: "error", Error: "invalid request"})
		return
	}

	events, err := s.service.StreamMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		s.log.Debug().Err(err).Str("session", sessionID).Msg("stream request rejected")
		s.writeStreamEvent(conn, llm.StreamEvent{Type: "error", Error: streamErrorMessage(err)})
		return
	}

	for event := range events {
		if err := s.writeStreamEvent(conn, event); err != nil {
			s.log.Debug().Err(err).Str("session", sessionID).Msg("stream client gone")
			// Drain so the service goroutine can persist the reply and exit
			for range events {
			}
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(streamWriteDeadline))
}

func (s *Server) writeStreamEvent(conn *websocket.Conn, event llm.StreamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteDeadline))
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// streamErrorMessage maps a service error to a client-safe message,
// mirroring the HTTP status mapping: validation and quota details are
// surfaced, provider causes are not.
func streamErrorMessage(err error) string {
	var verr *chat.ValidationError
	var exceeded *quota.ExceededError
	var unsupported *llm.UnsupportedModelError

	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, store.ErrSessionNotFound):
		return "session not found"
	case errors.As(err, &exceeded):
		return exceeded.Error()
	case errors.As(err, &unsupported):
		return unsupported.Error()
	default:
		return "AI provider request failed"
	}
}
