package handlers

import (
	"errors"
	"net/http"

	"collabhub/internal/apperrors"
	"collabhub/internal/auth"
	"collabhub/internal/metrics"
	ws "collabhub/internal/websocket"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandlers struct {
	verifier Verifier
	relay    *ws.Relay
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewWebSocketHandlers(verifier Verifier, relay *ws.Relay, m *metrics.Metrics, allowedOrigins []string, log *zap.SugaredLogger) *WebSocketHandlers {
	return &WebSocketHandlers{
		verifier: verifier,
		relay:    relay,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originAllowed(allowedOrigins),
		},
		log: log,
	}
}

// HandleWebSocket verifies the caller before upgrading, so a rejected
// handshake never touches presence or rooms.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := h.verifier.Verify(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		h.metrics.HandshakeFailures.WithLabelValues(handshakeReason(err)).Inc()
		writeError(w, r, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.HandshakeFailures.WithLabelValues("upgrade").Inc()
		h.log.Warnw("Upgrade error", "userId", user.ID, "error", err)
		return
	}

	h.relay.Serve(conn, user)
}

func handshakeReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, apperrors.ErrTokenExpired):
		return "expired_token"
	case errors.Is(err, apperrors.ErrTokenInvalid):
		return "invalid_token"
	default:
		return "error"
	}
}
