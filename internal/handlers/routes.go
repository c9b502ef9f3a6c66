package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wires every handler onto one mux.
type Router struct {
	Auth           *AuthHandlers
	Messages       *MessageHandlers
	Groups         *GroupHandlers
	WebSocket      *WebSocketHandlers
	Verifier       Verifier
	Metrics        http.Handler
	AllowedOrigins []string
	Log            *zap.SugaredLogger
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return RequireAuth(rt.Verifier, rt.Log, h)
	}

	// Auth routes
	mux.HandleFunc("POST /auth/register", rt.Auth.Register)
	mux.HandleFunc("POST /auth/login", rt.Auth.Login)
	mux.HandleFunc("GET /auth/me", protect(rt.Auth.Me))

	// Message routes
	mux.HandleFunc("POST /messages/group", protect(rt.Messages.SendGroupMessage))
	mux.HandleFunc("GET /messages/group/{groupId}", protect(rt.Messages.GroupHistory))
	mux.HandleFunc("POST /messages/dm", protect(rt.Messages.SendDirectMessage))
	mux.HandleFunc("GET /messages/dm/{userId}", protect(rt.Messages.DirectHistory))
	mux.HandleFunc("GET /messages/conversations", protect(rt.Messages.Conversations))
	mux.HandleFunc("GET /messages/unread", protect(rt.Messages.UnreadCount))

	// Group routes
	mux.HandleFunc("POST /groups", protect(rt.Groups.CreateGroup))
	mux.HandleFunc("GET /groups", protect(rt.Groups.ListGroups))
	mux.HandleFunc("GET /groups/{groupId}/members", protect(rt.Groups.ListMembers))
	mux.HandleFunc("POST /groups/{groupId}/members", protect(rt.Groups.AddMember))

	// WebSocket route
	mux.HandleFunc("GET /ws", rt.WebSocket.HandleWebSocket)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	return RequestID(rt.Log, CORS(rt.AllowedOrigins, mux))
}
