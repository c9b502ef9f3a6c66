package handlers

import (
	"net/http"

	"collabhub/internal/auth"
	"collabhub/internal/models"

	"go.uber.org/zap"
)

type AuthHandlers struct {
	authService *auth.Service
	log         *zap.SugaredLogger
}

func NewAuthHandlers(authService *auth.Service, log *zap.SugaredLogger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		log:         log,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// Me returns the authenticated caller.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}
