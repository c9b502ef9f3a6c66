package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"collabhub/internal/apperrors"
	"collabhub/pkg/logger"
	"collabhub/internal/models"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

// Verifier resolves bearer tokens to users.
type Verifier interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// Publisher pushes persisted messages to live sessions.
type Publisher interface {
	PublishGroupMessage(msg *models.Message) error
	PublishDirectMessage(msg *models.Message) error
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and client text for err's category.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.SugaredLogger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		requestID, _ := logger.RequestIDFromContext(r.Context())
		log.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "requestId", requestID, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: apperrors.PublicMessage(err)})
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Validation(fmt.Errorf("reading body: %w", err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Validation(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}
