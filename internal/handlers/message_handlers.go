package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/auth"
	"collabhub/internal/models"
	"collabhub/internal/services"

	"go.uber.org/zap"
)

type MessageHandlers struct {
	messages  *services.MessageService
	publisher Publisher
	log       *zap.SugaredLogger
}

func NewMessageHandlers(messages *services.MessageService, publisher Publisher, log *zap.SugaredLogger) *MessageHandlers {
	return &MessageHandlers{
		messages:  messages,
		publisher: publisher,
		log:       log,
	}
}

func (h *MessageHandlers) SendGroupMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req models.SendGroupMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	msg, err := h.messages.SendGroupMessage(r.Context(), user, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.publisher.PublishGroupMessage(msg); err != nil {
		h.log.Warnw("Failed to publish group message", "messageId", msg.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandlers) GroupHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	q, err := historyQuery(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	q.ChannelType = models.ChannelType(r.URL.Query().Get("channelType"))

	messages, err := h.messages.GroupHistory(r.Context(), user.ID, r.PathValue("groupId"), q)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) SendDirectMessage(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req models.SendDirectMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	msg, err := h.messages.SendDirectMessage(r.Context(), user, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if err := h.publisher.PublishDirectMessage(msg); err != nil {
		h.log.Warnw("Failed to publish direct message", "messageId", msg.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandlers) DirectHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	q, err := historyQuery(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	messages, err := h.messages.DirectHistory(r.Context(), user.ID, r.PathValue("userId"), q)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) Conversations(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	conversations, err := h.messages.Conversations(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h *MessageHandlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	count, err := h.messages.UnreadCount(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// historyQuery reads the limit and before (RFC 3339) parameters.
func historyQuery(r *http.Request) (models.HistoryQuery, error) {
	var q models.HistoryQuery
	params := r.URL.Query()

	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, apperrors.Validation(fmt.Errorf("invalid limit %q", raw))
		}
		q.Limit = limit
	}
	if raw := params.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return q, apperrors.Validation(fmt.Errorf("invalid before %q", raw))
		}
		q.Before = before
	}
	return q, nil
}
