package services

import (
	"context"
	"errors"
	"fmt"

	"collabhub/internal/apperrors"
	"collabhub/internal/config"
	"collabhub/internal/database"
	"collabhub/internal/metrics"
	"collabhub/internal/models"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// MessageService holds the validation and authorisation rules shared by the
// live relay and the REST surface.
type MessageService struct {
	db       database.Database
	limits   config.HistoryConfig
	metrics  *metrics.Metrics
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewMessageService(db database.Database, limits config.HistoryConfig, m *metrics.Metrics, log *zap.SugaredLogger) *MessageService {
	return &MessageService{
		db:       db,
		limits:   limits,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// RequireMembership returns the caller's membership of groupID or ErrNotMember.
func (s *MessageService) RequireMembership(ctx context.Context, userID, groupID string) (*models.Membership, error) {
	m, err := s.db.FindMembership(ctx, userID, groupID)
	if errors.Is(err, apperrors.ErrMembershipNotFound) {
		return nil, apperrors.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SendGroupMessage persists a group message from sender. The returned
// message carries the sender's profile.
func (s *MessageService) SendGroupMessage(ctx context.Context, sender *models.User, req *models.SendGroupMessageRequest) (*models.Message, error) {
	if req.ChannelType == "" {
		req.ChannelType = models.ChannelGroup
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	membership, err := s.RequireMembership(ctx, sender.ID, req.GroupID)
	if err != nil {
		return nil, err
	}
	if req.ChannelType == models.ChannelAnnouncement && !membership.Role.CanAnnounce() {
		return nil, apperrors.ErrAnnouncementForbidden
	}

	msg := &models.Message{
		SenderID:      sender.ID,
		GroupID:       req.GroupID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		ChannelType:   req.ChannelType,
	}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender = sender.Profile()
	s.metrics.MessagesPersisted.WithLabelValues(string(msg.ChannelType)).Inc()
	return msg, nil
}

func (s *MessageService) SendDirectMessage(ctx context.Context, sender *models.User, req *models.SendDirectMessageRequest) (*models.Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	receiver, err := s.db.GetUserByID(ctx, req.ReceiverID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrUnknownReceiver
		}
		return nil, err
	}

	msg := &models.Message{
		SenderID:      sender.ID,
		ReceiverID:    req.ReceiverID,
		Content:       req.Content,
		AttachmentURL: req.AttachmentURL,
		ChannelType:   models.ChannelDM,
	}
	if err := s.db.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	msg.Sender, msg.Receiver = sender.Profile(), receiver.Profile()
	s.metrics.MessagesPersisted.WithLabelValues(string(msg.ChannelType)).Inc()
	return msg, nil
}

// GroupHistory returns one page of a group's timeline, oldest first. Without
// a channel type both GROUP and ANNOUNCEMENT messages are returned.
func (s *MessageService) GroupHistory(ctx context.Context, userID, groupID string, q models.HistoryQuery) ([]*models.Message, error) {
	if q.ChannelType != "" && !q.ChannelType.IsGroupChannel() {
		return nil, apperrors.Validation(fmt.Errorf("unsupported channel type %q", q.ChannelType))
	}
	if _, err := s.RequireMembership(ctx, userID, groupID); err != nil {
		return nil, err
	}

	q.Limit = s.clamp(q.Limit)
	messages, err := s.db.ListGroupMessages(ctx, groupID, q)
	if err != nil {
		return nil, err
	}
	return nonNil(messages), nil
}

// DirectHistory returns one page of the conversation between userID and
// otherID and marks otherID's messages to userID as read.
func (s *MessageService) DirectHistory(ctx context.Context, userID, otherID string, q models.HistoryQuery) ([]*models.Message, error) {
	q.Limit = s.clamp(q.Limit)
	q.ChannelType = ""
	messages, err := s.db.ListDirectMessages(ctx, userID, otherID, q)
	if err != nil {
		return nil, err
	}

	marked, err := s.db.MarkDirectMessagesRead(ctx, otherID, userID)
	if err != nil {
		s.log.Warnw("Failed to mark messages read", "userId", userID, "otherId", otherID, "error", err)
	} else if marked > 0 {
		s.log.Debugw("Marked messages read", "userId", userID, "otherId", otherID, "count", marked)
	}
	return nonNil(messages), nil
}

func (s *MessageService) Conversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	conversations, err := s.db.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []*models.Conversation{}
	}
	return conversations, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.db.CountUnread(ctx, userID)
}

func (s *MessageService) clamp(limit int) int {
	switch {
	case limit <= 0:
		return s.limits.DefaultLimit
	case limit > s.limits.MaxLimit:
		return s.limits.MaxLimit
	}
	return limit
}

func nonNil(messages []*models.Message) []*models.Message {
	if messages == nil {
		return []*models.Message{}
	}
	return messages
}
