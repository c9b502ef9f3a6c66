package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/config"
	"collabhub/internal/database"
	"collabhub/internal/metrics"
	"collabhub/internal/mocks"
	"collabhub/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var (
	testLimits = config.HistoryConfig{DefaultLimit: 50, MaxLimit: 100}
	testSender = &models.User{ID: "u1", Name: "Uno", Email: "uno@example.com", AvatarURL: "https://cdn.example.com/uno.png"}
)

func newMockMessageService(t *testing.T) (*MessageService, *mocks.MockDatabase, *metrics.Metrics) {
	ctrl := gomock.NewController(t)
	db := mocks.NewMockDatabase(ctrl)
	m := metrics.New(prometheus.NewRegistry())
	return NewMessageService(db, testLimits, m, zap.NewNop().Sugar()), db, m
}

func TestSendGroupMessageRoles(t *testing.T) {
	tests := []struct {
		name    string
		role    models.Role
		channel models.ChannelType
		wantErr error
	}{
		{"member posts to group", models.RoleMember, "", nil},
		{"member announces", models.RoleMember, models.ChannelAnnouncement, apperrors.ErrAnnouncementForbidden},
		{"moderator announces", models.RoleModerator, models.ChannelAnnouncement, apperrors.ErrAnnouncementForbidden},
		{"admin announces", models.RoleAdmin, models.ChannelAnnouncement, nil},
		{"owner announces", models.RoleOwner, models.ChannelAnnouncement, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			svc, db, m := newMockMessageService(t)

			db.EXPECT().FindMembership(gomock.Any(), "u1", "g1").Return(&models.Membership{UserID: "u1", GroupID: "g1", Role: tt.role}, nil)
			if tt.wantErr == nil {
				db.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *models.Message) error {
					msg.ID = "m1"
					msg.CreatedAt = time.Now()
					return nil
				})
			}

			msg, err := svc.SendGroupMessage(context.Background(), testSender, &models.SendGroupMessageRequest{
				GroupID: "g1", Content: "hi", ChannelType: tt.channel,
			})
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				req.ErrorIs(err, apperrors.ErrAuthorization)
				req.Equal("access denied: only admins can post announcements", err.Error())
				return
			}
			req.NoError(err)
			req.Equal("m1", msg.ID)
			req.Equal("u1", msg.SenderID)
			req.Equal(&models.Profile{ID: "u1", Name: "Uno", Email: "uno@example.com", AvatarURL: "https://cdn.example.com/uno.png"}, msg.Sender)
			wantChannel := tt.channel
			if wantChannel == "" {
				wantChannel = models.ChannelGroup
			}
			req.Equal(wantChannel, msg.ChannelType)
			req.Equal(1.0, testutil.ToFloat64(m.MessagesPersisted.WithLabelValues(string(wantChannel))))
		})
	}
}

func TestSendGroupMessageRejections(t *testing.T) {
	t.Run("not a member", func(t *testing.T) {
		svc, db, _ := newMockMessageService(t)
		db.EXPECT().FindMembership(gomock.Any(), "u1", "g1").Return(nil, apperrors.ErrMembershipNotFound)

		_, err := svc.SendGroupMessage(context.Background(), testSender, &models.SendGroupMessageRequest{GroupID: "g1", Content: "hi"})
		require.ErrorIs(t, err, apperrors.ErrNotMember)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := newMockMessageService(t)
		for _, r := range []models.SendGroupMessageRequest{
			{GroupID: "g1"},
			{Content: "hi"},
			{GroupID: "g1", Content: strings.Repeat("x", models.MaxContentLength+1)},
			{GroupID: "g1", Content: "hi", ChannelType: models.ChannelDM},
		} {
			_, err := svc.SendGroupMessage(context.Background(), testSender, &r)
			require.ErrorIs(t, err, apperrors.ErrValidation)
		}
	})

	t.Run("persistence failure", func(t *testing.T) {
		svc, db, _ := newMockMessageService(t)
		db.EXPECT().FindMembership(gomock.Any(), "u1", "g1").Return(&models.Membership{Role: models.RoleMember}, nil)
		db.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(apperrors.Persistence("create message", errors.New("connection reset")))

		_, err := svc.SendGroupMessage(context.Background(), testSender, &models.SendGroupMessageRequest{GroupID: "g1", Content: "hi"})
		require.ErrorIs(t, err, apperrors.ErrPersistence)
	})
}

func TestSendDirectMessage(t *testing.T) {
	t.Run("unknown receiver", func(t *testing.T) {
		svc, db, _ := newMockMessageService(t)
		db.EXPECT().GetUserByID(gomock.Any(), "ghost").Return(nil, apperrors.ErrUserNotFound)

		_, err := svc.SendDirectMessage(context.Background(), testSender, &models.SendDirectMessageRequest{ReceiverID: "ghost", Content: "hi"})
		require.ErrorIs(t, err, apperrors.ErrUnknownReceiver)
	})

	t.Run("persists as DM", func(t *testing.T) {
		svc, db, _ := newMockMessageService(t)
		db.EXPECT().GetUserByID(gomock.Any(), "u2").Return(&models.User{ID: "u2", Name: "Dos"}, nil)
		db.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *models.Message) error {
			require.Equal(t, models.ChannelDM, msg.ChannelType)
			require.Empty(t, msg.GroupID)
			return nil
		})

		msg, err := svc.SendDirectMessage(context.Background(), testSender, &models.SendDirectMessageRequest{ReceiverID: "u2", Content: "hi"})
		require.NoError(t, err)
		require.Equal(t, "u2", msg.ReceiverID)
		require.Equal(t, "Uno", msg.Sender.Name)
		require.Equal(t, "Dos", msg.Receiver.Name)
	})
}

func TestHistoryLimits(t *testing.T) {
	svc, db, _ := newMockMessageService(t)
	ctx := context.Background()

	for _, tc := range []struct{ in, want int }{{0, 50}, {-3, 50}, {20, 20}, {500, 100}} {
		db.EXPECT().FindMembership(gomock.Any(), "u1", "g1").Return(&models.Membership{Role: models.RoleMember}, nil)
		db.EXPECT().ListGroupMessages(gomock.Any(), "g1", models.HistoryQuery{Limit: tc.want}).Return(nil, nil)

		messages, err := svc.GroupHistory(ctx, "u1", "g1", models.HistoryQuery{Limit: tc.in})
		require.NoError(t, err)
		require.NotNil(t, messages)
	}

	_, err := svc.GroupHistory(ctx, "u1", "g1", models.HistoryQuery{ChannelType: models.ChannelDM})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDirectHistoryMarkFailureIsNotFatal(t *testing.T) {
	svc, db, _ := newMockMessageService(t)
	db.EXPECT().ListDirectMessages(gomock.Any(), "u1", "u2", gomock.Any()).Return([]*models.Message{{ID: "m1"}}, nil)
	db.EXPECT().MarkDirectMessagesRead(gomock.Any(), "u2", "u1").Return(0, apperrors.Persistence("mark", errors.New("timeout")))

	messages, err := svc.DirectHistory(context.Background(), "u1", "u2", models.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestDirectHistoryOverBadger(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db, err := database.NewBadgerDB(zap.NewNop().Sugar(), t.TempDir())
	req.NoError(err)
	defer db.Close()

	a := &models.User{Name: "a", Email: "a@example.com", PasswordHash: "x"}
	b := &models.User{Name: "b", Email: "b@example.com", PasswordHash: "x"}
	req.NoError(db.CreateUser(ctx, a))
	req.NoError(db.CreateUser(ctx, b))

	svc := NewMessageService(db, testLimits, metrics.New(prometheus.NewRegistry()), zap.NewNop().Sugar())
	sent, err := svc.SendDirectMessage(ctx, a, &models.SendDirectMessageRequest{ReceiverID: b.ID, Content: "hello"})
	req.NoError(err)
	req.False(sent.Read)

	unread, err := svc.UnreadCount(ctx, b.ID)
	req.NoError(err)
	req.Equal(1, unread)

	history, err := svc.DirectHistory(ctx, b.ID, a.ID, models.HistoryQuery{})
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("hello", history[0].Content)
	req.Equal(&models.Profile{ID: a.ID, Name: "a", Email: "a@example.com"}, history[0].Sender)
	req.Equal(b.ID, history[0].Receiver.ID)

	unread, err = svc.UnreadCount(ctx, b.ID)
	req.NoError(err)
	req.Zero(unread)

	conversations, err := svc.Conversations(ctx, a.ID)
	req.NoError(err)
	req.Len(conversations, 1)
	req.Equal(b.ID, conversations[0].User.ID)
}
