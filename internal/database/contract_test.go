package database

import (
	"context"
	"testing"
	"time"

	"collabhub/internal/apperrors"
	"collabhub/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, db Database, name string) *models.User {
	t.Helper()
	user := &models.User{
		Name:         name,
		Email:        name + "-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: "hash-" + name,
	}
	require.NoError(t, db.CreateUser(context.Background(), user))
	return user
}

// runStoreContract exercises behavior every Database implementation must share.
func runStoreContract(t *testing.T, db Database) {
	t.Run("users", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()

		alice := newUser(t, db, "alice")
		req.NotEmpty(alice.ID)
		req.Equal(models.StatusOffline, alice.Status)

		dup := &models.User{Name: "other", Email: alice.Email, PasswordHash: "x"}
		req.ErrorIs(db.CreateUser(ctx, dup), apperrors.ErrUserExists)

		byEmail, err := db.GetUserByEmail(ctx, alice.Email)
		req.NoError(err)
		req.Equal(alice.ID, byEmail.ID)
		req.Equal("hash-alice", byEmail.PasswordHash)

		seen := time.Now().UTC().Truncate(time.Millisecond)
		req.NoError(db.UpdateUserStatus(ctx, alice.ID, models.StatusOnline, seen))
		byID, err := db.GetUserByID(ctx, alice.ID)
		req.NoError(err)
		req.Equal(models.StatusOnline, byID.Status)
		req.True(seen.Equal(byID.LastSeen))

		_, err = db.GetUserByID(ctx, uuid.NewString())
		req.ErrorIs(err, apperrors.ErrUserNotFound)
		req.ErrorIs(db.UpdateUserStatus(ctx, uuid.NewString(), models.StatusOffline, seen), apperrors.ErrUserNotFound)
	})

	t.Run("groups and memberships", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		owner := newUser(t, db, "owner")
		member := newUser(t, db, "member")

		group := &models.Group{Name: "Design", OwnerID: owner.ID}
		req.NoError(db.CreateGroup(ctx, group))
		req.NotEmpty(group.ID)

		m, err := db.FindMembership(ctx, owner.ID, group.ID)
		req.NoError(err)
		req.Equal(models.RoleOwner, m.Role)

		_, err = db.FindMembership(ctx, member.ID, group.ID)
		req.ErrorIs(err, apperrors.ErrMembershipNotFound)

		req.NoError(db.AddMembership(ctx, &models.Membership{UserID: member.ID, GroupID: group.ID, Role: models.RoleMember}))
		req.ErrorIs(db.AddMembership(ctx, &models.Membership{UserID: member.ID, GroupID: group.ID, Role: models.RoleAdmin}), apperrors.ErrMemberExists)

		memberships, err := db.FindMembershipsByUser(ctx, member.ID)
		req.NoError(err)
		req.Len(memberships, 1)
		req.Equal(group.ID, memberships[0].GroupID)

		members, err := db.FindMembersByGroup(ctx, group.ID)
		req.NoError(err)
		req.Len(members, 2)
		req.Equal("member", members[0].Name)
		req.Empty(members[0].PasswordHash)

		groups, err := db.ListUserGroups(ctx, member.ID)
		req.NoError(err)
		req.Len(groups, 1)
		req.Equal("Design", groups[0].Name)

		_, err = db.GetGroupByID(ctx, uuid.NewString())
		req.ErrorIs(err, apperrors.ErrGroupNotFound)
	})

	t.Run("group messages", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		owner := newUser(t, db, "poster")
		group := &models.Group{Name: "Ops", OwnerID: owner.ID}
		req.NoError(db.CreateGroup(ctx, group))

		var sent []*models.Message
		for i, channel := range []models.ChannelType{models.ChannelGroup, models.ChannelAnnouncement, models.ChannelGroup} {
			msg := &models.Message{SenderID: owner.ID, GroupID: group.ID, Content: string(rune('a' + i)), ChannelType: channel}
			req.NoError(db.CreateMessage(ctx, msg))
			req.NotEmpty(msg.ID)
			req.False(msg.CreatedAt.IsZero())
			sent = append(sent, msg)
			time.Sleep(2 * time.Millisecond)
		}

		all, err := db.ListGroupMessages(ctx, group.ID, models.HistoryQuery{Limit: 50})
		req.NoError(err)
		req.Len(all, 3)
		req.Equal([]string{"a", "b", "c"}, []string{all[0].Content, all[1].Content, all[2].Content})
		req.Equal(&models.Profile{ID: owner.ID, Name: "poster", Email: owner.Email}, all[0].Sender)
		req.Nil(all[0].Receiver)

		latest, err := db.ListGroupMessages(ctx, group.ID, models.HistoryQuery{Limit: 2})
		req.NoError(err)
		req.Equal([]string{"b", "c"}, []string{latest[0].Content, latest[1].Content})

		older, err := db.ListGroupMessages(ctx, group.ID, models.HistoryQuery{Limit: 50, Before: sent[2].CreatedAt})
		req.NoError(err)
		req.Len(older, 2)

		announcements, err := db.ListGroupMessages(ctx, group.ID, models.HistoryQuery{Limit: 50, ChannelType: models.ChannelAnnouncement})
		req.NoError(err)
		req.Len(announcements, 1)
		req.Equal("b", announcements[0].Content)

		missing := &models.Message{SenderID: owner.ID, GroupID: uuid.NewString(), Content: "x", ChannelType: models.ChannelGroup}
		req.ErrorIs(db.CreateMessage(ctx, missing), apperrors.ErrGroupNotFound)

		invalid := &models.Message{SenderID: owner.ID, GroupID: group.ID, ChannelType: models.ChannelGroup}
		req.ErrorIs(db.CreateMessage(ctx, invalid), apperrors.ErrValidation)
	})

	t.Run("paging back-to-back messages", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		owner := newUser(t, db, "burst")
		group := &models.Group{Name: "Burst", OwnerID: owner.ID}
		req.NoError(db.CreateGroup(ctx, group))

		var want []string
		for i := range 7 {
			content := string(rune('a' + i))
			req.NoError(db.CreateMessage(ctx, &models.Message{SenderID: owner.ID, GroupID: group.ID, Content: content, ChannelType: models.ChannelGroup}))
			want = append(want, content)
		}

		var got []string
		q := models.HistoryQuery{Limit: 2}
		for {
			page, err := db.ListGroupMessages(ctx, group.ID, q)
			req.NoError(err)
			if len(page) == 0 {
				break
			}
			var contents []string
			for _, m := range page {
				contents = append(contents, m.Content)
			}
			got = append(contents, got...)
			q.Before = page[0].CreatedAt
		}
		req.Equal(want, got)
	})

	t.Run("direct messages", func(t *testing.T) {
		req := require.New(t)
		ctx := context.Background()
		a := newUser(t, db, "dm-a")
		b := newUser(t, db, "dm-b")
		c := newUser(t, db, "dm-c")

		send := func(from, to *models.User, content string) *models.Message {
			msg := &models.Message{SenderID: from.ID, ReceiverID: to.ID, Content: content, ChannelType: models.ChannelDM}
			req.NoError(db.CreateMessage(ctx, msg))
			time.Sleep(2 * time.Millisecond)
			return msg
		}
		send(a, b, "hello")
		send(b, a, "hi back")
		send(a, b, "how are you")
		send(c, a, "ping")

		unread, err := db.CountUnread(ctx, b.ID)
		req.NoError(err)
		req.Equal(2, unread)

		history, err := db.ListDirectMessages(ctx, b.ID, a.ID, models.HistoryQuery{Limit: 50})
		req.NoError(err)
		req.Len(history, 3)
		req.Equal("hello", history[0].Content)
		req.False(history[0].Read)
		req.Equal("dm-a", history[0].Sender.Name)
		req.Equal(b.Email, history[0].Receiver.Email)
		req.Equal(b.ID, history[1].Sender.ID)

		marked, err := db.MarkDirectMessagesRead(ctx, a.ID, b.ID)
		req.NoError(err)
		req.Equal(2, marked)
		unread, err = db.CountUnread(ctx, b.ID)
		req.NoError(err)
		req.Zero(unread)

		unread, err = db.CountUnread(ctx, a.ID)
		req.NoError(err)
		req.Equal(2, unread)

		conversations, err := db.ListConversations(ctx, a.ID)
		req.NoError(err)
		req.Len(conversations, 2)
		req.Equal(c.ID, conversations[0].User.ID)
		req.Equal("ping", conversations[0].LastMessage.Content)
		req.Equal(b.ID, conversations[1].User.ID)
		req.Equal("how are you", conversations[1].LastMessage.Content)

		ghost := &models.Message{SenderID: a.ID, ReceiverID: uuid.NewString(), Content: "x", ChannelType: models.ChannelDM}
		req.ErrorIs(db.CreateMessage(ctx, ghost), apperrors.ErrUnknownReceiver)
	})
}
