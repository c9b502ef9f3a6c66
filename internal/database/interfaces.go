//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_database.go -package=mocks
package database

import (
	"context"
	"time"

	"collabhub/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserStatus(ctx context.Context, id string, status models.UserStatus, lastSeen time.Time) error
}

type GroupRepository interface {
	// CreateGroup stores the group and its owner's OWNER membership atomically.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroupByID(ctx context.Context, id string) (*models.Group, error)
	ListUserGroups(ctx context.Context, userID string) ([]*models.Group, error)
}

// MembershipRepository is the membership directory consulted by the relay.
type MembershipRepository interface {
	AddMembership(ctx context.Context, membership *models.Membership) error
	FindMembership(ctx context.Context, userID, groupID string) (*models.Membership, error)
	FindMembershipsByUser(ctx context.Context, userID string) ([]*models.Membership, error)
	FindMembersByGroup(ctx context.Context, groupID string) ([]*models.Member, error)
}

// MessageRepository is the message store. CreateMessage assigns the id and
// the server-side creation timestamp.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListGroupMessages(ctx context.Context, groupID string, q models.HistoryQuery) ([]*models.Message, error)
	ListDirectMessages(ctx context.Context, userID, otherID string, q models.HistoryQuery) ([]*models.Message, error)
	MarkDirectMessagesRead(ctx context.Context, senderID, receiverID string) (int, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type Database interface {
	UserRepository
	GroupRepository
	MembershipRepository
	MessageRepository
	Close() error
}
