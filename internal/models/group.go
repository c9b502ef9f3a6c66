package models

import "time"

type Role string

const (
	RoleOwner     Role = "OWNER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
	RoleMember    Role = "MEMBER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// CanAnnounce reports whether the role may post to a group's announcement channel.
func (r Role) CanAnnounce() bool {
	return r == RoleOwner || r == RoleAdmin
}

// CanManage reports whether the role may add members to a group.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Membership struct {
	UserID   string    `json:"userId"`
	GroupID  string    `json:"groupId"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Member struct {
	User
	Role Role `json:"role"`
}

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type AddMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   Role   `json:"role" validate:"omitempty,oneof=ADMIN MODERATOR MEMBER"`
}
