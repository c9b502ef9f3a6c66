package services

import (
	"context"
	"errors"
	"strings"

	"collabhub/internal/apperrors"
	"collabhub/internal/database"
	"collabhub/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type GroupService struct {
	db       database.Database
	validate *validator.Validate
	log      *zap.SugaredLogger
}

func NewGroupService(db database.Database, log *zap.SugaredLogger) *GroupService {
	return &GroupService{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// CreateGroup stores a new group with ownerID as its OWNER.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID string, req *models.CreateGroupRequest) (*models.Group, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}

	group := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
	}
	if err := s.db.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	s.log.Infow("Group created", "groupId", group.ID, "ownerId", ownerID)
	return group, nil
}

// AddMember lets an OWNER or ADMIN of groupID add another user.
func (s *GroupService) AddMember(ctx context.Context, actorID, groupID string, req *models.AddMemberRequest) (*models.Membership, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation(err)
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}

	actor, err := s.db.FindMembership(ctx, actorID, groupID)
	if errors.Is(err, apperrors.ErrMembershipNotFound) {
		return nil, apperrors.ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanManage() {
		return nil, apperrors.ErrCannotManageGroup
	}

	membership := &models.Membership{UserID: req.UserID, GroupID: groupID, Role: req.Role}
	if err := s.db.AddMembership(ctx, membership); err != nil {
		return nil, err
	}
	s.log.Infow("Member added", "groupId", groupID, "userId", req.UserID, "role", req.Role)
	return membership, nil
}

func (s *GroupService) ListMyGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	groups, err := s.db.ListUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []*models.Group{}
	}
	return groups, nil
}

// ListMembers returns the members of groupID to one of its members.
func (s *GroupService) ListMembers(ctx context.Context, userID, groupID string) ([]*models.Member, error) {
	if _, err := s.db.FindMembership(ctx, userID, groupID); err != nil {
		if errors.Is(err, apperrors.ErrMembershipNotFound) {
			return nil, apperrors.ErrNotMember
		}
		return nil, err
	}
	return s.db.FindMembersByGroup(ctx, groupID)
}

// GroupIDsOf lists the groups userID belongs to.
func (s *GroupService) GroupIDsOf(ctx context.Context, userID string) ([]string, error) {
	memberships, err := s.db.FindMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(memberships, func(m *models.Membership, _ int) string { return m.GroupID }), nil
}

// MemberIDs lists the user ids of every member of groupID.
func (s *GroupService) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	members, err := s.db.FindMembersByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m *models.Member, _ int) string { return m.ID }), nil
}
