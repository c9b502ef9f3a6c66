package handlers

import (
	"net/http"

	"collabhub/internal/auth"
	"collabhub/internal/models"
	"collabhub/internal/services"

	"go.uber.org/zap"
)

type GroupHandlers struct {
	groups *services.GroupService
	log    *zap.SugaredLogger
}

func NewGroupHandlers(groups *services.GroupService, log *zap.SugaredLogger) *GroupHandlers {
	return &GroupHandlers{
		groups: groups,
		log:    log,
	}
}

func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req models.CreateGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), user.ID, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	groups, err := h.groups.ListMyGroups(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	members, err := h.groups.ListMembers(r.Context(), user.ID, r.PathValue("groupId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *GroupHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var req models.AddMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	membership, err := h.groups.AddMember(r.Context(), user.ID, r.PathValue("groupId"), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, membership)
}
