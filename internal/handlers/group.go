package handlers

import (
	"context"
	"net/http"
	"time"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/middleware"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// GroupLifecycle is the group service the handlers depend on
type GroupLifecycle interface {
	CreateGroup(ctx context.Context, leaderID string) (*models.Group, error)
	JoinGroup(ctx context.Context, userID, joinCode string) (*models.Group, error)
	LockGroup(ctx context.Context, groupID, userID string) (*models.Group, error)
	UpdateGroupProfile(ctx context.Context, groupID, userID string, videoLinks []string) (*models.Group, error)
	LeaveGroup(ctx context.Context, userID, groupID string) error
	PresignVideoUpload(ctx context.Context, groupID, userID string, index int) (*services.VideoUpload, error)
	CreateDinnerParty(ctx context.Context, groupID, userID string, in services.DinnerPartyInput) (*models.DinnerParty, error)
	DeleteDinnerParty(ctx context.Context, groupID, userID string) error
}

// GroupHandler handles group and dinner party HTTP requests
type GroupHandler struct {
	groups GroupLifecycle
	views  Views
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groups GroupLifecycle, views Views) *GroupHandler {
	return &GroupHandler{
		groups: groups,
		views:  views,
	}
}

// JoinGroupRequest represents the request body for joining a group
type JoinGroupRequest struct {
	JoinCode string `json:"join_code" validate:"required,len=6,alphanum"`
}

// UpdateGroupProfileRequest represents the request body for publishing member videos
type UpdateGroupProfileRequest struct {
	VideoLinks []string `json:"video_links" validate:"required,min=1,max=5,dive,required,url"`
}

// PresignVideoRequest represents the request body for a video upload slot
type PresignVideoRequest struct {
	Index *int `json:"index" validate:"required,min=0,max=4"`
}

// CreateGroup handles POST /api/v1/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	group, err := h.groups.CreateGroup(ctx, userID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", group.ID).
		Msg("Group created")

	respondJSON(w, http.StatusCreated, group)
}

// JoinGroup handles POST /api/v1/groups/join
func (h *GroupHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req JoinGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := h.groups.JoinGroup(ctx, userID, req.JoinCode)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", group.ID).
		Msg("Joined group")

	respondJSON(w, http.StatusOK, group)
}

// LockGroup handles POST /api/v1/groups/{id}/lock
func (h *GroupHandler) LockGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	group, err := h.groups.LockGroup(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// UpdateGroupProfile handles PUT /api/v1/groups/{id}/profile
func (h *GroupHandler) UpdateGroupProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateGroupProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	group, err := h.groups.UpdateGroupProfile(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), req.VideoLinks)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

// PresignVideoUpload handles POST /api/v1/groups/{id}/videos/upload
func (h *GroupHandler) PresignVideoUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PresignVideoRequest
	if !decodeBody(w, r, &req) {
		return
	}

	upload, err := h.groups.PresignVideoUpload(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx), *req.Index)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, upload)
}

// LeaveGroup handles DELETE /api/v1/groups/{id}/members/me
func (h *GroupHandler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	groupID := chi.URLParam(r, "id")

	if err := h.groups.LeaveGroup(ctx, userID, groupID); err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", groupID).
		Msg("Left group")

	w.WriteHeader(http.StatusNoContent)
}

// GetGroupMembers handles GET /api/v1/groups/{id}/members
func (h *GroupHandler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requireMembership(w, r, h.views)
	if !ok {
		return
	}

	members, err := h.views.GetGroupMembers(r.Context(), groupID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// CreateDinnerPartyRequest represents the request body for hosting a dinner party
type CreateDinnerPartyRequest struct {
	MainDish   string    `json:"main_dish" validate:"required,max=200"`
	Side       string    `json:"side" validate:"max=200"`
	Address    string    `json:"address" validate:"required,max=500"`
	Latitude   float64   `json:"latitude" validate:"min=-90,max=90"`
	Longitude  float64   `json:"longitude" validate:"min=-180,max=180"`
	DinnerTime time.Time `json:"dinner_time" validate:"required"`
}

// CreateDinnerParty handles POST /api/v1/groups/{id}/party
func (h *GroupHandler) CreateDinnerParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "id")

	var req CreateDinnerPartyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	party, err := h.groups.CreateDinnerParty(ctx, groupID, middleware.GetUserID(ctx), services.DinnerPartyInput{
		MainDish:   req.MainDish,
		Side:       req.Side,
		Address:    req.Address,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		DinnerTime: req.DinnerTime,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("group_id", groupID).
		Str("party_id", party.ID).
		Time("dinner_time", party.DinnerTime).
		Msg("Dinner party created")

	respondJSON(w, http.StatusCreated, party)
}

// GetGroupDinnerParty handles GET /api/v1/groups/{id}/party
func (h *GroupHandler) GetGroupDinnerParty(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requireMembership(w, r, h.views)
	if !ok {
		return
	}

	party, err := h.views.GetGroupDinnerParty(r.Context(), groupID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	// null when the group is not hosting
	respondJSON(w, http.StatusOK, party)
}

// DeleteDinnerParty handles DELETE /api/v1/groups/{id}/party
func (h *GroupHandler) DeleteDinnerParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "id")

	if err := h.groups.DeleteDinnerParty(ctx, groupID, middleware.GetUserID(ctx)); err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().Str("group_id", groupID).Msg("Dinner party deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GetActiveDinnerParties handles GET /api/v1/parties
func (h *GroupHandler) GetActiveDinnerParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.views.GetActiveDinnerParties(r.Context())
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, parties)
}

// requireMembership resolves the {id} path group and checks the caller
// belongs to it. It writes the error response and returns false otherwise.
func requireMembership(w http.ResponseWriter, r *http.Request, views Views) (string, bool) {
	ctx := r.Context()
	groupID := chi.URLParam(r, "id")

	ug, err := views.GetUserGroup(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondAppError(w, r, err)
		return "", false
	}
	if ug.Group == nil || ug.Group.ID != groupID {
		respondAppError(w, r, apperr.ErrNotMember)
		return "", false
	}
	return groupID, true
}
