package handlers

import (
	"context"
	"net/http"

	"dinnerparty-backend/internal/middleware"
	"dinnerparty-backend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Matching is the request/accept/cancel service the handlers depend on
type Matching interface {
	CreatePartyRequest(ctx context.Context, requestingGroupID, hostGroupID, actorID string) (*models.PartyRequest, error)
	AcceptPartyRequest(ctx context.Context, requestID, actorID string) (*models.PartyRequest, error)
	CancelAttendanceAs(ctx context.Context, groupID, actorID, cancelType string) error
	ClearPartyRequests(ctx context.Context, hostGroupID, actorID string) (int, error)
}

// PairHandler handles the host/attendee pairing HTTP requests
type PairHandler struct {
	matching Matching
	views    Views
}

// NewPairHandler creates a new pair handler
func NewPairHandler(matching Matching, views Views) *PairHandler {
	return &PairHandler{
		matching: matching,
		views:    views,
	}
}

// CreatePartyRequestBody represents the request body for asking to attend a dinner party
type CreatePartyRequestBody struct {
	HostGroupID string `json:"host_group_id" validate:"required,uuid"`
}

// CancelAttendanceRequest represents the request body for cancelling a pairing
type CancelAttendanceRequest struct {
	CancelType string `json:"cancel_type" validate:"required,oneof=host attendee"`
}

// ClearPartyRequestsResponse reports how many pending requests were removed
type ClearPartyRequestsResponse struct {
	Deleted int `json:"deleted"`
}

// CreatePartyRequest handles POST /api/v1/groups/{id}/requests
func (h *PairHandler) CreatePartyRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	groupID := chi.URLParam(r, "id")

	var body CreatePartyRequestBody
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := h.matching.CreatePartyRequest(ctx, groupID, body.HostGroupID, userID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("requesting_group_id", groupID).
		Str("host_group_id", body.HostGroupID).
		Str("request_id", req.ID).
		Msg("Party request created")

	respondJSON(w, http.StatusCreated, req)
}

// GetPartyRequests handles GET /api/v1/groups/{id}/requests
func (h *PairHandler) GetPartyRequests(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requireMembership(w, r, h.views)
	if !ok {
		return
	}

	requests, err := h.views.GetPartyRequests(r.Context(), groupID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

// ClearPartyRequests handles DELETE /api/v1/groups/{id}/requests
func (h *PairHandler) ClearPartyRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.matching.ClearPartyRequests(ctx, chi.URLParam(r, "id"), middleware.GetUserID(ctx))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ClearPartyRequestsResponse{Deleted: n})
}

// AcceptPartyRequest handles POST /api/v1/requests/{id}/accept
func (h *PairHandler) AcceptPartyRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	req, err := h.matching.AcceptPartyRequest(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("host_group_id", req.HostGroupID).
		Str("attendee_group_id", req.RequestingGroupID).
		Msg("Party request accepted")

	respondJSON(w, http.StatusOK, req)
}

// CancelAttendance handles POST /api/v1/groups/{id}/cancel
func (h *PairHandler) CancelAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	groupID := chi.URLParam(r, "id")

	var body CancelAttendanceRequest
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.matching.CancelAttendanceAs(ctx, groupID, userID, body.CancelType); err != nil {
		respondAppError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", groupID).
		Str("cancel_type", body.CancelType).
		Msg("Attendance cancelled")

	w.WriteHeader(http.StatusNoContent)
}

// GetHostGroupInfo handles GET /api/v1/groups/{id}/host
func (h *PairHandler) GetHostGroupInfo(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requireMembership(w, r, h.views)
	if !ok {
		return
	}

	info, err := h.views.GetHostGroupInfo(r.Context(), groupID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// GetAttendeeGroupInfo handles GET /api/v1/groups/{id}/attendee
func (h *PairHandler) GetAttendeeGroupInfo(w http.ResponseWriter, r *http.Request) {
	groupID, ok := requireMembership(w, r, h.views)
	if !ok {
		return
	}

	info, err := h.views.GetAttendeeGroupInfo(r.Context(), groupID)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}
