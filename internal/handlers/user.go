package handlers

import (
	"context"
	"net/http"

	"dinnerparty-backend/internal/middleware"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/services"
)

// Profiles is the user profile service the handlers depend on
type Profiles interface {
	CreateProfile(ctx context.Context, userID, displayName, pictureURL string, phoneNum *string) (*models.User, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.User, error)
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	profiles Profiles
	views    Views
}

// NewUserHandler creates a new user handler
func NewUserHandler(profiles Profiles, views Views) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		views:    views,
	}
}

// CreateProfileRequest represents the request body for creating a profile
type CreateProfileRequest struct {
	DisplayName       string  `json:"display_name" validate:"required,max=50"`
	ProfilePictureURL string  `json:"profile_picture_url" validate:"omitempty,url"`
	PhoneNum          *string `json:"phone_num" validate:"omitempty,max=20"`
}

// UpdateProfileRequest represents the request body for a partial profile update
type UpdateProfileRequest struct {
	DisplayName       *string `json:"display_name" validate:"omitempty,min=1,max=50"`
	ProfilePictureURL *string `json:"profile_picture_url" validate:"omitempty,url"`
	PhoneNum          *string `json:"phone_num" validate:"omitempty,max=20"`
}

// CreateProfile handles POST /api/v1/users
func (h *UserHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.profiles.CreateProfile(ctx, userID, req.DisplayName, req.ProfilePictureURL, req.PhoneNum)
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.profiles.GetProfile(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req UpdateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.profiles.UpdateProfile(ctx, middleware.GetUserID(ctx), services.ProfileUpdate{
		DisplayName:       req.DisplayName,
		ProfilePictureURL: req.ProfilePictureURL,
		PhoneNum:          req.PhoneNum,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetMyGroup handles GET /api/v1/users/me/group
func (h *UserHandler) GetMyGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ug, err := h.views.GetUserGroup(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ug)
}
