package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"dinnerparty-backend/internal/apperr"
	"dinnerparty-backend/internal/models"
	"dinnerparty-backend/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Views is the read side the handlers depend on
type Views interface {
	GetUserGroup(ctx context.Context, userID string) (*services.UserGroup, error)
	GetActiveDinnerParties(ctx context.Context) ([]services.PartyListing, error)
	GetPartyRequests(ctx context.Context, hostGroupID string) ([]services.RequestView, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]models.MemberProfile, error)
	GetGroupDinnerParty(ctx context.Context, groupID string) (*models.DinnerParty, error)
	GetHostGroupInfo(ctx context.Context, userGroupID string) (*services.PairedGroup, error)
	GetAttendeeGroupInfo(ctx context.Context, hostGroupID string) (*services.PairedGroup, error)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPrecondition:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondAppError sends the status and message for a service error
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Unclassified service error")
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: "store_failure"})
		return
	}

	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("code", e.Code).Msg("Request failed")
	}
	respondJSON(w, status, ErrorResponse{Error: e.Message, Code: e.Code})
}

// decodeBody decodes and validates a JSON body into dst. It writes the
// error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: apperr.ErrInvalidInput.Code})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationMessage(err), Code: apperr.ErrInvalidInput.Code})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, jsonFieldName(fe)+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}
