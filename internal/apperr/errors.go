// Package apperr defines the tagged errors returned by the group and
// matching services. Callers branch on Kind or on the sentinel codes with
// errors.Is, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and status mapping
type Kind int

const (
	KindStore Kind = iota
	KindValidation
	KindPrecondition
	KindNotFound
	KindForbidden
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPrecondition:
		return "precondition"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConsistency:
		return "consistency"
	default:
		return "store"
	}
}

// Error is a classified error with a stable machine-readable code
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so wrapped instances compare equal to
// the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of the sentinel wrapping err
func (e *Error) With(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

func newErr(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrMalformedID        = newErr(KindValidation, "malformed_id", "Invalid id format")
	ErrVideoCountMismatch = newErr(KindValidation, "video_count_mismatch", "One video per member is required")
	ErrInvalidInput       = newErr(KindValidation, "invalid_input", "Invalid input")

	ErrInvalidCode         = newErr(KindPrecondition, "invalid_code", "Invalid join code")
	ErrGroupLocked         = newErr(KindPrecondition, "group_locked", "Group is locked and not accepting new members")
	ErrGroupFull           = newErr(KindPrecondition, "group_full", "Group is full")
	ErrGroupNotReady       = newErr(KindPrecondition, "group_not_ready", "Group needs at least 3 members")
	ErrGroupNotLocked      = newErr(KindPrecondition, "group_not_locked", "Group must be locked first")
	ErrGroupNotLive        = newErr(KindPrecondition, "group_not_live", "Group profile is not complete")
	ErrAlreadyInGroup      = newErr(KindPrecondition, "already_in_group", "You are already in another group")
	ErrHostAlreadyTaken    = newErr(KindPrecondition, "host_already_taken", "This group already has an attendant")
	ErrAlreadyAttending    = newErr(KindPrecondition, "already_attending", "Your group is already attending another dinner party")
	ErrDuplicateRequest    = newErr(KindPrecondition, "duplicate_request", "Your group has already requested to join this party")
	ErrSelfRequest         = newErr(KindPrecondition, "self_request_not_allowed", "You cannot request to attend your own dinner party")
	ErrPartyAlreadyActive  = newErr(KindPrecondition, "party_already_active", "Your group already has an active dinner party")
	ErrNoDinnerParty       = newErr(KindPrecondition, "no_dinner_party", "This group is not hosting a dinner party")
	ErrNoEligibleLeader    = newErr(KindPrecondition, "no_eligible_leader", "No remaining member can lead the group")
	ErrJoinCodeExhausted   = newErr(KindPrecondition, "join_code_exhausted", "Failed to generate unique join code")
	ErrNotPaired           = newErr(KindPrecondition, "not_paired", "Group has no pairing to cancel")
	ErrInvalidCancelType   = newErr(KindValidation, "invalid_cancel_type", "cancel_type must be host or attendee")
	ErrProfileAlreadyExist = newErr(KindPrecondition, "profile_exists", "Profile already exists")
	ErrMutualPairing       = newErr(KindPrecondition, "mutual_pairing", "Your groups are already paired the other way around")

	ErrNotFound = newErr(KindNotFound, "not_found", "Not found")

	ErrNotLeader = newErr(KindForbidden, "not_leader", "Only the group leader can do this")
	ErrNotMember = newErr(KindForbidden, "not_member", "You are not a member of this group")

	ErrPartialFailure = newErr(KindConsistency, "partial_failure", "Operation partially applied")
)

// NotFound returns a not-found error naming the missing entity
func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: ErrNotFound.Code, Message: entity + " not found"}
}

// Store wraps a transport or store failure with a human-readable action
func Store(action string, err error) *Error {
	return &Error{Kind: KindStore, Code: "store_failure", Message: "Failed to " + action + ". Please try again.", Err: err}
}

// KindOf reports the kind of err. Unclassified errors are store failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// CodeOf reports the code of err, or "store_failure" when unclassified
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "store_failure"
}

// IsNotFound reports whether err is a not-found error at any depth
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
