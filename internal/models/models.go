package models

import "time"

// User represents a user profile
type User struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"display_name"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	PhoneNum          *string   `json:"phone_num,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Group represents a unit of 1-5 users that hosts or attends one dinner party at a time
type Group struct {
	ID                      string    `json:"id"`
	LeaderID                string    `json:"leader_id"`
	JoinCode                string    `json:"join_code"`
	IsReady                 bool      `json:"is_ready"`
	IsLocked                bool      `json:"is_locked"`
	IsLive                  bool      `json:"is_live"`
	HasAttendant            bool      `json:"has_attendant"`
	VideoLinks              []string  `json:"video_links"`
	AcceptedAttendeeGroupID *string   `json:"accepted_attendee_group_id"`
	AttendingHostGroupID    *string   `json:"attending_host_group_id"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// GroupMember is the join row between a group and a user
type GroupMember struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// DinnerParty is a group's current hosting offer
type DinnerParty struct {
	ID         string    `json:"id"`
	GroupID    string    `json:"group_id"`
	MainDish   string    `json:"main_dish"`
	Side       string    `json:"side"`
	Address    string    `json:"address"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	DinnerTime time.Time `json:"dinner_time"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PartyRequest is one group's pending ask to attend another group's dinner party
type PartyRequest struct {
	ID                string    `json:"id"`
	RequestingGroupID string    `json:"requesting_group_id"`
	HostGroupID       string    `json:"host_group_id"`
	CreatedAt         time.Time `json:"created_at"`
}

// GroupUpdate lists the group columns a single update may touch.
// A nil field is left unchanged; ClearAccepted/ClearAttending set the
// corresponding column to NULL.
type GroupUpdate struct {
	LeaderID                *string
	IsReady                 *bool
	IsLocked                *bool
	IsLive                  *bool
	HasAttendant            *bool
	VideoLinks              []string
	SetVideoLinks           bool
	AcceptedAttendeeGroupID *string
	ClearAccepted           bool
	AttendingHostGroupID    *string
	ClearAttending          bool
}

// Bool returns a pointer to b
func Bool(b bool) *bool { return &b }

// String returns a pointer to s
func String(s string) *string { return &s }

// MemberProfile is a group member joined with their user profile
type MemberProfile struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	ProfilePictureURL string    `json:"profile_picture_url"`
	JoinedAt          time.Time `json:"joined_at"`
}
