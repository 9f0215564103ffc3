package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type InvitationType string

const (
	InvitationVIP      InvitationType = "VIP"
	InvitationStandard InvitationType = "Standard"
	InvitationStaff    InvitationType = "Staff"
)

var InvitationTypes = []InvitationType{InvitationVIP, InvitationStandard, InvitationStaff}

// ParseInvitationType matches case-insensitively and falls back to Standard.
func ParseInvitationType(s string) (InvitationType, bool) {
	for _, t := range InvitationTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return InvitationStandard, strings.TrimSpace(s) == ""
}

type Guest struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	EventID        uuid.UUID      `json:"event_id" db:"event_id"`
	Name           string         `json:"name" db:"name"`
	Email          *string        `json:"email,omitempty" db:"email"`
	Phone          *string        `json:"phone,omitempty" db:"phone"`
	InvitationType InvitationType `json:"invitation_type" db:"invitation_type"`
	QRToken        *string        `json:"qr_token,omitempty" db:"qr_token"`
	QRIssuedAt     *time.Time     `json:"qr_issued_at,omitempty" db:"qr_issued_at"`
	IsCheckedIn    bool           `json:"is_checked_in" db:"is_checked_in"`
	CheckedInAt    *time.Time     `json:"checked_in_at,omitempty" db:"checked_in_at"`
	CheckedInBy    *string        `json:"checked_in_by,omitempty" db:"checked_in_by"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// HasQRToken reports whether a token was ever issued to the guest.
func (g *Guest) HasQRToken() bool {
	return g.QRToken != nil && *g.QRToken != ""
}

// TokenMatches reports whether token is the guest's current token.
func (g *Guest) TokenMatches(token string) bool {
	return g.HasQRToken() && *g.QRToken == token
}

// GuestSnapshot is what a scanner is shown after a check-in attempt.
type GuestSnapshot struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Email          *string        `json:"email,omitempty"`
	InvitationType InvitationType `json:"invitation_type"`
	CheckedInAt    *time.Time     `json:"checked_in_at,omitempty"`
	CheckedInBy    *string        `json:"checked_in_by,omitempty"`
}

func (g *Guest) Snapshot() *GuestSnapshot {
	return &GuestSnapshot{
		ID:             g.ID,
		Name:           g.Name,
		Email:          g.Email,
		InvitationType: g.InvitationType,
		CheckedInAt:    g.CheckedInAt,
		CheckedInBy:    g.CheckedInBy,
	}
}

// GuestFilter narrows guest listings. Zero values mean "any".
type GuestFilter struct {
	EventID        uuid.UUID
	Search         string
	InvitationType InvitationType
	CheckedIn      *bool
	Limit          int
	Offset         int
}

type GuestPage struct {
	Guests []Guest `json:"guests"`
	Total  int     `json:"total"`
}

type CreateGuestRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	Email          string `json:"email" binding:"omitempty,email"`
	Phone          string `json:"phone" binding:"omitempty,phone"`
	InvitationType string `json:"invitation_type" binding:"omitempty,oneof=VIP Standard Staff"`
}

type UpdateGuestRequest struct {
	Name           *string `json:"name" binding:"omitempty,min=1,max=100"`
	Email          *string `json:"email" binding:"omitempty,email"`
	Phone          *string `json:"phone" binding:"omitempty,phone"`
	InvitationType *string `json:"invitation_type" binding:"omitempty,oneof=VIP Standard Staff"`
}

type GenerateQRRequest struct {
	BatchSize  int  `json:"batch_size" binding:"omitempty,min=1,max=1000"`
	Regenerate bool `json:"regenerate"`
}
