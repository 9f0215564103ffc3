package models

import (
	"time"

	"github.com/google/uuid"
)

type CheckInStatus string

const (
	CheckInSuccess   CheckInStatus = "success"
	CheckInDuplicate CheckInStatus = "duplicate"
	CheckInInvalid   CheckInStatus = "invalid"
	CheckInExpired   CheckInStatus = "expired"
)

const (
	// MaxNotesLength bounds the free-text diagnostic stored with an attempt.
	MaxNotesLength = 200
	// MaxScannerDeviceLength bounds the scanner label; longer labels are cut, not rejected.
	MaxScannerDeviceLength = 50
)

// CheckIn is one audit row. Every scan or manual attempt produces exactly one.
// GuestID is nil when the attempt could not be attributed to a guest.
type CheckIn struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	EventID       uuid.UUID     `json:"event_id" db:"event_id"`
	GuestID       *uuid.UUID    `json:"guest_id,omitempty" db:"guest_id"`
	ScanTime      time.Time     `json:"scan_time" db:"scan_time"`
	ScannerDevice string        `json:"scanner_device" db:"scanner_device"`
	ScannerOrigin string        `json:"scanner_origin" db:"scanner_origin"`
	Status        CheckInStatus `json:"status" db:"status"`
	Notes         string        `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// AttendanceRecord is a successful check-in joined with its guest, used by exports.
type AttendanceRecord struct {
	GuestName      string         `json:"guest_name"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	InvitationType InvitationType `json:"invitation_type"`
	CheckedInAt    time.Time      `json:"checked_in_at"`
	ScannerDevice  string         `json:"scanner_device"`
	ScannerOrigin  string         `json:"scanner_origin"`
}

type ValidateQRRequest struct {
	QRToken       string `json:"qr_token" binding:"required"`
	ScannerDevice string `json:"scanner_device"`
}

type ManualCheckInRequest struct {
	GuestID       string `json:"guest_id" binding:"required"`
	ScannerDevice string `json:"scanner_device"`
}
