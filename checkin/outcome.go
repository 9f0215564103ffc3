package checkin

import (
	"github.com/google/uuid"

	"qrcheckin-backend/models"
)

// Kind classifies the result of a check-in attempt.
type Kind string

const (
	KindSuccess          Kind = "success"
	KindAlreadyCheckedIn Kind = "already_checked_in"
	KindInvalid          Kind = "invalid"
	KindExpired          Kind = "expired"
	KindGuestNotFound    Kind = "guest_not_found"
	KindWrongEvent       Kind = "wrong_event"
	KindNoQRCode         Kind = "no_qr_code"
)

// Outcome is the tagged result handed to the HTTP layer.
//
//   - Success, AlreadyCheckedIn: Guest is set.
//   - Invalid: Reason holds a diagnostic code (INVALID_FORMAT, INVALID_SIGNATURE).
//     It is for logs, not for clients.
//   - Expired: GuestID is set when the token named one.
type Outcome struct {
	Kind    Kind
	Guest   *models.GuestSnapshot
	Reason  string
	GuestID *uuid.UUID
}

func (o Outcome) Succeeded() bool { return o.Kind == KindSuccess }

// Method distinguishes scanned from manual attempts in metrics.
type Method string

const (
	MethodScan   Method = "scan"
	MethodManual Method = "manual"
)

// ScannerMeta describes where an attempt came from.
type ScannerMeta struct {
	Device string
	Origin string
}
