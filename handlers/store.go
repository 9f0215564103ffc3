package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"qrcheckin-backend/models"
	"qrcheckin-backend/notify"
)

// Store is the persistence surface used by the HTTP layer. Both
// store.Memory and store.Postgres satisfy it.
type Store interface {
	Ping(ctx context.Context) error

	CreateEvent(ctx context.Context, e *models.Event) error
	FindEventByAdminCode(ctx context.Context, code string) (*models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	DeactivateEvent(ctx context.Context, id uuid.UUID) error

	CreateGuest(ctx context.Context, g *models.Guest) error
	CreateGuests(ctx context.Context, guests []*models.Guest) error
	FindGuest(ctx context.Context, guestID, eventID uuid.UUID) (*models.Guest, error)
	ListGuests(ctx context.Context, f models.GuestFilter) (*models.GuestPage, error)
	ExistingEmails(ctx context.Context, eventID uuid.UUID, emails []string) (map[string]bool, error)
	UpdateGuest(ctx context.Context, g *models.Guest) error
	DeleteGuest(ctx context.Context, guestID, eventID uuid.UUID) error
	SearchGuests(ctx context.Context, eventID uuid.UUID, term string, limit int) ([]models.Guest, error)
	GuestsForTokenIssue(ctx context.Context, eventID uuid.UUID, regenerate bool, limit int) ([]models.Guest, error)
	SetGuestToken(ctx context.Context, guestID, eventID uuid.UUID, token string, issuedAt time.Time) error
	GuestsWithToken(ctx context.Context, eventID uuid.UUID, invitationType models.InvitationType) ([]models.Guest, error)
	CountGuests(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error)

	CountCheckIns(ctx context.Context, eventID uuid.UUID, since time.Time, statuses ...models.CheckInStatus) (int, error)
	AttendanceRecords(ctx context.Context, eventID uuid.UUID) ([]models.AttendanceRecord, error)
}

// Subscriber streams live updates for one event.
type Subscriber interface {
	Subscribe(ctx context.Context, eventID uuid.UUID) (<-chan notify.Update, func() error, error)
}
