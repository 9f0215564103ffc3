package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxGuests applies when an event is created without a guest limit.
const DefaultMaxGuests = 1000

type Event struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Date        time.Time `json:"date" db:"event_date"`
	Location    string    `json:"location" db:"location"`
	AdminCode   string    `json:"admin_code" db:"admin_code"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	MaxGuests   int       `json:"max_guests" db:"max_guests"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the event was created more than lifetime ago.
func (e *Event) Expired(now time.Time, lifetime time.Duration) bool {
	return lifetime > 0 && now.Sub(e.CreatedAt) > lifetime
}

// EventSummary is the public view returned with admin-code lookups.
type EventSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	MaxGuests   int       `json:"max_guests"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Date:        e.Date,
		Location:    e.Location,
		MaxGuests:   e.MaxGuests,
		CreatedAt:   e.CreatedAt,
	}
}

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,max=100"`
	Description string    `json:"description" binding:"max=500"`
	Date        time.Time `json:"date" binding:"required"`
	Location    string    `json:"location" binding:"required,max=200"`
	CreatedBy   string    `json:"created_by" binding:"required,email"`
	MaxGuests   int       `json:"max_guests" binding:"omitempty,min=1,max=100000"`
}

type UpdateEventRequest struct {
	Name        *string    `json:"name" binding:"omitempty,min=1,max=100"`
	Description *string    `json:"description" binding:"omitempty,max=500"`
	Date        *time.Time `json:"date"`
	Location    *string    `json:"location" binding:"omitempty,min=1,max=200"`
	MaxGuests   *int       `json:"max_guests" binding:"omitempty,min=1,max=100000"`
}

type VerifyAdminRequest struct {
	AdminCode string `json:"admin_code" binding:"required,min=4,max=16"`
}
