package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"qrcheckin-backend/models"
	"qrcheckin-backend/store"
)

const (
	adminCodeLength   = 8
	adminCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	adminCodeAttempts = 10
)

type EventHandler struct {
	store    Store
	logger   *slog.Logger
	lifetime time.Duration
	now      func() time.Time
}

func NewEventHandler(s Store, logger *slog.Logger, lifetime time.Duration, now func() time.Time) *EventHandler {
	if now == nil {
		now = time.Now
	}
	return &EventHandler{store: s, logger: logger, lifetime: lifetime, now: now}
}

// CreateEvent registers an event and returns its admin code. The code is the
// only credential for managing the event.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	if !req.Date.After(h.now()) {
		respondError(c, http.StatusBadRequest, CodeValidation, "Event date must be in the future")
		return
	}
	if req.MaxGuests == 0 {
		req.MaxGuests = models.DefaultMaxGuests
	}

	event := &models.Event{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Date:        req.Date.UTC(),
		Location:    strings.TrimSpace(req.Location),
		CreatedBy:   strings.ToLower(strings.TrimSpace(req.CreatedBy)),
		IsActive:    true,
		MaxGuests:   req.MaxGuests,
	}

	var err error
	for attempt := 0; attempt < adminCodeAttempts; attempt++ {
		if event.AdminCode, err = newAdminCode(); err != nil {
			break
		}
		if err = h.store.CreateEvent(c.Request.Context(), event); !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		respondInternal(c, fmt.Errorf("create event: %w", err))
		return
	}

	h.logger.InfoContext(c.Request.Context(), "event created", "event_id", event.ID, "created_by", event.CreatedBy)
	respondOK(c, http.StatusCreated, "Event created", gin.H{
		"event":      event.Summary(),
		"admin_code": event.AdminCode,
	})
}

// VerifyAdmin checks an admin code and returns the event it opens.
func (h *EventHandler) VerifyAdmin(c *gin.Context) {
	var req models.VerifyAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	event, err := h.store.FindEventByAdminCode(c.Request.Context(), strings.ToUpper(strings.TrimSpace(req.AdminCode)))
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeEventNotFound, "Invalid admin code")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	if event.Expired(h.now(), h.lifetime) {
		respondError(c, http.StatusGone, CodeEventExpired, "This event has expired")
		return
	}
	respondOK(c, http.StatusOK, "Admin code verified", gin.H{"event": event.Summary()})
}

func (h *EventHandler) GetEvent(c *gin.Context) {
	event := currentEvent(c)
	counts, err := h.store.CountGuests(c.Request.Context(), event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Event details", gin.H{"event": event.Summary(), "stats": counts})
}

func (h *EventHandler) UpdateEvent(c *gin.Context) {
	var req models.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	event := currentEvent(c)

	if req.Date != nil {
		if !req.Date.After(h.now()) {
			respondError(c, http.StatusBadRequest, CodeValidation, "Event date must be in the future")
			return
		}
		event.Date = req.Date.UTC()
	}
	if req.MaxGuests != nil {
		counts, err := h.store.CountGuests(c.Request.Context(), event.ID)
		if err != nil {
			respondInternal(c, err)
			return
		}
		if *req.MaxGuests < counts.Total {
			respondError(c, http.StatusBadRequest, CodeValidation,
				fmt.Sprintf("Event already has %d guests", counts.Total))
			return
		}
		event.MaxGuests = *req.MaxGuests
	}
	if req.Name != nil {
		event.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		event.Description = strings.TrimSpace(*req.Description)
	}
	if req.Location != nil {
		event.Location = strings.TrimSpace(*req.Location)
	}

	if err := h.store.UpdateEvent(c.Request.Context(), event); err != nil {
		respondInternal(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Event updated", gin.H{"event": event.Summary()})
}

// DeactivateEvent closes an event. Its admin code stops resolving.
func (h *EventHandler) DeactivateEvent(c *gin.Context) {
	event := currentEvent(c)
	if err := h.store.DeactivateEvent(c.Request.Context(), event.ID); err != nil {
		respondInternal(c, err)
		return
	}
	h.logger.InfoContext(c.Request.Context(), "event deactivated", "event_id", event.ID)
	respondOK(c, http.StatusOK, "Event deactivated", nil)
}

func newAdminCode() (string, error) {
	max := big.NewInt(int64(len(adminCodeAlphabet)))
	var b strings.Builder
	for i := 0; i < adminCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate admin code: %w", err)
		}
		b.WriteByte(adminCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
