package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qrcheckin-backend/metrics"
	"qrcheckin-backend/models"
	"qrcheckin-backend/notify"
	"qrcheckin-backend/qrtoken"
	"qrcheckin-backend/roster"
	"qrcheckin-backend/store"
)

const (
	defaultPageSize  = 50
	maxPageSize      = 100
	defaultBatchSize = 50
	maxUploadBytes   = 5 << 20
)

// TokenIssuer signs QR tokens for guests.
type TokenIssuer interface {
	Issue(eventID, guestID, name string, ttl time.Duration) (string, error)
}

type GuestHandler struct {
	store     Store
	tokens    TokenIssuer
	ttl       time.Duration
	metrics   *metrics.Metrics
	publisher notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewGuestHandler(s Store, tokens TokenIssuer, ttl time.Duration, m *metrics.Metrics, p notify.Publisher, logger *slog.Logger) *GuestHandler {
	if p == nil {
		p = notify.Nop{}
	}
	return &GuestHandler{store: s, tokens: tokens, ttl: ttl, metrics: m, publisher: p, logger: logger, now: time.Now}
}

func (h *GuestHandler) AddGuest(c *gin.Context) {
	var req models.CreateGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	event := currentEvent(c)

	draft, problems := roster.Normalize(req.Name, req.Email, req.Phone, req.InvitationType)
	if len(problems) > 0 {
		respondError(c, http.StatusBadRequest, CodeValidation, strings.Join(problems, "; "))
		return
	}

	counts, err := h.store.CountGuests(c.Request.Context(), event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if counts.Total >= event.MaxGuests {
		respondError(c, http.StatusBadRequest, CodeGuestLimit,
			fmt.Sprintf("Guest limit reached (%d maximum)", event.MaxGuests))
		return
	}

	guest := draft.Guest(event.ID)
	err = h.store.CreateGuest(c.Request.Context(), guest)
	if errors.Is(err, store.ErrConflict) {
		respondError(c, http.StatusConflict, CodeDuplicateEmail, "A guest with this email already exists")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}

	h.publish(c.Request.Context(), notify.TypeGuestsChanged, event.ID, gin.H{"added": 1})
	respondOK(c, http.StatusCreated, "Guest added", gin.H{"guest": guest})
}

// ImportCSV adds every guest of an uploaded CSV or none of them.
func (h *GuestHandler) ImportCSV(c *gin.Context) {
	event := currentEvent(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, "A CSV file is required in the \"file\" field")
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		respondError(c, http.StatusBadRequest, CodeValidation, "Only CSV files are accepted")
		return
	}
	f, err := header.Open()
	if err != nil {
		respondInternal(c, err)
		return
	}
	defer f.Close()

	drafts, lineErrors, err := roster.Parse(f)
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if len(lineErrors) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success":     false,
			"code":        CodeValidation,
			"message":     "The CSV file contains invalid rows",
			"errors":      lineErrors,
			"valid_count": len(drafts),
			"error_count": len(lineErrors),
		})
		return
	}

	ctx := c.Request.Context()
	counts, err := h.store.CountGuests(ctx, event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if counts.Total+len(drafts) > event.MaxGuests {
		respondError(c, http.StatusBadRequest, CodeGuestLimit, fmt.Sprintf(
			"Import would exceed the guest limit (%d maximum, %d existing, %d in file)",
			event.MaxGuests, counts.Total, len(drafts)))
		return
	}

	if emails := roster.Emails(drafts); len(emails) > 0 {
		existing, err := h.store.ExistingEmails(ctx, event.ID, emails)
		if err != nil {
			respondInternal(c, err)
			return
		}
		if len(existing) > 0 {
			dups := make([]string, 0, len(existing))
			for _, e := range emails {
				if existing[e] {
					dups = append(dups, e)
				}
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"success":          false,
				"code":             CodeDuplicateEmail,
				"message":          "Some emails are already used by guests of this event",
				"duplicate_emails": dups,
			})
			return
		}
	}

	guests := make([]*models.Guest, len(drafts))
	for i, d := range drafts {
		guests[i] = d.Guest(event.ID)
	}
	err = h.store.CreateGuests(ctx, guests)
	if errors.Is(err, store.ErrConflict) {
		respondError(c, http.StatusConflict, CodeDuplicateEmail, "Some emails are already used by guests of this event")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}

	h.logger.InfoContext(ctx, "guests imported", "event_id", event.ID, "count", len(guests))
	h.publish(ctx, notify.TypeGuestsChanged, event.ID, gin.H{"added": len(guests)})
	respondOK(c, http.StatusCreated, fmt.Sprintf("%d guests imported", len(guests)), gin.H{
		"imported_count": len(guests),
		"total_guests":   counts.Total + len(guests),
		"guests":         guests,
	})
}

// ListGuests pages through an event's guests. Query: page, limit, search,
// type (VIP, Standard, Staff) and status (checked_in, pending).
func (h *GuestHandler) ListGuests(c *gin.Context) {
	event := currentEvent(c)
	page := positiveInt(c.Query("page"), 1)
	limit := min(positiveInt(c.Query("limit"), defaultPageSize), maxPageSize)

	filter := models.GuestFilter{
		EventID: event.ID,
		Search:  strings.TrimSpace(c.Query("search")),
		Limit:   limit,
		Offset:  (page - 1) * limit,
	}
	if t := c.Query("type"); t != "" && t != "all" {
		typ, ok := models.ParseInvitationType(t)
		if !ok {
			respondError(c, http.StatusBadRequest, CodeValidation, "type must be VIP, Standard or Staff")
			return
		}
		filter.InvitationType = typ
	}
	switch c.Query("status") {
	case "", "all":
	case "checked_in", "present":
		v := true
		filter.CheckedIn = &v
	case "pending":
		v := false
		filter.CheckedIn = &v
	default:
		respondError(c, http.StatusBadRequest, CodeValidation, "status must be checked_in or pending")
		return
	}

	ctx := c.Request.Context()
	result, err := h.store.ListGuests(ctx, filter)
	if err != nil {
		respondInternal(c, err)
		return
	}
	counts, err := h.store.CountGuests(ctx, event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}

	totalPages := (result.Total + limit - 1) / limit
	respondOK(c, http.StatusOK, "Guests", gin.H{
		"guests": result.Guests,
		"pagination": gin.H{
			"page":          page,
			"limit":         limit,
			"total":         result.Total,
			"total_pages":   totalPages,
			"has_next_page": page < totalPages,
			"has_prev_page": page > 1,
		},
		"stats": counts,
	})
}

func (h *GuestHandler) UpdateGuest(c *gin.Context) {
	var req models.UpdateGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	event := currentEvent(c)
	guest, ok := h.findGuest(c, event)
	if !ok {
		return
	}

	name, email, phone, typ := guest.Name, deref(guest.Email), deref(guest.Phone), string(guest.InvitationType)
	if req.Name != nil {
		name = *req.Name
	}
	if req.Email != nil {
		email = *req.Email
	}
	if req.Phone != nil {
		phone = *req.Phone
	}
	if req.InvitationType != nil {
		typ = *req.InvitationType
	}
	draft, problems := roster.Normalize(name, email, phone, typ)
	if len(problems) > 0 {
		respondError(c, http.StatusBadRequest, CodeValidation, strings.Join(problems, "; "))
		return
	}
	updated := draft.Guest(event.ID)
	updated.ID = guest.ID
	updated.CreatedAt = guest.CreatedAt

	err := h.store.UpdateGuest(c.Request.Context(), updated)
	if errors.Is(err, store.ErrConflict) {
		respondError(c, http.StatusConflict, CodeDuplicateEmail, "A guest with this email already exists")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "Guest not found")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	h.publish(c.Request.Context(), notify.TypeGuestsChanged, event.ID, gin.H{"updated": updated.ID})
	respondOK(c, http.StatusOK, "Guest updated", gin.H{"guest": updated})
}

func (h *GuestHandler) DeleteGuest(c *gin.Context) {
	event := currentEvent(c)
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidGuestID, "Invalid guest id")
		return
	}
	err = h.store.DeleteGuest(c.Request.Context(), guestID, event.ID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "Guest not found")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	h.publish(c.Request.Context(), notify.TypeGuestsChanged, event.ID, gin.H{"deleted": guestID})
	respondOK(c, http.StatusOK, "Guest deleted", nil)
}

// GenerateQR issues tokens for up to batch_size guests. Without regenerate
// only guests lacking a token are processed. Reissuing replaces a guest's
// token, so earlier codes stop matching.
func (h *GuestHandler) GenerateQR(c *gin.Context) {
	var req models.GenerateQRRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, err)
			return
		}
	}
	if req.BatchSize == 0 {
		req.BatchSize = defaultBatchSize
	}
	event := currentEvent(c)
	ctx := c.Request.Context()

	guests, err := h.store.GuestsForTokenIssue(ctx, event.ID, req.Regenerate, req.BatchSize)
	if err != nil {
		respondInternal(c, err)
		return
	}

	issued := 0
	var failures []gin.H
	for _, g := range guests {
		token, err := h.tokens.Issue(event.ID.String(), g.ID.String(), g.Name, h.ttl)
		if err == nil {
			err = h.store.SetGuestToken(ctx, g.ID, event.ID, token, h.now().UTC())
		}
		if err != nil {
			h.logger.WarnContext(ctx, "failed to issue qr token", "event_id", event.ID, "guest_id", g.ID, "error", err)
			failures = append(failures, gin.H{"guest_id": g.ID, "name": g.Name})
			continue
		}
		issued++
	}
	if h.metrics != nil {
		h.metrics.AddTokensIssued(issued)
	}

	remaining, err := h.store.GuestsForTokenIssue(ctx, event.ID, false, 0)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if issued > 0 {
		h.publish(ctx, notify.TypeQRGenerated, event.ID, gin.H{"generated": issued})
	}
	respondOK(c, http.StatusOK, fmt.Sprintf("%d QR codes generated", issued), gin.H{
		"generated": issued,
		"failed":    failures,
		"remaining": len(remaining),
	})
}

// QRImage renders a guest's current token as a PNG.
func (h *GuestHandler) QRImage(c *gin.Context) {
	guest, ok := h.findGuest(c, currentEvent(c))
	if !ok {
		return
	}
	if !guest.HasQRToken() {
		respondError(c, http.StatusNotFound, CodeNoQRCode, "No QR code has been generated for this guest")
		return
	}
	size := min(positiveInt(c.Query("size"), qrtoken.DefaultImageSize), 1024)
	png, err := qrtoken.PNG(*guest.QRToken, size)
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *GuestHandler) findGuest(c *gin.Context, event *models.Event) (*models.Guest, bool) {
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidGuestID, "Invalid guest id")
		return nil, false
	}
	guest, err := h.store.FindGuest(c.Request.Context(), guestID, event.ID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "Guest not found")
		return nil, false
	}
	if err != nil {
		respondInternal(c, err)
		return nil, false
	}
	return guest, true
}

func (h *GuestHandler) publish(ctx context.Context, kind string, eventID uuid.UUID, data any) {
	u, err := notify.NewUpdate(kind, eventID, data, h.now())
	if err == nil {
		err = h.publisher.Publish(context.WithoutCancel(ctx), u)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "failed to publish update", "event_id", eventID, "type", kind, "error", err)
	}
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
