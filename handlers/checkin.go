package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"qrcheckin-backend/checkin"
	"qrcheckin-backend/models"
)

const (
	minSearchLength  = 2
	maxSearchResults = 20
	keepAlive        = 25 * time.Second
)

type CheckinHandler struct {
	service *checkin.Service
	stats   *checkin.StatsService
	store   Store
	live    Subscriber
	logger  *slog.Logger
}

// NewCheckinHandler builds the scanner endpoints. live may be nil, in which
// case the live stream answers 503.
func NewCheckinHandler(service *checkin.Service, stats *checkin.StatsService, s Store, live Subscriber, logger *slog.Logger) *CheckinHandler {
	return &CheckinHandler{service: service, stats: stats, store: s, live: live, logger: logger}
}

// Validate checks in the guest named by a scanned QR token.
func (h *CheckinHandler) Validate(c *gin.Context) {
	var req models.ValidateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	outcome, err := h.service.VerifyAndCheckIn(c.Request.Context(), req.QRToken, currentEvent(c), scannerMeta(c, req.ScannerDevice))
	if err != nil {
		respondInternal(c, err)
		return
	}
	writeOutcome(c, outcome)
}

// Manual checks a guest in by id, for guests who cannot present their code.
func (h *CheckinHandler) Manual(c *gin.Context) {
	var req models.ManualCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}
	guestID, err := uuid.Parse(strings.TrimSpace(req.GuestID))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidGuestID, "Invalid guest id")
		return
	}
	outcome, err := h.service.ManualCheckIn(c.Request.Context(), guestID, currentEvent(c), scannerMeta(c, req.ScannerDevice))
	if err != nil {
		respondInternal(c, err)
		return
	}
	writeOutcome(c, outcome)
}

func (h *CheckinHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Attendance(c.Request.Context(), currentEvent(c).ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	respondOK(c, http.StatusOK, "Attendance statistics", stats)
}

// Search finds guests for manual check-in by name, email or phone.
func (h *CheckinHandler) Search(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if len([]rune(term)) < minSearchLength {
		respondError(c, http.StatusBadRequest, CodeValidation, "Search term must be at least 2 characters")
		return
	}
	guests, err := h.store.SearchGuests(c.Request.Context(), currentEvent(c).ID, term, maxSearchResults)
	if err != nil {
		respondInternal(c, err)
		return
	}
	results := make([]gin.H, 0, len(guests))
	for _, g := range guests {
		results = append(results, gin.H{
			"id":              g.ID,
			"name":            g.Name,
			"email":           g.Email,
			"phone":           g.Phone,
			"invitation_type": g.InvitationType,
			"is_checked_in":   g.IsCheckedIn,
			"checked_in_at":   g.CheckedInAt,
			"has_qr_code":     g.HasQRToken(),
		})
	}
	respondOK(c, http.StatusOK, "Search results", gin.H{"guests": results, "count": len(results)})
}

// Live streams the event's updates as Server-Sent Events until the client
// disconnects. A "ping" event is sent periodically so proxies keep the
// connection open.
func (h *CheckinHandler) Live(c *gin.Context) {
	if h.live == nil {
		respondError(c, http.StatusServiceUnavailable, CodeLiveUnavailable, "Live updates are not configured")
		return
	}
	event := currentEvent(c)
	ctx := c.Request.Context()

	updates, closeFn, err := h.live.Subscribe(ctx, event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	defer func() {
		if err := closeFn(); err != nil {
			h.logger.WarnContext(ctx, "failed to close live subscription", "event_id", event.ID, "error", err)
		}
	}()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"event_id": event.ID})
	c.Stream(func(io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(u.Type, u)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", gin.H{"time": t.UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func writeOutcome(c *gin.Context, o checkin.Outcome) {
	switch o.Kind {
	case checkin.KindSuccess:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"code":    "CHECKED_IN",
			"message": "Check-in successful",
			"data":    gin.H{"guest": o.Guest},
		})
	case checkin.KindAlreadyCheckedIn:
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"code":    "ALREADY_CHECKED_IN",
			"message": "This guest has already checked in",
			"data":    gin.H{"guest": o.Guest},
		})
	case checkin.KindExpired:
		respondError(c, http.StatusBadRequest, "EXPIRED", "QR code has expired")
	case checkin.KindWrongEvent:
		respondError(c, http.StatusBadRequest, "WRONG_EVENT", "QR code does not belong to this event")
	case checkin.KindNoQRCode:
		respondError(c, http.StatusBadRequest, CodeNoQRCode, "No QR code has been generated for this guest")
	case checkin.KindGuestNotFound:
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "Guest not found")
	default:
		respondError(c, http.StatusBadRequest, "INVALID_QR_CODE", "Invalid QR code")
	}
}
