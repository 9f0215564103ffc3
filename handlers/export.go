package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"qrcheckin-backend/export"
	"qrcheckin-backend/models"
)

type ExportHandler struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

func NewExportHandler(s Store, loc *time.Location, logger *slog.Logger) *ExportHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ExportHandler{store: s, loc: loc, logger: logger, now: time.Now}
}

// QRCodes downloads a ZIP of every issued QR code, optionally filtered by
// ?type=VIP|Standard|Staff.
func (h *ExportHandler) QRCodes(c *gin.Context) {
	event := currentEvent(c)
	filter := c.DefaultQuery("type", "all")
	var typ models.InvitationType
	if filter != "all" {
		var ok bool
		if typ, ok = models.ParseInvitationType(filter); !ok || filter == "" {
			respondError(c, http.StatusBadRequest, CodeValidation, "type must be all, VIP, Standard or Staff")
			return
		}
	}

	guests, err := h.store.GuestsWithToken(c.Request.Context(), event.ID, typ)
	if err != nil {
		respondInternal(c, err)
		return
	}

	var buf bytes.Buffer
	err = export.QRCodesZIP(&buf, event, guests, filter, h.now(), h.loc)
	if errors.Is(err, export.ErrNoQRCodes) {
		respondError(c, http.StatusNotFound, CodeNoQRCode, "No QR codes found, generate them first")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	h.attachment(c, "qr-codes", event, "zip", "application/zip", buf.Bytes())
}

// GuestList downloads the guest list as CSV. ?include_qr=true adds the QR and
// check-in columns.
func (h *ExportHandler) GuestList(c *gin.Context) {
	event := currentEvent(c)
	page, err := h.store.ListGuests(c.Request.Context(), models.GuestFilter{EventID: event.ID})
	if err != nil {
		respondInternal(c, err)
		return
	}
	if len(page.Guests) == 0 {
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "No guests found")
		return
	}

	var buf bytes.Buffer
	if err := export.GuestListCSV(&buf, page.Guests, c.Query("include_qr") == "true", h.loc); err != nil {
		respondInternal(c, err)
		return
	}
	h.attachment(c, "guests", event, "csv", "text/csv; charset=utf-8", buf.Bytes())
}

// Attendance downloads successful check-ins as CSV. Events whose guests were
// marked present without audit rows fall back to guest state.
func (h *ExportHandler) Attendance(c *gin.Context) {
	event := currentEvent(c)
	ctx := c.Request.Context()

	records, err := h.store.AttendanceRecords(ctx, event.ID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if len(records) == 0 {
		present := true
		page, err := h.store.ListGuests(ctx, models.GuestFilter{EventID: event.ID, CheckedIn: &present})
		if err != nil {
			respondInternal(c, err)
			return
		}
		records = export.AttendanceFromGuests(page.Guests)
	}
	if len(records) == 0 {
		respondError(c, http.StatusNotFound, CodeGuestNotFound, "No attendance data found")
		return
	}

	var buf bytes.Buffer
	if err := export.AttendanceCSV(&buf, records, h.loc); err != nil {
		respondInternal(c, err)
		return
	}
	h.attachment(c, "attendance", event, "csv", "text/csv; charset=utf-8", buf.Bytes())
}

// Report downloads a plain-text summary of the event.
func (h *ExportHandler) Report(c *gin.Context) {
	event := currentEvent(c)
	data := export.ReportData{
		Event:       event,
		Failures:    make(map[models.CheckInStatus]int),
		GeneratedAt: h.now(),
	}
	failed := []models.CheckInStatus{models.CheckInDuplicate, models.CheckInInvalid, models.CheckInExpired}
	counts := make([]int, len(failed))

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		page, err := h.store.ListGuests(ctx, models.GuestFilter{EventID: event.ID})
		if err != nil {
			return err
		}
		data.Guests = page.Guests
		return nil
	})
	g.Go(func() error {
		var err error
		data.Successes, err = h.store.AttendanceRecords(ctx, event.ID)
		return err
	})
	for i, status := range failed {
		g.Go(func() error {
			var err error
			counts[i], err = h.store.CountCheckIns(ctx, event.ID, time.Time{}, status)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		respondInternal(c, err)
		return
	}
	for i, status := range failed {
		data.Failures[status] = counts[i]
	}

	var buf bytes.Buffer
	if err := export.Report(&buf, data, h.loc); err != nil {
		respondInternal(c, err)
		return
	}
	h.attachment(c, "report", event, "txt", "text/plain; charset=utf-8", buf.Bytes())
}

func (h *ExportHandler) attachment(c *gin.Context, prefix string, event *models.Event, ext, contentType string, body []byte) {
	name := export.Filename(prefix, event.Name, ext, h.now())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, contentType, body)
	h.logger.InfoContext(c.Request.Context(), "export generated", "event_id", event.ID, "file", name, "bytes", len(body))
}
