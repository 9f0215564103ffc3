// Package checkin decides guest check-in transitions and records one audit row per attempt.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrcheckin-backend/metrics"
	"qrcheckin-backend/models"
	"qrcheckin-backend/notify"
	"qrcheckin-backend/qrtoken"
	"qrcheckin-backend/store"
)

const (
	defaultScannerLabel = "QR Scanner"
	defaultManualLabel  = "Manual"
)

// GuestStore reads guests and performs the conditional check-in write.
type GuestStore interface {
	FindGuest(ctx context.Context, guestID, eventID uuid.UUID) (*models.Guest, error)
	// MarkCheckedIn must be atomic: it returns true only for the call that
	// flipped the guest from not checked in to checked in.
	MarkCheckedIn(ctx context.Context, guestID, eventID uuid.UUID, checkedInBy string, at time.Time) (bool, error)
}

// AuditStore appends check-in attempts.
type AuditStore interface {
	Append(ctx context.Context, entry *models.CheckIn) error
}

type TokenVerifier interface {
	Verify(token string) (qrtoken.Payload, error)
}

type Service struct {
	guests    GuestStore
	audits    AuditStore
	tokens    TokenVerifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher notify.Publisher
	now       func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(guests GuestStore, audits AuditStore, tokens TokenVerifier, opts ...Option) (*Service, error) {
	if guests == nil {
		return nil, errors.New("guest store is required")
	}
	if audits == nil {
		return nil, errors.New("audit store is required")
	}
	if tokens == nil {
		return nil, errors.New("token verifier is required")
	}
	s := &Service{
		guests:    guests,
		audits:    audits,
		tokens:    tokens,
		logger:    slog.Default(),
		publisher: notify.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// attempt carries the per-path labels through the shared transition.
type attempt struct {
	event       *models.Event
	method      Method
	device      string
	origin      string
	checkedInBy string
}

func (a attempt) entry(status models.CheckInStatus, guestID *uuid.UUID, at time.Time, notes string) *models.CheckIn {
	return &models.CheckIn{
		EventID:       a.event.ID,
		GuestID:       guestID,
		ScanTime:      at,
		ScannerDevice: a.device,
		ScannerOrigin: a.origin,
		Status:        status,
		Notes:         truncate(notes, models.MaxNotesLength),
	}
}

// VerifyAndCheckIn checks a scanned token against event and checks the guest in.
// The error return is reserved for storage failures on the guest read or state
// write; every other result, including rejections, is an Outcome.
func (s *Service) VerifyAndCheckIn(ctx context.Context, token string, event *models.Event, meta ScannerMeta) (Outcome, error) {
	start := time.Now()
	defer s.observe(start)

	device := truncate(meta.Device, models.MaxScannerDeviceLength)
	if device == "" {
		device = defaultScannerLabel
	}
	a := attempt{
		event:       event,
		method:      MethodScan,
		device:      device,
		origin:      meta.Origin,
		checkedInBy: device,
	}

	token = strings.TrimSpace(token)
	payload, err := s.tokens.Verify(token)
	switch {
	case errors.Is(err, qrtoken.ErrExpired):
		guestID := parseGuestID(payload.GuestID)
		s.record(ctx, a, a.entry(models.CheckInExpired, guestID, s.now(), "QR code expired"))
		return Outcome{Kind: KindExpired, GuestID: guestID}, nil
	case err != nil:
		reason := qrtoken.ReasonCode(err)
		s.record(ctx, a, a.entry(models.CheckInInvalid, nil, s.now(), reason))
		return Outcome{Kind: KindInvalid, Reason: reason}, nil
	}

	if payload.EventID != event.ID.String() {
		s.record(ctx, a, a.entry(models.CheckInInvalid, nil, s.now(), "QR code issued for another event"))
		return Outcome{Kind: KindWrongEvent}, nil
	}

	guestID := parseGuestID(payload.GuestID)
	if guestID == nil {
		s.record(ctx, a, a.entry(models.CheckInInvalid, nil, s.now(), "QR code names an unknown guest"))
		return Outcome{Kind: KindGuestNotFound}, nil
	}

	guest, err := s.guests.FindGuest(ctx, *guestID, event.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, s.fail(ctx, a, "find guest", err)
	}
	if err != nil || !guest.TokenMatches(token) {
		s.record(ctx, a, a.entry(models.CheckInInvalid, guestID, s.now(), "guest not found or QR code superseded"))
		return Outcome{Kind: KindGuestNotFound}, nil
	}

	return s.transition(ctx, a, guest)
}

// ManualCheckIn checks a guest in by id. Only guests with an issued QR code qualify.
func (s *Service) ManualCheckIn(ctx context.Context, guestID uuid.UUID, event *models.Event, meta ScannerMeta) (Outcome, error) {
	start := time.Now()
	defer s.observe(start)

	device := truncate(meta.Device, models.MaxScannerDeviceLength)
	if device == "" {
		device = defaultManualLabel
	}
	a := attempt{
		event:       event,
		method:      MethodManual,
		device:      device + " (manual)",
		origin:      meta.Origin,
		checkedInBy: device + " (manual check-in)",
	}

	guest, err := s.guests.FindGuest(ctx, guestID, event.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.record(ctx, a, a.entry(models.CheckInInvalid, &guestID, s.now(), "manual check-in: guest not found"))
		return Outcome{Kind: KindGuestNotFound}, nil
	}
	if err != nil {
		return Outcome{}, s.fail(ctx, a, "find guest", err)
	}

	if !guest.HasQRToken() {
		s.record(ctx, a, a.entry(models.CheckInInvalid, &guestID, s.now(), "manual check-in: no QR code issued"))
		return Outcome{Kind: KindNoQRCode}, nil
	}

	return s.transition(ctx, a, guest)
}

// transition runs the duplicate check and the conditional write shared by both paths.
func (s *Service) transition(ctx context.Context, a attempt, guest *models.Guest) (Outcome, error) {
	if guest.IsCheckedIn {
		return s.duplicate(ctx, a, guest), nil
	}

	at := s.now()
	ok, err := s.guests.MarkCheckedIn(ctx, guest.ID, a.event.ID, a.checkedInBy, at)
	if err != nil {
		return Outcome{}, s.fail(ctx, a, "mark guest checked in", err)
	}
	if !ok {
		// Another attempt won the race; report what it wrote.
		current, err := s.guests.FindGuest(ctx, guest.ID, a.event.ID)
		if errors.Is(err, store.ErrNotFound) {
			s.record(ctx, a, a.entry(models.CheckInInvalid, &guest.ID, s.now(), "guest removed during check-in"))
			return Outcome{Kind: KindGuestNotFound}, nil
		}
		if err != nil {
			return Outcome{}, s.fail(ctx, a, "reload guest", err)
		}
		return s.duplicate(ctx, a, current), nil
	}

	guest.IsCheckedIn = true
	guest.CheckedInAt = &at
	guest.CheckedInBy = &a.checkedInBy
	snapshot := guest.Snapshot()

	// The state change is committed; the audit row and live update must not be
	// lost to a client disconnect.
	ctx = context.WithoutCancel(ctx)
	s.record(ctx, a, a.entry(models.CheckInSuccess, &guest.ID, at, ""))
	s.publish(ctx, a.event.ID, snapshot, at)

	s.logger.InfoContext(ctx, "guest checked in",
		"event_id", a.event.ID,
		"guest_id", guest.ID,
		"method", a.method,
		"checked_in_by", a.checkedInBy,
	)
	return Outcome{Kind: KindSuccess, Guest: snapshot}, nil
}

func (s *Service) duplicate(ctx context.Context, a attempt, guest *models.Guest) Outcome {
	notes := "already checked in"
	if guest.CheckedInAt != nil {
		notes = "already checked in at " + guest.CheckedInAt.UTC().Format(time.RFC3339)
	}
	s.record(ctx, a, a.entry(models.CheckInDuplicate, &guest.ID, s.now(), notes))
	return Outcome{Kind: KindAlreadyCheckedIn, Guest: guest.Snapshot()}
}

// record appends the audit row. Failures are logged and counted, never returned.
func (s *Service) record(ctx context.Context, a attempt, entry *models.CheckIn) {
	if s.metrics != nil {
		s.metrics.IncrementAttempt(string(entry.Status), string(a.method))
	}
	if err := s.audits.Append(ctx, entry); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAuditFailure()
		}
		s.logger.WarnContext(ctx, "failed to write check-in audit entry",
			"event_id", entry.EventID,
			"guest_id", entry.GuestID,
			"status", entry.Status,
			"error", err,
		)
	}
}

func (s *Service) publish(ctx context.Context, eventID uuid.UUID, snapshot *models.GuestSnapshot, at time.Time) {
	update, err := notify.NewUpdate(notify.TypeCheckIn, eventID, snapshot, at)
	if err == nil {
		err = s.publisher.Publish(ctx, update)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish check-in update", "event_id", eventID, "error", err)
	}
}

func (s *Service) fail(ctx context.Context, a attempt, op string, err error) error {
	s.logger.ErrorContext(ctx, "check-in storage failure",
		"event_id", a.event.ID,
		"method", a.method,
		"op", op,
		"error", err,
	)
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) observe(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCheckIn(start)
	}
}

func parseGuestID(raw string) *uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
