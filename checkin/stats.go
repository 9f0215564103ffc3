package checkin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"qrcheckin-backend/models"
)

const (
	recentCheckInsLimit = 10
	hourlyWindow        = 24 * time.Hour
	scanErrorWindow     = time.Hour
)

// StatsStore is the read side used by StatsService.
type StatsStore interface {
	CountGuests(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error)
	CountGuestsByType(ctx context.Context, eventID uuid.UUID) ([]models.TypeCount, error)
	CheckInTimesSince(ctx context.Context, eventID uuid.UUID, since time.Time) ([]time.Time, error)
	RecentCheckIns(ctx context.Context, eventID uuid.UUID, limit int) ([]models.RecentCheckIn, error)
	CountCheckIns(ctx context.Context, eventID uuid.UUID, since time.Time, statuses ...models.CheckInStatus) (int, error)
}

type StatsService struct {
	store StatsStore
	loc   *time.Location
	now   func() time.Time
}

// NewStats builds a StatsService that buckets hourly counts in loc (UTC when nil).
func NewStats(store StatsStore, loc *time.Location, now func() time.Time) (*StatsService, error) {
	if store == nil {
		return nil, errors.New("stats store is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &StatsService{store: store, loc: loc, now: now}, nil
}

// Attendance gathers the live dashboard figures for an event. The underlying
// queries are independent and run concurrently.
func (s *StatsService) Attendance(ctx context.Context, eventID uuid.UUID) (*models.AttendanceStats, error) {
	now := s.now()
	stats := &models.AttendanceStats{LastUpdated: now.UTC()}
	var (
		counts models.GuestCounts
		times  []time.Time
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = s.store.CountGuests(ctx, eventID)
		return wrap("count guests", err)
	})
	g.Go(func() error {
		var err error
		stats.ByType, err = s.store.CountGuestsByType(ctx, eventID)
		return wrap("count guests by type", err)
	})
	g.Go(func() error {
		var err error
		times, err = s.store.CheckInTimesSince(ctx, eventID, now.Add(-hourlyWindow))
		return wrap("hourly check-ins", err)
	})
	g.Go(func() error {
		var err error
		stats.RecentCheckIns, err = s.store.RecentCheckIns(ctx, eventID, recentCheckInsLimit)
		return wrap("recent check-ins", err)
	})
	g.Go(func() error {
		var err error
		stats.ScanErrors, err = s.store.CountCheckIns(ctx, eventID, now.Add(-scanErrorWindow),
			models.CheckInInvalid, models.CheckInExpired, models.CheckInDuplicate)
		return wrap("scan errors", err)
	})
	g.Go(func() error {
		var err error
		stats.SuccessfulScans, err = s.store.CountCheckIns(ctx, eventID, time.Time{}, models.CheckInSuccess)
		return wrap("successful scans", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.TotalGuests = counts.Total
	stats.CheckedIn = counts.CheckedIn
	stats.Pending = counts.Pending
	stats.AttendanceRate = AttendanceRate(counts.CheckedIn, counts.Total)
	stats.CheckinsByHour = HourlyCounts(times, s.loc)
	if stats.ByType == nil {
		stats.ByType = []models.TypeCount{}
	}
	if stats.RecentCheckIns == nil {
		stats.RecentCheckIns = []models.RecentCheckIn{}
	}
	return stats, nil
}

// AttendanceRate is the rounded percentage of checked-in guests.
func AttendanceRate(checkedIn, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(checkedIn) / float64(total) * 100))
}

// HourlyCounts buckets times by local hour of day in loc. Only hours with
// check-ins are returned, in hour order, labelled "0h" through "23h".
func HourlyCounts(times []time.Time, loc *time.Location) []models.HourCount {
	byHour := make(map[int]int)
	for _, t := range times {
		byHour[t.In(loc).Hour()]++
	}
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	counts := make([]models.HourCount, 0, len(hours))
	for _, h := range hours {
		counts = append(counts, models.HourCount{Hour: fmt.Sprintf("%dh", h), Count: byHour[h]})
	}
	return counts
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
