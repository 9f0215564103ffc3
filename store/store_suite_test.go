package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"qrcheckin-backend/models"
)

// backend is the method set shared by Memory and Postgres.
type backend interface {
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
	MarkCheckedIn(ctx context.Context, guestID, eventID uuid.UUID, checkedInBy string, at time.Time) (bool, error)
	CountGuests(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error)
	CountGuestsByType(ctx context.Context, eventID uuid.UUID) ([]models.TypeCount, error)

	Append(ctx context.Context, c *models.CheckIn) error
	CountCheckIns(ctx context.Context, eventID uuid.UUID, since time.Time, statuses ...models.CheckInStatus) (int, error)
	CheckInTimesSince(ctx context.Context, eventID uuid.UUID, since time.Time) ([]time.Time, error)
	RecentCheckIns(ctx context.Context, eventID uuid.UUID, limit int) ([]models.RecentCheckIn, error)
	AttendanceRecords(ctx context.Context, eventID uuid.UUID) ([]models.AttendanceRecord, error)
}

var (
	_ backend = (*Memory)(nil)
	_ backend = (*Postgres)(nil)
)

// StoreSuite runs the same behavioural checks against every backend.
type StoreSuite struct {
	suite.Suite
	newStore func() backend
	store    backend
	ctx      context.Context
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func strPtr(v string) *string { return &v }

func (s *StoreSuite) createEvent(code string) *models.Event {
	e := &models.Event{
		Name:      "Launch party",
		Date:      time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second),
		Location:  "Warehouse 9",
		AdminCode: code,
		CreatedBy: "host@example.com",
		IsActive:  true,
		MaxGuests: models.DefaultMaxGuests,
	}
	s.Require().NoError(s.store.CreateEvent(s.ctx, e))
	return e
}

func (s *StoreSuite) createGuest(eventID uuid.UUID, name string, email *string, t models.InvitationType) *models.Guest {
	g := &models.Guest{EventID: eventID, Name: name, Email: email, InvitationType: t}
	s.Require().NoError(s.store.CreateGuest(s.ctx, g))
	return g
}

func (s *StoreSuite) TestEvents() {
	s.Run("admin code is unique", func() {
		s.createEvent("ABCD1234")
		err := s.store.CreateEvent(s.ctx, &models.Event{
			Name: "Other", Date: time.Now(), Location: "x", AdminCode: "ABCD1234",
			CreatedBy: "a@b.c", IsActive: true, MaxGuests: 10,
		})
		s.ErrorIs(err, ErrConflict)
	})

	s.Run("inactive events are hidden", func() {
		e := s.createEvent("HIDE0001")
		found, err := s.store.FindEventByAdminCode(s.ctx, "HIDE0001")
		s.Require().NoError(err)
		s.Equal(e.ID, found.ID)

		s.Require().NoError(s.store.DeactivateEvent(s.ctx, e.ID))
		_, err = s.store.FindEventByAdminCode(s.ctx, "HIDE0001")
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("update", func() {
		e := s.createEvent("UPDT0001")
		e.Name = "Renamed"
		e.MaxGuests = 5
		s.Require().NoError(s.store.UpdateEvent(s.ctx, e))

		found, err := s.store.FindEventByAdminCode(s.ctx, "UPDT0001")
		s.Require().NoError(err)
		s.Equal("Renamed", found.Name)
		s.Equal(5, found.MaxGuests)
	})
}

func (s *StoreSuite) TestGuestEmailUniquePerEvent() {
	e1 := s.createEvent("EMAIL001")
	e2 := s.createEvent("EMAIL002")
	s.createGuest(e1.ID, "Ada", strPtr("ada@example.com"), models.InvitationVIP)

	err := s.store.CreateGuest(s.ctx, &models.Guest{
		EventID: e1.ID, Name: "Ada again", Email: strPtr("ada@example.com"), InvitationType: models.InvitationStandard,
	})
	s.ErrorIs(err, ErrConflict)

	s.createGuest(e2.ID, "Ada", strPtr("ada@example.com"), models.InvitationVIP)
	s.createGuest(e1.ID, "No email 1", nil, models.InvitationStandard)
	s.createGuest(e1.ID, "No email 2", nil, models.InvitationStandard)

	existing, err := s.store.ExistingEmails(s.ctx, e1.ID, []string{"ada@example.com", "new@example.com"})
	s.Require().NoError(err)
	s.Equal(map[string]bool{"ada@example.com": true}, existing)
}

func (s *StoreSuite) TestCreateGuests_AllOrNothing() {
	e := s.createEvent("BATCH001")
	s.createGuest(e.ID, "Existing", strPtr("taken@example.com"), models.InvitationStandard)

	err := s.store.CreateGuests(s.ctx, []*models.Guest{
		{EventID: e.ID, Name: "Fresh", Email: strPtr("fresh@example.com"), InvitationType: models.InvitationStandard},
		{EventID: e.ID, Name: "Clash", Email: strPtr("taken@example.com"), InvitationType: models.InvitationStandard},
	})
	s.ErrorIs(err, ErrConflict)

	counts, err := s.store.CountGuests(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, counts.Total)
}

func (s *StoreSuite) TestFindGuestScopedToEvent() {
	e1 := s.createEvent("SCOPE001")
	e2 := s.createEvent("SCOPE002")
	g := s.createGuest(e1.ID, "Ada", nil, models.InvitationStandard)

	_, err := s.store.FindGuest(s.ctx, g.ID, e2.ID)
	s.ErrorIs(err, ErrNotFound)

	found, err := s.store.FindGuest(s.ctx, g.ID, e1.ID)
	s.Require().NoError(err)
	s.Equal("Ada", found.Name)
	s.False(found.HasQRToken())
}

func (s *StoreSuite) TestMarkCheckedIn() {
	e := s.createEvent("MARK0001")
	g := s.createGuest(e.ID, "Ada", nil, models.InvitationStandard)
	at := time.Now().UTC().Truncate(time.Millisecond)

	ok, err := s.store.MarkCheckedIn(s.ctx, g.ID, e.ID, "Door 1", at)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.MarkCheckedIn(s.ctx, g.ID, e.ID, "Door 2", at.Add(time.Minute))
	s.Require().NoError(err)
	s.False(ok, "a checked-in guest stays checked in")

	found, err := s.store.FindGuest(s.ctx, g.ID, e.ID)
	s.Require().NoError(err)
	s.True(found.IsCheckedIn)
	s.Require().NotNil(found.CheckedInAt)
	s.WithinDuration(at, *found.CheckedInAt, time.Millisecond)
	s.Equal("Door 1", *found.CheckedInBy)

	ok, err = s.store.MarkCheckedIn(s.ctx, uuid.New(), e.ID, "Door 1", at)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StoreSuite) TestMarkCheckedIn_ConcurrentSingleWinner() {
	e := s.createEvent("RACE0001")
	g := s.createGuest(e.ID, "Ada", nil, models.InvitationStandard)
	const goroutines = 25

	var wg sync.WaitGroup
	var wins, losses atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.MarkCheckedIn(s.ctx, g.ID, e.ID, "Door", time.Now())
			switch {
			case err != nil:
			case ok:
				wins.Add(1)
			default:
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one transition should succeed")
	s.Equal(int32(goroutines-1), losses.Load())
}

func (s *StoreSuite) TestUpdateAndDeleteGuest() {
	e := s.createEvent("EDIT0001")
	g := s.createGuest(e.ID, "Ada", strPtr("ada@example.com"), models.InvitationStandard)
	other := s.createGuest(e.ID, "Bob", strPtr("bob@example.com"), models.InvitationStandard)

	other.Email = strPtr("ada@example.com")
	s.ErrorIs(s.store.UpdateGuest(s.ctx, other), ErrConflict)

	g.Name = "Ada L."
	g.InvitationType = models.InvitationVIP
	s.Require().NoError(s.store.UpdateGuest(s.ctx, g))
	found, err := s.store.FindGuest(s.ctx, g.ID, e.ID)
	s.Require().NoError(err)
	s.Equal("Ada L.", found.Name)
	s.Equal(models.InvitationVIP, found.InvitationType)

	s.Require().NoError(s.store.DeleteGuest(s.ctx, g.ID, e.ID))
	s.ErrorIs(s.store.DeleteGuest(s.ctx, g.ID, e.ID), ErrNotFound)
}

func (s *StoreSuite) TestListAndSearchGuests() {
	e := s.createEvent("LIST0001")
	s.createGuest(e.ID, "Ada Lovelace", strPtr("ada@example.com"), models.InvitationVIP)
	s.createGuest(e.ID, "Alan Turing", strPtr("alan@example.com"), models.InvitationStandard)
	grace := s.createGuest(e.ID, "Grace Hopper", strPtr("grace@navy.mil"), models.InvitationStaff)
	_, err := s.store.MarkCheckedIn(s.ctx, grace.ID, e.ID, "Door", time.Now())
	s.Require().NoError(err)

	page, err := s.store.ListGuests(s.ctx, models.GuestFilter{EventID: e.ID, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Guests, 2)

	page, err = s.store.ListGuests(s.ctx, models.GuestFilter{EventID: e.ID, Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Len(page.Guests, 1)

	checkedIn := true
	page, err = s.store.ListGuests(s.ctx, models.GuestFilter{EventID: e.ID, CheckedIn: &checkedIn})
	s.Require().NoError(err)
	s.Require().Len(page.Guests, 1)
	s.Equal("Grace Hopper", page.Guests[0].Name)

	page, err = s.store.ListGuests(s.ctx, models.GuestFilter{EventID: e.ID, InvitationType: models.InvitationVIP})
	s.Require().NoError(err)
	s.Equal(1, page.Total)

	found, err := s.store.SearchGuests(s.ctx, e.ID, "EXAMPLE", 20)
	s.Require().NoError(err)
	s.Require().Len(found, 2)
	s.Equal("Ada Lovelace", found[0].Name)

	found, err = s.store.SearchGuests(s.ctx, e.ID, "100%", 20)
	s.Require().NoError(err)
	s.Empty(found)

	counts, err := s.store.CountGuests(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(models.GuestCounts{Total: 3, CheckedIn: 1, Pending: 2}, counts)

	byType, err := s.store.CountGuestsByType(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Len(byType, 3)
}

func (s *StoreSuite) TestTokenIssueSelection() {
	e := s.createEvent("TOKN0001")
	a := s.createGuest(e.ID, "Ada", nil, models.InvitationVIP)
	s.createGuest(e.ID, "Bob", nil, models.InvitationStandard)

	s.Require().NoError(s.store.SetGuestToken(s.ctx, a.ID, e.ID, "token-a", time.Now()))
	s.ErrorIs(s.store.SetGuestToken(s.ctx, uuid.New(), e.ID, "token-x", time.Now()), ErrNotFound)

	pending, err := s.store.GuestsForTokenIssue(s.ctx, e.ID, false, 100)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("Bob", pending[0].Name)

	all, err := s.store.GuestsForTokenIssue(s.ctx, e.ID, true, 100)
	s.Require().NoError(err)
	s.Len(all, 2)

	withToken, err := s.store.GuestsWithToken(s.ctx, e.ID, "")
	s.Require().NoError(err)
	s.Require().Len(withToken, 1)
	s.True(withToken[0].TokenMatches("token-a"))

	withToken, err = s.store.GuestsWithToken(s.ctx, e.ID, models.InvitationStaff)
	s.Require().NoError(err)
	s.Empty(withToken)
}

func (s *StoreSuite) TestCheckInQueries() {
	e := s.createEvent("AUDT0001")
	g := s.createGuest(e.ID, "Ada", strPtr("ada@example.com"), models.InvitationVIP)
	now := time.Now().UTC().Truncate(time.Millisecond)

	entries := []models.CheckIn{
		{EventID: e.ID, GuestID: &g.ID, ScanTime: now.Add(-2 * time.Hour), Status: models.CheckInSuccess, ScannerDevice: "Door 1"},
		{EventID: e.ID, GuestID: &g.ID, ScanTime: now.Add(-30 * time.Minute), Status: models.CheckInDuplicate},
		{EventID: e.ID, ScanTime: now.Add(-10 * time.Minute), Status: models.CheckInInvalid, Notes: "INVALID_SIGNATURE"},
		{EventID: e.ID, GuestID: &g.ID, ScanTime: now.Add(-5 * time.Minute), Status: models.CheckInExpired},
	}
	for i := range entries {
		s.Require().NoError(s.store.Append(s.ctx, &entries[i]))
		s.NotEqual(uuid.Nil, entries[i].ID)
	}

	n, err := s.store.CountCheckIns(s.ctx, e.ID, now.Add(-time.Hour),
		models.CheckInInvalid, models.CheckInExpired, models.CheckInDuplicate)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.CountCheckIns(s.ctx, e.ID, time.Time{}, models.CheckInSuccess)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.store.CountCheckIns(s.ctx, e.ID, time.Time{})
	s.Require().NoError(err)
	s.Equal(4, n)

	times, err := s.store.CheckInTimesSince(s.ctx, e.ID, now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Len(times, 1)

	recent, err := s.store.RecentCheckIns(s.ctx, e.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal("Ada", recent[0].GuestName)
	s.Equal("Door 1", recent[0].ScannerDevice)

	records, err := s.store.AttendanceRecords(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("ada@example.com", records[0].Email)
	s.Equal(models.InvitationVIP, records[0].InvitationType)
}
