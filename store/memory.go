package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrcheckin-backend/models"
)

// Memory is an in-process store with the same semantics as Postgres.
// It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	events   map[uuid.UUID]models.Event
	guests   map[uuid.UUID]models.Guest
	checkins []models.CheckIn
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		events: make(map[uuid.UUID]models.Event),
		guests: make(map[uuid.UUID]models.Guest),
		now:    time.Now,
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

// Events

func (m *Memory) CreateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events {
		if existing.AdminCode == e.AdminCode {
			return ErrConflict
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := m.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	m.events[e.ID] = *e
	return nil
}

func (m *Memory) FindEventByAdminCode(_ context.Context, code string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.AdminCode == code && e.IsActive {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateEvent(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = m.now()
	m.events[e.ID] = *e
	return nil
}

func (m *Memory) DeactivateEvent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = false
	e.UpdatedAt = m.now()
	m.events[id] = e
	return nil
}

// Guests

func (m *Memory) CreateGuest(ctx context.Context, g *models.Guest) error {
	return m.CreateGuests(ctx, []*models.Guest{g})
}

// CreateGuests inserts all guests or none.
func (m *Memory) CreateGuests(_ context.Context, guests []*models.Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, g := range guests {
		if g.Email == nil {
			continue
		}
		key := g.EventID.String() + "|" + *g.Email
		if seen[key] || m.emailTakenLocked(g.EventID, *g.Email, uuid.Nil) {
			return ErrConflict
		}
		seen[key] = true
	}

	now := m.now()
	for _, g := range guests {
		if g.ID == uuid.Nil {
			g.ID = uuid.New()
		}
		g.CreatedAt = now
		g.UpdatedAt = now
		m.guests[g.ID] = *g
	}
	return nil
}

func (m *Memory) FindGuest(_ context.Context, guestID, eventID uuid.UUID) (*models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guests[guestID]
	if !ok || g.EventID != eventID {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *Memory) ListGuests(_ context.Context, f models.GuestFilter) (*models.GuestPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.Guest
	for _, g := range m.guests {
		if g.EventID != f.EventID {
			continue
		}
		if f.InvitationType != "" && g.InvitationType != f.InvitationType {
			continue
		}
		if f.CheckedIn != nil && g.IsCheckedIn != *f.CheckedIn {
			continue
		}
		if f.Search != "" && !guestMatches(g, f.Search) {
			continue
		}
		matched = append(matched, g)
	}
	sortGuests(matched, func(a, b models.Guest) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Name < b.Name
	})

	page := &models.GuestPage{Total: len(matched), Guests: []models.Guest{}}
	if f.Offset >= len(matched) {
		return page, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	page.Guests = matched
	return page, nil
}

func (m *Memory) ExistingEmails(_ context.Context, eventID uuid.UUID, emails []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := make(map[string]bool)
	for _, g := range m.guests {
		if g.EventID == eventID && g.Email != nil && slices.Contains(emails, *g.Email) {
			found[*g.Email] = true
		}
	}
	return found, nil
}

func (m *Memory) UpdateGuest(_ context.Context, g *models.Guest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.guests[g.ID]
	if !ok || existing.EventID != g.EventID {
		return ErrNotFound
	}
	if g.Email != nil && m.emailTakenLocked(g.EventID, *g.Email, g.ID) {
		return ErrConflict
	}
	// Check-in state is owned by MarkCheckedIn.
	g.IsCheckedIn = existing.IsCheckedIn
	g.CheckedInAt = existing.CheckedInAt
	g.CheckedInBy = existing.CheckedInBy
	g.QRToken = existing.QRToken
	g.QRIssuedAt = existing.QRIssuedAt
	g.UpdatedAt = m.now()
	m.guests[g.ID] = *g
	return nil
}

func (m *Memory) DeleteGuest(_ context.Context, guestID, eventID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[guestID]
	if !ok || g.EventID != eventID {
		return ErrNotFound
	}
	delete(m.guests, guestID)
	return nil
}

func (m *Memory) SearchGuests(_ context.Context, eventID uuid.UUID, term string, limit int) ([]models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []models.Guest
	for _, g := range m.guests {
		if g.EventID == eventID && guestMatches(g, term) {
			matched = append(matched, g)
		}
	}
	sortGuests(matched, func(a, b models.Guest) bool { return a.Name < b.Name })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) GuestsForTokenIssue(_ context.Context, eventID uuid.UUID, regenerate bool, limit int) ([]models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []models.Guest
	for _, g := range m.guests {
		if g.EventID == eventID && (regenerate || !g.HasQRToken()) {
			matched = append(matched, g)
		}
	}
	sortGuests(matched, func(a, b models.Guest) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Name < b.Name
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) SetGuestToken(_ context.Context, guestID, eventID uuid.UUID, token string, issuedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[guestID]
	if !ok || g.EventID != eventID {
		return ErrNotFound
	}
	g.QRToken = &token
	g.QRIssuedAt = &issuedAt
	g.UpdatedAt = m.now()
	m.guests[guestID] = g
	return nil
}

func (m *Memory) GuestsWithToken(_ context.Context, eventID uuid.UUID, invitationType models.InvitationType) ([]models.Guest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []models.Guest
	for _, g := range m.guests {
		if g.EventID != eventID || !g.HasQRToken() {
			continue
		}
		if invitationType != "" && g.InvitationType != invitationType {
			continue
		}
		matched = append(matched, g)
	}
	sortGuests(matched, func(a, b models.Guest) bool { return a.Name < b.Name })
	return matched, nil
}

// MarkCheckedIn flips is_checked_in under the write lock, so exactly one caller wins.
func (m *Memory) MarkCheckedIn(_ context.Context, guestID, eventID uuid.UUID, checkedInBy string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[guestID]
	if !ok || g.EventID != eventID || g.IsCheckedIn {
		return false, nil
	}
	g.IsCheckedIn = true
	g.CheckedInAt = &at
	g.CheckedInBy = &checkedInBy
	g.UpdatedAt = at
	m.guests[guestID] = g
	return true, nil
}

func (m *Memory) CountGuests(_ context.Context, eventID uuid.UUID) (models.GuestCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var counts models.GuestCounts
	for _, g := range m.guests {
		if g.EventID != eventID {
			continue
		}
		counts.Total++
		if g.IsCheckedIn {
			counts.CheckedIn++
		}
	}
	counts.Pending = counts.Total - counts.CheckedIn
	return counts, nil
}

func (m *Memory) CountGuestsByType(_ context.Context, eventID uuid.UUID) ([]models.TypeCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byType := make(map[models.InvitationType]int)
	for _, g := range m.guests {
		if g.EventID == eventID {
			byType[g.InvitationType]++
		}
	}
	counts := make([]models.TypeCount, 0, len(byType))
	for t, n := range byType {
		counts = append(counts, models.TypeCount{Type: t, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Type < counts[j].Type })
	return counts, nil
}

// Check-ins

func (m *Memory) Append(_ context.Context, c *models.CheckIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = m.now()
	m.checkins = append(m.checkins, *c)
	return nil
}

// CheckIns returns a copy of the audit rows for an event in insertion order.
func (m *Memory) CheckIns(eventID uuid.UUID) []models.CheckIn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CheckIn
	for _, c := range m.checkins {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out
}

func (m *Memory) CountCheckIns(_ context.Context, eventID uuid.UUID, since time.Time, statuses ...models.CheckInStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.checkins {
		if c.EventID != eventID || c.ScanTime.Before(since) {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, c.Status) {
			continue
		}
		n++
	}
	return n, nil
}

func (m *Memory) CheckInTimesSince(_ context.Context, eventID uuid.UUID, since time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var times []time.Time
	for _, c := range m.checkins {
		if c.EventID == eventID && c.Status == models.CheckInSuccess && !c.ScanTime.Before(since) {
			times = append(times, c.ScanTime)
		}
	}
	return times, nil
}

func (m *Memory) RecentCheckIns(_ context.Context, eventID uuid.UUID, limit int) ([]models.RecentCheckIn, error) {
	records := m.successfulAttempts(eventID)
	sort.SliceStable(records, func(i, j int) bool { return records[i].CheckedInAt.After(records[j].CheckedInAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	recent := make([]models.RecentCheckIn, 0, len(records))
	for _, r := range records {
		recent = append(recent, models.RecentCheckIn{
			GuestName:      r.GuestName,
			InvitationType: r.InvitationType,
			ScanTime:       r.CheckedInAt,
			ScannerDevice:  r.ScannerDevice,
		})
	}
	return recent, nil
}

func (m *Memory) AttendanceRecords(_ context.Context, eventID uuid.UUID) ([]models.AttendanceRecord, error) {
	records := m.successfulAttempts(eventID)
	sort.SliceStable(records, func(i, j int) bool { return records[i].CheckedInAt.Before(records[j].CheckedInAt) })
	return records, nil
}

func (m *Memory) successfulAttempts(eventID uuid.UUID) []models.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []models.AttendanceRecord
	for _, c := range m.checkins {
		if c.EventID != eventID || c.Status != models.CheckInSuccess || c.GuestID == nil {
			continue
		}
		g, ok := m.guests[*c.GuestID]
		if !ok {
			continue
		}
		records = append(records, models.AttendanceRecord{
			GuestName:      g.Name,
			Email:          deref(g.Email),
			Phone:          deref(g.Phone),
			InvitationType: g.InvitationType,
			CheckedInAt:    c.ScanTime,
			ScannerDevice:  c.ScannerDevice,
			ScannerOrigin:  c.ScannerOrigin,
		})
	}
	return records
}

func (m *Memory) emailTakenLocked(eventID uuid.UUID, email string, except uuid.UUID) bool {
	for _, g := range m.guests {
		if g.EventID == eventID && g.ID != except && g.Email != nil && *g.Email == email {
			return true
		}
	}
	return false
}

func guestMatches(g models.Guest, term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(g.Name), term) ||
		strings.Contains(strings.ToLower(deref(g.Email)), term) ||
		strings.Contains(strings.ToLower(deref(g.Phone)), term)
}

func sortGuests(guests []models.Guest, less func(a, b models.Guest) bool) {
	sort.SliceStable(guests, func(i, j int) bool { return less(guests[i], guests[j]) })
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
