package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"qrcheckin-backend/checkin"
	"qrcheckin-backend/models"
)

// ReportData is everything the event report summarizes.
type ReportData struct {
	Event     *models.Event
	Guests    []models.Guest
	Successes []models.AttendanceRecord
	// Failures counts unsuccessful attempts by status.
	Failures    map[models.CheckInStatus]int
	GeneratedAt time.Time
}

// Report writes a plain-text summary of an event and its check-in activity.
func Report(w io.Writer, d ReportData, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	e := d.Event

	b.WriteString("EVENT REPORT\n============\n\n")
	section(&b, "General")
	fmt.Fprintf(&b, "Event: %s\n", e.Name)
	fmt.Fprintf(&b, "Date: %s\n", formatTime(e.Date, loc))
	fmt.Fprintf(&b, "Location: %s\n", e.Location)
	fmt.Fprintf(&b, "Created by: %s\n", e.CreatedBy)
	fmt.Fprintf(&b, "Created at: %s\n\n", formatTime(e.CreatedAt, loc))

	type tally struct{ total, checkedIn int }
	byType := make(map[models.InvitationType]*tally)
	checkedIn := 0
	for _, g := range d.Guests {
		t := byType[g.InvitationType]
		if t == nil {
			t = &tally{}
			byType[g.InvitationType] = t
		}
		t.total++
		if g.IsCheckedIn {
			t.checkedIn++
			checkedIn++
		}
	}

	section(&b, "Attendance")
	fmt.Fprintf(&b, "Guests: %d\n", len(d.Guests))
	fmt.Fprintf(&b, "Present: %d\n", checkedIn)
	fmt.Fprintf(&b, "Attendance rate: %d%%\n", checkin.AttendanceRate(checkedIn, len(d.Guests)))
	fmt.Fprintf(&b, "Pending: %d\n\n", len(d.Guests)-checkedIn)

	section(&b, "By invitation type")
	for _, typ := range models.InvitationTypes {
		if t := byType[typ]; t != nil {
			fmt.Fprintf(&b, "%s: %d/%d (%d%%)\n", typ, t.checkedIn, t.total, checkin.AttendanceRate(t.checkedIn, t.total))
		}
	}
	b.WriteString("\n")

	failures := 0
	for _, n := range d.Failures {
		failures += n
	}
	section(&b, "Check-in activity")
	fmt.Fprintf(&b, "Successful scans: %d\n", len(d.Successes))
	fmt.Fprintf(&b, "Failed attempts: %d\n", failures)
	if len(d.Successes) > 0 {
		first, last := d.Successes[0].CheckedInAt, d.Successes[0].CheckedInAt
		times := make([]time.Time, 0, len(d.Successes))
		for _, s := range d.Successes {
			if s.CheckedInAt.Before(first) {
				first = s.CheckedInAt
			}
			if s.CheckedInAt.After(last) {
				last = s.CheckedInAt
			}
			times = append(times, s.CheckedInAt)
		}
		fmt.Fprintf(&b, "First check-in: %s\n", formatTime(first, loc))
		fmt.Fprintf(&b, "Last check-in: %s\n\n", formatTime(last, loc))

		section(&b, "Arrivals by hour")
		for _, h := range checkin.HourlyCounts(times, loc) {
			fmt.Fprintf(&b, "%s: %d\n", h.Hour, h.Count)
		}
	}

	if failures > 0 {
		b.WriteString("\n")
		section(&b, "Failed attempts by status")
		for _, status := range []models.CheckInStatus{models.CheckInDuplicate, models.CheckInInvalid, models.CheckInExpired} {
			if n := d.Failures[status]; n > 0 {
				fmt.Fprintf(&b, "%s: %d\n", status, n)
			}
		}
	}

	fmt.Fprintf(&b, "\nGenerated at: %s\n", formatTime(d.GeneratedAt, loc))
	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, title string) {
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", len(title)))
	b.WriteString("\n")
}
