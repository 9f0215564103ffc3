// Package export renders guest lists, attendance and QR codes as downloadable files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"

	"qrcheckin-backend/models"
)

// TimeLayout is used for every timestamp written into an export.
const TimeLayout = "2006-01-02 15:04:05"

// bom lets spreadsheet tools detect UTF-8.
const bom = "\ufeff"

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Filename builds an attachment name such as "guests-Summer_Gala-1718200000000.csv".
func Filename(prefix, eventName, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d.%s", prefix, unsafeFilename.ReplaceAllString(eventName, "_"), now.UnixMilli(), ext)
}

// GuestListCSV writes every guest in creation order. includeQR adds the
// token and check-in columns.
func GuestListCSV(w io.Writer, guests []models.Guest, includeQR bool, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	header := []string{"Name", "Email", "Phone", "Type", "Status", "Added"}
	if includeQR {
		header = append(header, "QR_Code_Issued", "Checked_In_At", "Checked_In_By")
	}

	sorted := make([]models.Guest, len(guests))
	copy(sorted, guests)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	rows := make([][]string, 0, len(sorted))
	for _, g := range sorted {
		status := "Pending"
		if g.IsCheckedIn {
			status = "Present"
		}
		row := []string{g.Name, deref(g.Email), deref(g.Phone), string(g.InvitationType), status, formatTime(g.CreatedAt, loc)}
		if includeQR {
			issued := "No"
			if g.HasQRToken() {
				issued = "Yes"
			}
			row = append(row, issued, formatTimePtr(g.CheckedInAt, loc), deref(g.CheckedInBy))
		}
		rows = append(rows, row)
	}
	return writeCSV(w, header, rows)
}

// AttendanceCSV writes one row per successful check-in.
func AttendanceCSV(w io.Writer, records []models.AttendanceRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	header := []string{"Name", "Email", "Phone", "Type", "Arrival", "Scanner", "Scanner_Origin"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.GuestName, r.Email, r.Phone, string(r.InvitationType),
			formatTime(r.CheckedInAt, loc), r.ScannerDevice, r.ScannerOrigin,
		})
	}
	return writeCSV(w, header, rows)
}

// AttendanceFromGuests derives attendance records from guest state. It backs
// the attendance export when no successful audit rows exist, for instance
// after a data import.
func AttendanceFromGuests(guests []models.Guest) []models.AttendanceRecord {
	var records []models.AttendanceRecord
	for _, g := range guests {
		if !g.IsCheckedIn {
			continue
		}
		r := models.AttendanceRecord{
			GuestName:      g.Name,
			Email:          deref(g.Email),
			Phone:          deref(g.Phone),
			InvitationType: g.InvitationType,
			ScannerDevice:  deref(g.CheckedInBy),
		}
		if g.CheckedInAt != nil {
			r.CheckedInAt = *g.CheckedInAt
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CheckedInAt.Before(records[j].CheckedInAt) })
	return records
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimeLayout)
}

func formatTimePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return formatTime(*t, loc)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
