package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"qrcheckin-backend/models"
	"qrcheckin-backend/qrtoken"
)

// ErrNoQRCodes is returned when none of the selected guests has a token.
var ErrNoQRCodes = errors.New("no qr codes to export")

var (
	nonNameChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	spaces       = regexp.MustCompile(`\s+`)
)

// QRCodesZIP writes one PNG per guest holding a token plus a README.txt
// describing the archive. Guests without a token are skipped.
func QRCodesZIP(w io.Writer, event *models.Event, guests []models.Guest, filter string, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	withToken := make([]models.Guest, 0, len(guests))
	for _, g := range guests {
		if g.HasQRToken() {
			withToken = append(withToken, g)
		}
	}
	if len(withToken) == 0 {
		return ErrNoQRCodes
	}

	zw := zip.NewWriter(w)
	byType := make(map[models.InvitationType]int)
	for i, g := range withToken {
		png, err := qrtoken.PNG(*g.QRToken, qrtoken.DefaultImageSize)
		if err != nil {
			return fmt.Errorf("guest %s: %w", g.ID, err)
		}
		f, err := zw.Create(QRFilename(i+1, g))
		if err != nil {
			return err
		}
		if _, err := f.Write(png); err != nil {
			return err
		}
		byType[g.InvitationType]++
	}

	readme, err := zw.Create("README.txt")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(readme, archiveReadme(event, len(withToken), byType, filter, now, loc)); err != nil {
		return err
	}
	return zw.Close()
}

// QRFilename names a guest's image inside the archive: NNN_<name>_<type>.png.
func QRFilename(index int, g models.Guest) string {
	name := strings.TrimSpace(nonNameChars.ReplaceAllString(g.Name, ""))
	name = spaces.ReplaceAllString(name, "_")
	if name == "" {
		name = "guest"
	}
	return fmt.Sprintf("%03d_%s_%s.png", index, name, g.InvitationType)
}

func archiveReadme(event *models.Event, total int, byType map[models.InvitationType]int, filter string, now time.Time, loc *time.Location) string {
	if filter == "" || filter == "all" {
		filter = "all guests"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Event\n=====\n\n")
	fmt.Fprintf(&b, "Name: %s\nDate: %s\nLocation: %s\n\n", event.Name, formatTime(event.Date, loc), event.Location)
	fmt.Fprintf(&b, "Export\n======\n\n")
	fmt.Fprintf(&b, "QR codes: %d\nExported at: %s\nSelection: %s\n\n", total, formatTime(now, loc), filter)
	fmt.Fprintf(&b, "By invitation type:\n")
	for _, t := range models.InvitationTypes {
		if n := byType[t]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", t, n)
		}
	}
	fmt.Fprintf(&b, "\nEach file is named [number]_[name]_[type].png.\n")
	fmt.Fprintf(&b, "A code is bound to this event and guest; regenerating codes invalidates earlier ones.\n")
	return b.String()
}
