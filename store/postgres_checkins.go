package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"qrcheckin-backend/models"
)

func (p *Postgres) Append(ctx context.Context, c *models.CheckIn) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	err := p.db.QueryRow(ctx, `
		INSERT INTO checkins (id, event_id, guest_id, scan_time, scanner_device, scanner_origin, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, c.ID, c.EventID, c.GuestID, c.ScanTime, c.ScannerDevice, c.ScannerOrigin, c.Status, c.Notes).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert checkin: %w", err)
	}
	return nil
}

// CountCheckIns counts attempts scanned at or after since. No statuses means all statuses.
func (p *Postgres) CountCheckIns(ctx context.Context, eventID uuid.UUID, since time.Time, statuses ...models.CheckInStatus) (int, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	var n int
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM checkins
		WHERE event_id = $1 AND scan_time >= $2 AND (cardinality($3::text[]) = 0 OR status = ANY($3))
	`, eventID, since, names).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count checkins: %w", err)
	}
	return n, nil
}

func (p *Postgres) CheckInTimesSince(ctx context.Context, eventID uuid.UUID, since time.Time) ([]time.Time, error) {
	rows, err := p.db.Query(ctx, `
		SELECT scan_time FROM checkins
		WHERE event_id = $1 AND status = 'success' AND scan_time >= $2
	`, eventID, since)
	if err != nil {
		return nil, fmt.Errorf("select checkin times: %w", err)
	}
	defer rows.Close()
	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan checkin time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (p *Postgres) RecentCheckIns(ctx context.Context, eventID uuid.UUID, limit int) ([]models.RecentCheckIn, error) {
	rows, err := p.db.Query(ctx, `
		SELECT g.name, g.invitation_type, c.scan_time, c.scanner_device
		FROM checkins c
		JOIN guests g ON g.id = c.guest_id
		WHERE c.event_id = $1 AND c.status = 'success'
		ORDER BY c.scan_time DESC
		LIMIT $2
	`, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent checkins: %w", err)
	}
	defer rows.Close()
	recent := []models.RecentCheckIn{}
	for rows.Next() {
		var r models.RecentCheckIn
		if err := rows.Scan(&r.GuestName, &r.InvitationType, &r.ScanTime, &r.ScannerDevice); err != nil {
			return nil, fmt.Errorf("scan recent checkin: %w", err)
		}
		recent = append(recent, r)
	}
	return recent, rows.Err()
}

func (p *Postgres) AttendanceRecords(ctx context.Context, eventID uuid.UUID) ([]models.AttendanceRecord, error) {
	rows, err := p.db.Query(ctx, `
		SELECT g.name, COALESCE(g.email, ''), COALESCE(g.phone, ''), g.invitation_type,
		       c.scan_time, c.scanner_device, c.scanner_origin
		FROM checkins c
		JOIN guests g ON g.id = c.guest_id
		WHERE c.event_id = $1 AND c.status = 'success'
		ORDER BY c.scan_time
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("select attendance: %w", err)
	}
	defer rows.Close()
	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		err := rows.Scan(&r.GuestName, &r.Email, &r.Phone, &r.InvitationType, &r.CheckedInAt, &r.ScannerDevice, &r.ScannerOrigin)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
