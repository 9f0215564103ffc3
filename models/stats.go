package models

import "time"

type TypeCount struct {
	Type  InvitationType `json:"type"`
	Count int            `json:"count"`
}

type HourCount struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

type RecentCheckIn struct {
	GuestName      string         `json:"guest_name"`
	InvitationType InvitationType `json:"invitation_type"`
	ScanTime       time.Time      `json:"scan_time"`
	ScannerDevice  string         `json:"scanner_device"`
}

// GuestCounts is the quick summary attached to guest listings.
type GuestCounts struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checked_in"`
	Pending   int `json:"pending"`
}

type AttendanceStats struct {
	TotalGuests     int             `json:"total_guests"`
	CheckedIn       int             `json:"checked_in"`
	Pending         int             `json:"pending"`
	AttendanceRate  int             `json:"attendance_rate"`
	ByType          []TypeCount     `json:"by_type"`
	CheckinsByHour  []HourCount     `json:"checkins_by_hour"`
	RecentCheckIns  []RecentCheckIn `json:"recent_checkins"`
	ScanErrors      int             `json:"scan_errors"`
	SuccessfulScans int             `json:"successful_scans"`
	LastUpdated     time.Time       `json:"last_updated"`
}
