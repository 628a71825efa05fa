package ereport

import "time"

// LogicalDay returns the report day bucket for now, as UTC midnight. The day
// rolls over at startHour (UTC) instead of midnight: before that hour the
// previous calendar day is still current.
func LogicalDay(now time.Time, startHour int) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if now.Hour() < startHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// PreviousDay returns the logical day before the current one.
func PreviousDay(now time.Time, startHour int) time.Time {
	return LogicalDay(now, startHour).AddDate(0, 0, -1)
}
