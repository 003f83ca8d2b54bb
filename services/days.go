// services/days.go
package services

import (
	"time"

	"roi-distribution-system/models"
)

const dayLayout = "2006-01-02"

// DayStart truncates t to UTC midnight.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DayKey is the YYYY-MM-DD UTC day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// IsEligible reports whether d may be credited for the day containing target:
// never processed, or last processed on a strictly earlier UTC day.
func IsEligible(d *models.Deposit, target time.Time) bool {
	if d.LastROIProcessedAt == nil {
		return true
	}
	return DayStart(*d.LastROIProcessedAt).Before(DayStart(target))
}

// DaysMissed counts whole UTC days between the deposit's anchor (last
// processed day, or creation day) and today.
func DaysMissed(d *models.Deposit, now time.Time) (anchor time.Time, days int) {
	anchor = DayStart(d.CreatedAt)
	if d.LastROIProcessedAt != nil {
		anchor = DayStart(*d.LastROIProcessedAt)
	}
	today := DayStart(now)
	if !today.After(anchor) {
		return anchor, 0
	}
	return anchor, int(today.Sub(anchor) / (24 * time.Hour))
}
