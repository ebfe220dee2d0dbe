package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/discipline/internal/domain"
)

// IsAllowed evaluates every active zone covering now.
// Strict zones disallow every app; other zones disallow apps missing from their allow list.
// The strictest matching zone wins. No matching zone means allowed.
func IsAllowed(now time.Time, appID string, zones []domain.BlackoutZone) (allowed, strict bool) {
	allowed = true
	for _, z := range Matching(now, zones) {
		if z.StrictMode {
			return false, true
		}
		if !contains(z.AllowedApps, appID) {
			allowed = false
		}
	}
	return allowed, false
}

// Matching returns the active zones whose window contains now.
func Matching(now time.Time, zones []domain.BlackoutZone) []domain.BlackoutZone {
	var out []domain.BlackoutZone
	for _, z := range zones {
		if z.Active && Covers(z, now) {
			out = append(out, z)
		}
	}
	return out
}

// Covers reports whether now falls inside the zone's [start,end) window.
// The after-midnight part of a wrapping window belongs to the previous day's schedule.
func Covers(z domain.BlackoutZone, now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	start := z.StartHour*60 + z.StartMinute
	end := z.EndHour*60 + z.EndMinute
	today := now.Weekday()

	switch {
	case start == end:
		return hasDay(z.Days, today)
	case start < end:
		return m >= start && m < end && hasDay(z.Days, today)
	default:
		if m >= start {
			return hasDay(z.Days, today)
		}
		if m < end {
			return hasDay(z.Days, (today+6)%7)
		}
		return false
	}
}

func hasDay(days []time.Weekday, d time.Weekday) bool {
	for _, day := range days {
		if day == d {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
