package alerting

import (
	"strconv"
	"strings"
	"time"

	"integration-status-backend/internal/storage"
)

// withinBusinessHours reports whether now falls inside the rule's configured
// day-of-week set and inclusive HH:MM range, in the process-local timezone.
func withinBusinessHours(rule storage.AlertRule, now time.Time) bool {
	day := int(now.Weekday())
	if !containsDay(rule.BusinessDays, day) {
		return false
	}
	current := now.Hour()*100 + now.Minute()
	start := parseClock(rule.BusinessHoursStart)
	end := parseClock(rule.BusinessHoursEnd)
	return current >= start && current <= end
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// parseClock turns "HH:MM" into an HHMM integer for ordered comparison.
func parseClock(clock string) int {
	parts := strings.SplitN(clock, ":", 2)
	hours, _ := strconv.Atoi(parts[0])
	minutes := 0
	if len(parts) == 2 {
		minutes, _ = strconv.Atoi(parts[1])
	}
	return hours*100 + minutes
}

// inCooldown reports whether the rule triggered too recently to fire again.
func inCooldown(lastTriggered *time.Time, cooldownMinutes int, now time.Time) bool {
	if lastTriggered == nil || cooldownMinutes <= 0 {
		return false
	}
	return now.Before(lastTriggered.Add(time.Duration(cooldownMinutes) * time.Minute))
}
