// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"time"

	"github.com/ManuGH/ordertrack/internal/domain/order/model"
)

// TotalDays is the inclusive day count of a package; 0 if a bound is missing.
func TotalDays(start, end *time.Time) int {
	if start == nil || end == nil {
		return 0
	}
	n := model.InclusiveDays(*start, *end)
	if n < 0 {
		return 0
	}
	return n
}

// DaysRemaining counts package days not yet covered by a confirmed delivery
// log. Before the start date the full count is returned. The result follows
// confirmed deliveries rather than elapsed days, so a missed day does not
// shrink it; duplicate log entries do.
func DaysRemaining(start, end *time.Time, logs []model.DailyDeliveryLog, now time.Time) int {
	if start == nil || end == nil {
		return 0
	}
	total := TotalDays(start, end)
	if model.CalendarDay(now).Before(model.CalendarDay(*start)) {
		return total
	}
	if remaining := total - len(logs); remaining > 0 {
		return remaining
	}
	return 0
}

// CalculateDaysRemaining is DaysRemaining evaluated against the local clock.
func CalculateDaysRemaining(start, end *time.Time, logs []model.DailyDeliveryLog) int {
	return DaysRemaining(start, end, logs, time.Now())
}

// CanStartToday reports whether the package start date has been reached.
// A missing start date never blocks.
func CanStartToday(start *time.Time, now time.Time) bool {
	if start == nil {
		return true
	}
	return !model.CalendarDay(now).Before(model.CalendarDay(*start))
}

// EndDateFor derives the last package day from its start and granularity.
// ok is false for package types without a fixed length.
func EndDateFor(start time.Time, packageType model.PackageType) (time.Time, bool) {
	days := packageType.Days()
	if days == 0 {
		return time.Time{}, false
	}
	return model.CalendarDay(start).AddDate(0, 0, days-1), true
}
