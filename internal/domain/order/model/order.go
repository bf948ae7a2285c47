// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the order data observed by the tracking core.
// Orders are authored server-side; this package only decodes and validates.
package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingID           = errors.New("order: missing id")
	ErrUnknownOrderType    = errors.New("order: unknown order type")
	ErrUnknownStatus       = errors.New("order: unknown status progress")
	ErrMissingPackageDates = errors.New("order: recurring package without start/end date")
	ErrInvertedDates       = errors.New("order: end date before start date")
	ErrTooManyDeliveryLogs = errors.New("order: more delivery logs than package days")
)

// LatLng is a stored location. Absent locations are nil pointers on Order.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DailyDeliveryLog confirms that one day's cycle of a recurring package was delivered.
type DailyDeliveryLog struct {
	DeliveryDate  time.Time  `json:"deliveryDate"`
	DeliveryTime  string     `json:"deliveryTime"`
	CompletedTime *time.Time `json:"completedTime,omitempty"`
}

// StatusStep is one rendered stage of the progress indicator.
type StatusStep struct {
	Key     Status `json:"key"`
	Label   string `json:"label"`
	Ordinal int    `json:"ordinal"`
	// Repeats marks steps that recur once per package day.
	Repeats bool `json:"repeats,omitempty"`
}

// Order is a decoded snapshot of a remote order document.
type Order struct {
	ID                string
	BuyerID           string
	SellerID          string
	OrderType         OrderType
	PackageType       PackageType
	StatusProgress    Status
	StartDate         *time.Time
	EndDate           *time.Time
	DailyDeliveryLogs []DailyDeliveryLog
	SellerLocation    *LatLng
	BuyerLocation     *LatLng
	Rating            *int
	CreatedAt         time.Time
}

// IsRecurring reports whether the order is a multi-day package.
func (o *Order) IsRecurring() bool {
	return o.OrderType == OrderTypeRecurring
}

// HasRoute reports whether both endpoints of a delivery route are known.
func (o *Order) HasRoute() bool {
	return o.SellerLocation != nil && o.BuyerLocation != nil
}

// IsRated distinguishes "not rated" from a zero rating.
func (o *Order) IsRated() bool {
	return o.Rating != nil
}

// Validate checks the invariants the tracking core relies on.
func (o *Order) Validate() error {
	var errs []error
	if o.ID == "" {
		errs = append(errs, ErrMissingID)
	}
	if o.OrderType == OrderTypeUnknown || o.OrderType == "" {
		errs = append(errs, ErrUnknownOrderType)
	}
	if !o.StatusProgress.Known() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStatus, o.StatusProgress))
	}
	if o.IsRecurring() {
		switch {
		case o.StartDate == nil || o.EndDate == nil:
			errs = append(errs, ErrMissingPackageDates)
		case CalendarDay(*o.EndDate).Before(CalendarDay(*o.StartDate)):
			errs = append(errs, ErrInvertedDates)
		default:
			total := InclusiveDays(*o.StartDate, *o.EndDate)
			if len(o.DailyDeliveryLogs) > total {
				errs = append(errs, fmt.Errorf("%w: %d logs for %d days", ErrTooManyDeliveryLogs, len(o.DailyDeliveryLogs), total))
			}
		}
	}
	return errors.Join(errs...)
}

// CalendarDay zeroes the time of day, keeping t's calendar date.
// The result is in UTC so that day arithmetic is exact.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole calendar days from a to b (negative if b is earlier).
func DaysBetween(a, b time.Time) int {
	return int(CalendarDay(b).Sub(CalendarDay(a)).Hours() / 24)
}

// InclusiveDays counts calendar days from start to end, both included.
func InclusiveDays(start, end time.Time) int {
	return DaysBetween(start, end) + 1
}
