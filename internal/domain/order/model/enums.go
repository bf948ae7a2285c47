// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strings"

// OrderType separates one-shot orders from multi-day subscriptions.
type OrderType string

const (
	OrderTypeUnknown   OrderType = "UNKNOWN"
	OrderTypeRegular   OrderType = "REGULAR"
	OrderTypeRecurring OrderType = "RECURRING_PACKAGE"
)

// PackageType is the granularity of a recurring order.
type PackageType string

const (
	PackageNone    PackageType = "NONE"
	PackageDaily   PackageType = "DAILY"
	PackageWeekly  PackageType = "WEEKLY"
	PackageMonthly PackageType = "MONTHLY"
	PackageUnknown PackageType = "UNKNOWN"
)

// Days returns the nominal length of the package in calendar days.
func (p PackageType) Days() int {
	switch p {
	case PackageDaily:
		return 1
	case PackageWeekly:
		return 7
	case PackageMonthly:
		return 30
	default:
		return 0
	}
}

// Repeats reports whether the processing/delivery steps recur once per day.
func (p PackageType) Repeats() bool {
	return p == PackageWeekly || p == PackageMonthly
}

// Status is the order's lifecycle stage as reported by the backend.
type Status string

const (
	StatusUnknown         Status = "UNKNOWN"
	StatusWaitingApproval Status = "WAITING_APPROVAL"
	StatusProcessing      Status = "PROCESSING"
	StatusDelivery        Status = "DELIVERY"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// IsTerminal returns true if no further transition is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Known reports whether s is one of the closed set of statuses.
func (s Status) Known() bool {
	switch s {
	case StatusWaitingApproval, StatusProcessing, StatusDelivery, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Wire spellings accepted at the document boundary. The backend writes the
// Indonesian labels; the English ones appear in fixtures and admin tooling.
var (
	orderTypeAliases = map[string]OrderType{
		"reguler":           OrderTypeRegular,
		"regular":           OrderTypeRegular,
		"rantangan":         OrderTypeRecurring,
		"recurring":         OrderTypeRecurring,
		"recurring_package": OrderTypeRecurring,
		"recurringpackage":  OrderTypeRecurring,
	}

	packageTypeAliases = map[string]PackageType{
		"":         PackageNone,
		"none":     PackageNone,
		"-":        PackageNone,
		"harian":   PackageDaily,
		"daily":    PackageDaily,
		"mingguan": PackageWeekly,
		"weekly":   PackageWeekly,
		"bulanan":  PackageMonthly,
		"monthly":  PackageMonthly,
	}

	statusAliases = map[string]Status{
		"menunggu persetujuan": StatusWaitingApproval,
		"waiting approval":     StatusWaitingApproval,
		"waiting_approval":     StatusWaitingApproval,
		"waitingapproval":      StatusWaitingApproval,
		"diproses":             StatusProcessing,
		"processing":           StatusProcessing,
		"dikirim":              StatusDelivery,
		"pengiriman":           StatusDelivery,
		"delivery":             StatusDelivery,
		"selesai":              StatusCompleted,
		"completed":            StatusCompleted,
		"dibatalkan":           StatusCancelled,
		"cancelled":            StatusCancelled,
		"canceled":             StatusCancelled,
	}
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseOrderType decodes a wire value. Unrecognized input yields OrderTypeUnknown.
func ParseOrderType(s string) OrderType {
	if t, ok := orderTypeAliases[normalize(s)]; ok {
		return t
	}
	switch OrderType(s) {
	case OrderTypeRegular, OrderTypeRecurring:
		return OrderType(s)
	}
	return OrderTypeUnknown
}

// ParsePackageType decodes a wire value. Empty input means no package.
func ParsePackageType(s string) PackageType {
	if p, ok := packageTypeAliases[normalize(s)]; ok {
		return p
	}
	switch PackageType(s) {
	case PackageNone, PackageDaily, PackageWeekly, PackageMonthly:
		return PackageType(s)
	}
	return PackageUnknown
}

// ParseStatus decodes a wire value. Unrecognized input yields StatusUnknown.
func ParseStatus(s string) Status {
	if st, ok := statusAliases[normalize(s)]; ok {
		return st
	}
	if st := Status(s); st.Known() {
		return st
	}
	return StatusUnknown
}
