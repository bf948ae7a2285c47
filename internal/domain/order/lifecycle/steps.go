// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle contains the pure order status rules: the rendered step
// sequence, step indices, recurring-package day accounting and the
// transition table. Nothing here performs I/O or reads the wall clock
// unless the function name says so.
package lifecycle

import "github.com/ManuGH/ordertrack/internal/domain/order/model"

// Fixed ordinals shared by every step variant, so index comparisons stay
// valid regardless of order type.
const (
	OrdinalWaitingApproval = 0
	OrdinalProcessing      = 1
	OrdinalDelivery        = 2
	OrdinalCompleted       = 3

	StepCount = 4
)

var (
	regularSteps = [StepCount]model.StatusStep{
		{Key: model.StatusWaitingApproval, Label: "Waiting for approval", Ordinal: OrdinalWaitingApproval},
		{Key: model.StatusProcessing, Label: "Processing", Ordinal: OrdinalProcessing},
		{Key: model.StatusDelivery, Label: "On delivery", Ordinal: OrdinalDelivery},
		{Key: model.StatusCompleted, Label: "Completed", Ordinal: OrdinalCompleted},
	}

	dailyPackageSteps = [StepCount]model.StatusStep{
		{Key: model.StatusWaitingApproval, Label: "Accepted by seller", Ordinal: OrdinalWaitingApproval},
		{Key: model.StatusProcessing, Label: "Cooking", Ordinal: OrdinalProcessing},
		{Key: model.StatusDelivery, Label: "Track delivery", Ordinal: OrdinalDelivery},
		{Key: model.StatusCompleted, Label: "Review", Ordinal: OrdinalCompleted},
	}

	repeatingPackageSteps = [StepCount]model.StatusStep{
		{Key: model.StatusWaitingApproval, Label: "Package approval", Ordinal: OrdinalWaitingApproval},
		{Key: model.StatusProcessing, Label: "Today's cooking", Ordinal: OrdinalProcessing, Repeats: true},
		{Key: model.StatusDelivery, Label: "Today's delivery", Ordinal: OrdinalDelivery, Repeats: true},
		{Key: model.StatusCompleted, Label: "Package finished", Ordinal: OrdinalCompleted},
	}
)

// StatusSteps returns the four-step sequence for an order variant.
// Unrecognized combinations fall back to the regular sequence.
func StatusSteps(orderType model.OrderType, packageType model.PackageType) [StepCount]model.StatusStep {
	if orderType != model.OrderTypeRecurring {
		return regularSteps
	}
	switch packageType {
	case model.PackageDaily:
		return dailyPackageSteps
	case model.PackageWeekly, model.PackageMonthly:
		return repeatingPackageSteps
	default:
		return regularSteps
	}
}

// StepIndex maps a status to its ordinal. Cancelled and unknown statuses
// return -1. Recurrence for weekly/monthly packages shows up only as
// repeated observations of ordinals 1 and 2, never as extra ordinals.
func StepIndex(status model.Status, _ model.OrderType, _ model.PackageType) int {
	switch status {
	case model.StatusWaitingApproval:
		return OrdinalWaitingApproval
	case model.StatusProcessing:
		return OrdinalProcessing
	case model.StatusDelivery:
		return OrdinalDelivery
	case model.StatusCompleted:
		return OrdinalCompleted
	default:
		return -1
	}
}
