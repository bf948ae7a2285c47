// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/ordertrack/internal/domain/order/model"
)

// Guard further restricts an edge using the order snapshot.
type Guard func(o *model.Order) (bool, string)

// Transition is a single allowed edge in the order state machine.
type Transition struct {
	From  model.Status
	To    model.Status
	Guard Guard
}

// Decision records whether a transition is allowed and why it is forbidden.
type Decision struct {
	Allowed bool
	Reason  string
}

var transitionsTable = []Transition{
	// Forward path
	{From: model.StatusWaitingApproval, To: model.StatusProcessing},
	{From: model.StatusProcessing, To: model.StatusDelivery},
	{From: model.StatusDelivery, To: model.StatusCompleted, Guard: packageExhausted},

	// Next daily cycle of a repeating package
	{From: model.StatusDelivery, To: model.StatusProcessing, Guard: nextCycleAvailable},

	// Cancellation from any non-terminal state
	{From: model.StatusWaitingApproval, To: model.StatusCancelled},
	{From: model.StatusProcessing, To: model.StatusCancelled},
	{From: model.StatusDelivery, To: model.StatusCancelled},
}

func packageExhausted(o *model.Order) (bool, string) {
	if o == nil || !o.IsRecurring() || !o.PackageType.Repeats() {
		return true, ""
	}
	total := TotalDays(o.StartDate, o.EndDate)
	if len(o.DailyDeliveryLogs) < total {
		return false, fmt.Sprintf("package has %d of %d days delivered", len(o.DailyDeliveryLogs), total)
	}
	return true, ""
}

func nextCycleAvailable(o *model.Order) (bool, string) {
	if o == nil || !o.IsRecurring() || !o.PackageType.Repeats() {
		return false, "only repeating packages start a new daily cycle"
	}
	total := TotalDays(o.StartDate, o.EndDate)
	if len(o.DailyDeliveryLogs) >= total {
		return false, "package days exhausted"
	}
	return true, ""
}

// DecisionFor evaluates the from→to edge against the table for order o.
// o may be nil, in which case guards see no package context.
func DecisionFor(o *model.Order, from, to model.Status) Decision {
	if from == to {
		return Decision{Allowed: true, Reason: "no change"}
	}
	if from.IsTerminal() {
		return Decision{Reason: fmt.Sprintf("%s is terminal", from)}
	}
	if !to.Known() {
		return Decision{Reason: fmt.Sprintf("unknown target status %q", to)}
	}
	for _, tr := range transitionsTable {
		if tr.From != from || tr.To != to {
			continue
		}
		if tr.Guard != nil {
			if ok, reason := tr.Guard(o); !ok {
				return Decision{Reason: reason}
			}
		}
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("no edge %s -> %s", from, to)}
}
