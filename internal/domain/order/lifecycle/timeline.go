// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"time"

	"github.com/ManuGH/ordertrack/internal/domain/order/model"
)

// StepState is the visual state of one step in the progress indicator.
type StepState string

const (
	StepCompleted StepState = "completed"
	StepActive    StepState = "active"
	StepPending   StepState = "pending"
)

// StepView pairs a step with its derived visual state.
type StepView struct {
	model.StatusStep
	State StepState `json:"state"`
}

// Summary is the tracking view model derived from one order snapshot.
type Summary struct {
	OrderID       string       `json:"orderId"`
	Status        model.Status `json:"status"`
	CurrentIndex  int          `json:"currentIndex"`
	Steps         []StepView   `json:"steps"`
	Cancelled     bool         `json:"cancelled"`
	Terminal      bool         `json:"terminal"`
	Recurring     bool         `json:"recurring"`
	EndDate       *time.Time   `json:"endDate,omitempty"`
	TotalDays     int          `json:"totalDays,omitempty"`
	DaysRemaining int          `json:"daysRemaining,omitempty"`
	Cycle         int          `json:"cycle,omitempty"`
	CanStart      bool         `json:"canStart"`
}

// Timeline marks each step completed, active or pending by comparing its
// ordinal with the current index. A completed order has every step done.
func Timeline(o *model.Order) []StepView {
	steps := StatusSteps(o.OrderType, o.PackageType)
	current := StepIndex(o.StatusProgress, o.OrderType, o.PackageType)

	out := make([]StepView, 0, len(steps))
	for _, s := range steps {
		state := StepPending
		switch {
		case current < 0:
		case o.StatusProgress == model.StatusCompleted, s.Ordinal < current:
			state = StepCompleted
		case s.Ordinal == current:
			state = StepActive
		}
		out = append(out, StepView{StatusStep: s, State: state})
	}
	return out
}

// Summarize builds the tracking view model for o as of now.
func Summarize(o *model.Order, now time.Time) Summary {
	s := Summary{
		OrderID:      o.ID,
		Status:       o.StatusProgress,
		CurrentIndex: StepIndex(o.StatusProgress, o.OrderType, o.PackageType),
		Steps:        Timeline(o),
		Cancelled:    o.StatusProgress == model.StatusCancelled,
		Terminal:     o.StatusProgress.IsTerminal(),
		Recurring:    o.IsRecurring(),
		CanStart:     true,
	}
	if !s.Recurring {
		return s
	}

	// EndDate falls back to the day implied by the package length; the day
	// counts below still follow the stored bounds only.
	switch {
	case o.EndDate != nil:
		end := *o.EndDate
		s.EndDate = &end
	case o.StartDate != nil:
		if end, ok := EndDateFor(*o.StartDate, o.PackageType); ok {
			s.EndDate = &end
		}
	}
	s.TotalDays = TotalDays(o.StartDate, o.EndDate)
	s.DaysRemaining = DaysRemaining(o.StartDate, o.EndDate, o.DailyDeliveryLogs, now)
	s.CanStart = CanStartToday(o.StartDate, now)
	if o.PackageType.Repeats() && s.TotalDays > 0 {
		s.Cycle = min(len(o.DailyDeliveryLogs)+1, s.TotalDays)
	}
	return s
}
