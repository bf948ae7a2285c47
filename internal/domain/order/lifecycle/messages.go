// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"fmt"

	"github.com/ManuGH/ordertrack/internal/domain/order/model"
)

// NotificationTitle is the title of every status transition notification.
const NotificationTitle = "Order status updated"

var transitionBodies = map[model.Status]string{
	model.StatusWaitingApproval: "Your order is awaiting seller approval",
	model.StatusProcessing:      "Your order is being prepared",
	model.StatusDelivery:        "Your order is on the way",
	model.StatusCompleted:       "Your order is finished",
	model.StatusCancelled:       "Your order was cancelled",
}

// TransitionMessage renders the user-facing notification for old→new.
// Only the new status selects the text; unknown statuses get a generic body.
func TransitionMessage(_, newStatus model.Status) (title, body string) {
	if b, ok := transitionBodies[newStatus]; ok {
		return NotificationTitle, b
	}
	return NotificationTitle, fmt.Sprintf("Order status changed to %s", newStatus)
}
