// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across the service.
const (
	OrderIDKey     = "order.id"
	OrderStatusKey = "order.status"
	OldStatusKey   = "order.old_status"

	RouteOriginKey      = "route.origin"
	RouteDestinationKey = "route.destination"
	RoutePointsKey      = "route.points"
	RouteCacheHitKey    = "route.cache_hit"

	SinkKey = "notify.sink"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// TransitionAttributes describes a status change on an order.
func TransitionAttributes(orderID, oldStatus, newStatus string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(OrderIDKey, orderID),
		attribute.String(OrderStatusKey, newStatus),
	}
	if oldStatus != "" {
		attrs = append(attrs, attribute.String(OldStatusKey, oldStatus))
	}
	return attrs
}

// RouteAttributes describes a directions lookup. Coordinates are passed
// pre-formatted as "lat,lng".
func RouteAttributes(origin, destination string, cacheHit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RouteOriginKey, origin),
		attribute.String(RouteDestinationKey, destination),
		attribute.Bool(RouteCacheHitKey, cacheHit),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
