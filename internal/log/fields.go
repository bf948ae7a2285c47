// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldOrderID       = "order_id"
	FieldUserID        = "user_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldHandle        = "handle"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"
	FieldSink      = "sink"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Transport fields
	FieldPath     = "path"
	FieldTopic    = "topic"
	FieldEndpoint = "endpoint"
)
