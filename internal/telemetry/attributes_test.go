// SPDX-License-Identifier: MIT
package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestTransitionAttributes(t *testing.T) {
	m := attrMap(TransitionAttributes("o-1", "PROCESSING", "DELIVERY"))
	assert.Len(t, m, 3)
	assert.Equal(t, "o-1", m[OrderIDKey].AsString())
	assert.Equal(t, "DELIVERY", m[OrderStatusKey].AsString())
	assert.Equal(t, "PROCESSING", m[OldStatusKey].AsString())

	baseline := attrMap(TransitionAttributes("o-1", "", "PROCESSING"))
	assert.Len(t, baseline, 2)
	assert.NotContains(t, baseline, OldStatusKey)
}

func TestRouteAttributes(t *testing.T) {
	m := attrMap(RouteAttributes("1,2", "3,4", true))
	assert.Equal(t, "1,2", m[RouteOriginKey].AsString())
	assert.Equal(t, "3,4", m[RouteDestinationKey].AsString())
	assert.True(t, m[RouteCacheHitKey].AsBool())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes("no_route"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "no_route", m[ErrorTypeKey].AsString())
}
