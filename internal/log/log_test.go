// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
		id   string
	}{
		{name: "request id nil ctx", ctx: nil, set: ContextWithRequestID, get: RequestIDFromContext, id: "req-1"},
		{name: "correlation id", ctx: context.Background(), set: ContextWithCorrelationID, get: CorrelationIDFromContext, id: "corr-1"},
		{name: "order id", ctx: context.Background(), set: ContextWithOrderID, get: OrderIDFromContext, id: "o1"},
		{name: "empty id", ctx: context.Background(), set: ContextWithOrderID, get: OrderIDFromContext, id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.set(tt.ctx, tt.id)
			assert.Equal(t, tt.id, tt.get(ctx))
		})
	}
}

func TestFromContextMissingValues(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(nil)) //nolint:staticcheck
	assert.Empty(t, OrderIDFromContext(context.Background()))
	assert.Empty(t, OrderIDFromContext(context.WithValue(context.Background(), orderIDKey, 42)))
}

func TestWithContext_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := ContextWithOrderID(ContextWithRequestID(context.Background(), "req-9"), "o9")
	logger := WithContext(ctx, l)
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-9", entry[FieldRequestID])
	assert.Equal(t, "o9", entry[FieldOrderID])
	assert.NotContains(t, entry, FieldCorrelationID)
}

func TestWithContext_NoFieldsReturnsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	logger := WithContext(context.Background(), l)
	logger.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain", entry["message"])
}

func TestReplaceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	restore := Replace(zerolog.New(&buf))
	defer restore()

	l := WithComponent("realtime")
	l.Warn().Str(FieldEvent, "test.event").Msg("captured")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "realtime", entry[FieldComponent])
	assert.Equal(t, "test.event", entry[FieldEvent])
}

func TestDerive(t *testing.T) {
	var buf bytes.Buffer
	restore := Replace(zerolog.New(&buf))
	defer restore()

	l := Derive(func(c *zerolog.Context) { *c = c.Str("custom", "v") })
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"custom":"v"`)

	assert.NotPanics(t, func() {
		plain := Derive(nil)
		plain.Debug().Msg("nil builder")
	})
}

func TestSetLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	assert.True(t, SetLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.False(t, SetLevel("loud"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestFromContext_FallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())

	assert.NotNil(t, FromContext(nil)) //nolint:staticcheck
}
