// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package polyline

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestDecode_ReferenceVectors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		want    []Coordinate
	}{
		{
			name:    "published three point path",
			encoded: "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
			want: []Coordinate{
				{Latitude: 38.5, Longitude: -120.2},
				{Latitude: 40.7, Longitude: -120.95},
				{Latitude: 43.252, Longitude: -126.453},
			},
		},
		{
			name:    "first two points only",
			encoded: "_p~iF~ps|U_ulLnnqC",
			want: []Coordinate{
				{Latitude: 38.5, Longitude: -120.2},
				{Latitude: 40.7, Longitude: -120.95},
			},
		},
		{
			name:    "origin",
			encoded: "??",
			want:    []Coordinate{{Latitude: 0, Longitude: 0}},
		},
		{
			name:    "empty",
			encoded: "",
			want:    []Coordinate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.encoded)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Decode(%q) mismatch (-want +got):\n%s", tt.encoded, diff)
			}
		})
	}
}

func TestDecode_PrefixOfReferenceMatchesWithinPrecision(t *testing.T) {
	got, err := Decode("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)

	assert.InDelta(t, 38.5, got[0].Latitude, 1e-5)
	assert.InDelta(t, -120.2, got[0].Longitude, 1e-5)
	assert.InDelta(t, 40.7, got[1].Latitude, 1e-5)
	assert.InDelta(t, -120.95, got[1].Longitude, 1e-5)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "unterminated continuation", encoded: "_p~iF~ps|U_"},
		{name: "latitude without longitude", encoded: "_p~iF"},
		{name: "byte below range", encoded: "_p~iF~ps|U "},
		{name: "byte above range", encoded: "\x7f?"},
		{name: "runaway continuation", encoded: "~~~~~~~~~~~~~~~~"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.encoded)
			require.Error(t, err)
			assert.Nil(t, got, "no partial result on error")
			assert.True(t, errors.Is(err, ErrMalformed))

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.GreaterOrEqual(t, de.Offset, 0)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	path := []Coordinate{
		{Latitude: -6.2088, Longitude: 106.8456},
		{Latitude: -6.21462, Longitude: 106.84513},
		{Latitude: -6.22, Longitude: 106.8},
		{Latitude: 0, Longitude: 0},
		{Latitude: 89.99999, Longitude: -179.99999},
	}

	got, err := Decode(Encode(path))
	require.NoError(t, err)
	if diff := cmp.Diff(path, got, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_ReferenceVector(t *testing.T) {
	got := Encode([]Coordinate{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	})
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", got)
}

func TestBounds(t *testing.T) {
	_, _, ok := Bounds(nil)
	assert.False(t, ok)

	sw, ne, ok := Bounds([]Coordinate{
		{Latitude: 38.5, Longitude: -120.2},
		{Latitude: 40.7, Longitude: -120.95},
		{Latitude: 43.252, Longitude: -126.453},
	})
	require.True(t, ok)
	assert.Equal(t, Coordinate{Latitude: 38.5, Longitude: -126.453}, sw)
	assert.Equal(t, Coordinate{Latitude: 43.252, Longitude: -120.2}, ne)
}
