// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package polyline implements the encoded polyline format used by map
// directions services: delta + zigzag encoded fixed-point (1e5) values,
// five bits per printable byte with a continuation flag.
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	precision = 1e5

	chunkBits    = 5
	chunkMask    = 0x1f
	continueFlag = 0x20
	asciiOffset  = 63
)

// ErrMalformed is the sentinel wrapped by every DecodeError.
var ErrMalformed = errors.New("polyline: malformed input")

// Coordinate is a decoded point. Values carry 5 decimal places of precision.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.5f,%.5f)", c.Latitude, c.Longitude)
}

// DecodeError reports where decoding stopped. Decode never returns a
// partial coordinate list alongside it.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("polyline: %s at byte %d", e.Reason, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return ErrMalformed
}

// Decode turns an encoded path into its ordered coordinates.
// An empty string decodes to an empty, non-nil slice.
func Decode(encoded string) ([]Coordinate, error) {
	// Every point needs at least two bytes.
	out := make([]Coordinate, 0, len(encoded)/2)

	var lat, lng int64
	pos := 0
	for pos < len(encoded) {
		dLat, next, err := readValue(encoded, pos)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, &DecodeError{Offset: next, Reason: "latitude without longitude"}
		}
		dLng, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		pos = next

		lat += dLat
		lng += dLng
		out = append(out, Coordinate{
			Latitude:  float64(lat) / precision,
			Longitude: float64(lng) / precision,
		})
	}
	return out, nil
}

// readValue consumes one zigzag varint starting at pos and returns the
// signed delta plus the offset of the next unread byte.
func readValue(s string, pos int) (int64, int, error) {
	var acc int64
	shift := uint(0)
	for {
		if pos >= len(s) {
			return 0, pos, &DecodeError{Offset: pos, Reason: "unterminated value"}
		}
		b := int64(s[pos]) - asciiOffset
		if b < 0 || b > 0x3f {
			return 0, pos, &DecodeError{Offset: pos, Reason: fmt.Sprintf("byte %q out of range", s[pos])}
		}
		if shift > 60 {
			return 0, pos, &DecodeError{Offset: pos, Reason: "value overflows 64 bits"}
		}
		pos++
		acc |= (b & chunkMask) << shift
		shift += chunkBits
		if b&continueFlag == 0 {
			break
		}
	}
	if acc&1 != 0 {
		return ^(acc >> 1), pos, nil
	}
	return acc >> 1, pos, nil
}

// Encode is the inverse of Decode. Values are rounded to 5 decimals.
func Encode(coords []Coordinate) string {
	var sb strings.Builder
	sb.Grow(len(coords) * 8)

	var prevLat, prevLng int64
	for _, c := range coords {
		lat := int64(math.Round(c.Latitude * precision))
		lng := int64(math.Round(c.Longitude * precision))
		writeValue(&sb, lat-prevLat)
		writeValue(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func writeValue(sb *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= continueFlag {
		sb.WriteByte(byte((continueFlag | (u & chunkMask)) + asciiOffset))
		u >>= chunkBits
	}
	sb.WriteByte(byte(u + asciiOffset))
}

// Bounds returns the south-west and north-east corners enclosing coords.
// ok is false for an empty path.
func Bounds(coords []Coordinate) (sw, ne Coordinate, ok bool) {
	if len(coords) == 0 {
		return Coordinate{}, Coordinate{}, false
	}
	sw, ne = coords[0], coords[0]
	for _, c := range coords[1:] {
		sw.Latitude = math.Min(sw.Latitude, c.Latitude)
		sw.Longitude = math.Min(sw.Longitude, c.Longitude)
		ne.Latitude = math.Max(ne.Latitude, c.Latitude)
		ne.Longitude = math.Max(ne.Longitude, c.Longitude)
	}
	return sw, ne, true
}
