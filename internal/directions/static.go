// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package directions

import (
	"context"
	"sync/atomic"

	"github.com/ManuGH/ordertrack/internal/geo/polyline"
)

// Static returns the straight segment between the two points. It stands in
// for the upstream in tests and local development.
type Static struct {
	calls atomic.Int64
}

func (s *Static) Route(_ context.Context, origin, destination polyline.Coordinate) (Route, error) {
	s.calls.Add(1)
	enc := polyline.Encode([]polyline.Coordinate{origin, destination})
	points, err := polyline.Decode(enc)
	if err != nil {
		return Route{}, newError("static", "", ErrUpstreamBadResponse, err)
	}
	return Route{Encoded: enc, Points: points}, nil
}

// Calls reports how many routes were requested.
func (s *Static) Calls() int64 {
	return s.calls.Load()
}
