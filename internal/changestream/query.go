// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package changestream

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Query selects documents of one collection whose top-level Field equals
// Value, ordered by OrderBy.
type Query struct {
	Collection string `json:"collection"`
	Field      string `json:"field"`
	Value      string `json:"value"`
	OrderBy    string `json:"orderBy,omitempty"`
	Descending bool   `json:"descending,omitempty"`
}

// Key is a stable identifier for the query.
func (q Query) Key() string {
	dir := "asc"
	if q.Descending {
		dir = "desc"
	}
	return fmt.Sprintf("%s?%s=%s&orderBy=%s:%s", q.Collection, q.Field, q.Value, q.OrderBy, dir)
}

// Validate checks that the query names a collection and a filter field.
func (q Query) Validate() error {
	if q.Collection == "" || q.Field == "" {
		return fmt.Errorf("changestream: query needs collection and field: %s", q.Key())
	}
	return nil
}

func topLevel(data []byte) map[string]json.RawMessage {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Matches reports whether a document's filter field equals the query value.
func (q Query) Matches(data []byte) bool {
	raw, ok := topLevel(data)[q.Field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == q.Value
}

// Score extracts the numeric ordering key of a document. Strings are parsed
// as RFC3339 or YYYY-MM-DD, objects as {seconds, nanoseconds} timestamps.
// The bool is false when the field is missing or unparsable.
func (q Query) Score(data []byte) (float64, bool) {
	if q.OrderBy == "" {
		return 0, false
	}
	raw, ok := topLevel(data)[q.OrderBy]
	if !ok {
		return 0, false
	}
	return scoreOf(raw)
}

func scoreOf(raw json.RawMessage) (float64, bool) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return float64(t.UnixNano()) / 1e9, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return 0, false
	}
	var ts struct {
		Seconds     *int64 `json:"seconds"`
		Nanoseconds int64  `json:"nanoseconds"`
	}
	if err := json.Unmarshal(raw, &ts); err == nil && ts.Seconds != nil {
		return float64(*ts.Seconds) + float64(ts.Nanoseconds)/1e9, true
	}
	return 0, false
}

// Sort orders snapshots by Score, stable for ties. Documents without a score
// sort after scored ones regardless of direction.
func (q Query) Sort(docs []Snapshot) {
	type keyed struct {
		score float64
		ok    bool
	}
	keys := make(map[string]keyed, len(docs))
	for _, d := range docs {
		s, ok := q.Score(d.Data)
		keys[d.Path] = keyed{s, ok}
	}
	slices.SortStableFunc(docs, func(a, b Snapshot) int {
		ka, kb := keys[a.Path], keys[b.Path]
		switch {
		case ka.ok && !kb.ok:
			return -1
		case !ka.ok && kb.ok:
			return 1
		case ka.score == kb.score:
			return 0
		}
		less := ka.score < kb.score
		if q.Descending {
			less = !less
		}
		if less {
			return -1
		}
		return 1
	})
}
