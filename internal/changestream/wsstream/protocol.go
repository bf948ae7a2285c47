// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package wsstream serves and consumes the change stream over WebSocket.
// Clients send watch requests tagged with an id; the hub answers with
// snapshot, results or error frames carrying the same id.
package wsstream

import (
	"encoding/json"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
)

const (
	opWatch   = "watch"
	opQuery   = "query"
	opUnwatch = "unwatch"

	typeSnapshot = "snapshot"
	typeResults  = "results"
	typeError    = "error"

	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

type request struct {
	Op    string              `json:"op"`
	ID    string              `json:"id"`
	Path  string              `json:"path,omitempty"`
	Query *changestream.Query `json:"query,omitempty"`
}

type wireSnapshot struct {
	Path   string          `json:"path"`
	Exists bool            `json:"exists"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type message struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Snapshot *wireSnapshot  `json:"snapshot,omitempty"`
	Results  []wireSnapshot `json:"results,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func toWire(s changestream.Snapshot) wireSnapshot {
	w := wireSnapshot{Path: s.Path, Exists: s.Exists}
	if s.Exists && json.Valid(s.Data) {
		w.Data = s.Data
	}
	return w
}

func fromWire(w wireSnapshot) changestream.Snapshot {
	s := changestream.Snapshot{Path: w.Path, Exists: w.Exists}
	if w.Exists {
		s.Data = []byte(w.Data)
	}
	return s
}
