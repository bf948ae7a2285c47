// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/redis/go-redis/v9"
)

// Writer stores documents and maintains the query indexes and change
// signals Provider relies on.
type Writer struct {
	client redis.UniversalClient
	opts   Options
	now    func() time.Time
}

var _ changestream.Writer = (*Writer)(nil)

// NewWriter wraps client with the same Options as the Provider.
func NewWriter(client redis.UniversalClient, opts Options) *Writer {
	return &Writer{client: client, opts: opts.withDefaults(), now: time.Now}
}

func stringField(data []byte, field string) (string, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", false
	}
	raw, ok := m[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Put stores data at path, moves index entries whose field value changed and
// publishes a change signal, all in one MULTI/EXEC.
func (w *Writer) Put(ctx context.Context, path string, data []byte) error {
	collection, id, err := changestream.SplitPath(path)
	if err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("redis put %s: document is not JSON", path)
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.OpTimeout)
	defer cancel()

	key := w.opts.docKey(path)
	old, err := w.client.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis put %s: read previous: %w", path, err)
	}

	score, ok := changestream.Query{OrderBy: w.opts.ScoreField}.Score(data)
	if !ok {
		score = float64(w.now().UnixNano()) / 1e9
	}

	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		for _, field := range w.opts.IndexFields {
			if prev, ok := stringField(old, field); ok {
				if cur, _ := stringField(data, field); cur != prev {
					pipe.ZRem(ctx, w.opts.indexKey(collection, field, prev), id)
				}
			}
			if cur, ok := stringField(data, field); ok {
				pipe.ZAdd(ctx, w.opts.indexKey(collection, field, cur), redis.Z{Score: score, Member: id})
			}
		}
		pipe.Publish(ctx, w.opts.docChannel(path), "put")
		pipe.Publish(ctx, w.opts.collectionChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s: %w", path, err)
	}
	return nil
}

// Delete removes the document and its index entries.
func (w *Writer) Delete(ctx context.Context, path string) error {
	collection, id, err := changestream.SplitPath(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.OpTimeout)
	defer cancel()

	key := w.opts.docKey(path)
	old, err := w.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", path, err)
	}

	_, err = w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for _, field := range w.opts.IndexFields {
			if prev, ok := stringField(old, field); ok {
				pipe.ZRem(ctx, w.opts.indexKey(collection, field, prev), id)
			}
		}
		pipe.Publish(ctx, w.opts.docChannel(path), "delete")
		pipe.Publish(ctx, w.opts.collectionChannel(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", path, err)
	}
	return nil
}
