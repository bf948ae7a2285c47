// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerGroup_WaitDrainsWorkers(t *testing.T) {
	var g workerGroup
	done := make(chan struct{})
	require.True(t, g.Go(func() { <-done }))
	assert.Equal(t, 1, g.Active())

	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	assert.Equal(t, 0, g.Active())

	assert.True(t, g.Go(func() {}), "Wait does not close the group")
}

func TestWorkerGroup_WaitTimeout(t *testing.T) {
	var g workerGroup
	block := make(chan struct{})
	require.True(t, g.Go(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
	close(block)
}

func TestWorkerGroup_RejectsAfterClose(t *testing.T) {
	var g workerGroup
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.CloseAndWait(ctx))
	assert.False(t, g.Go(func() {}))
}
