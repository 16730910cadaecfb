package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/adapters/storage"
	"github.com/spear-it/spearhead/internal/core/domain"
)

type recordingCorrelator struct {
	mu        sync.Mutex
	processed []*domain.PacketEvent
	sweeps    int
	closedAll bool
}

func (c *recordingCorrelator) ProcessEvent(_ context.Context, ev *domain.PacketEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed = append(c.processed, ev)
	return nil
}

func (c *recordingCorrelator) Sweep(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
}

func (c *recordingCorrelator) CloseAll(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closedAll = true
}

func (c *recordingCorrelator) processedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processed)
}

func TestProcessorPersistsThenCorrelates(t *testing.T) {
	repo := storage.NewMemoryRepository()
	queue := NewQueue(0)
	correlator := &recordingCorrelator{}
	proc := NewProcessor(queue, repo, correlator)

	for i := int64(0); i < 3; i++ {
		require.NoError(t, queue.Push(&domain.PacketEvent{Event: domain.Event{TimestampNS: i, DeviceMAC: "AA:BB:CC:DD:EE:01"}}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for correlator.processedCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	require.Equal(t, 3, correlator.processedCount())
	// FIFO, and every event had its id assigned by persistence first.
	for i, ev := range correlator.processed {
		assert.Equal(t, int64(i), ev.TimestampNS)
		assert.NotZero(t, ev.ID)
	}
	events, err := repo.EventList(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.True(t, correlator.closedAll)
}

func TestProcessorSweepsWhileIdle(t *testing.T) {
	proc := NewProcessor(NewQueue(0), storage.NewMemoryRepository(), &recordingCorrelator{})
	correlator := proc.correlator.(*recordingCorrelator)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		correlator.mu.Lock()
		swept := correlator.sweeps > 0
		correlator.mu.Unlock()
		if swept {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	correlator.mu.Lock()
	defer correlator.mu.Unlock()
	assert.Greater(t, correlator.sweeps, 0)
	assert.True(t, correlator.closedAll)
}

func TestProcessorDrainsOnShutdown(t *testing.T) {
	repo := storage.NewMemoryRepository()
	queue := NewQueue(0)
	correlator := &recordingCorrelator{}
	proc := NewProcessor(queue, repo, correlator)

	// Cancel before the loop ever runs; everything queued must still land.
	for i := 0; i < 10; i++ {
		require.NoError(t, queue.Push(&domain.PacketEvent{Event: domain.Event{DeviceMAC: "AA:BB:CC:DD:EE:01"}}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc.Run(ctx)

	assert.Equal(t, 10, correlator.processedCount())
	assert.Equal(t, 0, queue.Len())
	assert.True(t, correlator.closedAll)
}
