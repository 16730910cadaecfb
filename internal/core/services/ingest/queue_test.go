package ingest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/core/domain"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(0)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, q.Push(&domain.PacketEvent{Event: domain.Event{TimestampNS: i}}))
	}
	assert.Equal(t, 5, q.Len())

	for i := int64(0); i < 5; i++ {
		ev, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, ev.TimestampNS)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueueHighWaterMark(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(&domain.PacketEvent{}))
	}
	assert.ErrorIs(t, q.Push(&domain.PacketEvent{}), ErrQueueFull)

	// Popping frees capacity again.
	_, ok := q.TryPop()
	require.True(t, ok)
	assert.NoError(t, q.Push(&domain.PacketEvent{}))
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(10000)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Push(&domain.PacketEvent{})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, q.Len())
}
