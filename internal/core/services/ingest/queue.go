package ingest

import (
	"errors"
	"sync"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/telemetry"
)

// DefaultHighWaterMark bounds the event queue. Agents retry above this layer.
const DefaultHighWaterMark = 10000

// ErrQueueFull is returned on push once the high-water mark is reached.
var ErrQueueFull = errors.New("ingest: event queue is full")

// Queue is the multi-producer single-consumer FIFO between session readers
// and the event processor.
type Queue struct {
	mu        sync.Mutex
	events    []*domain.PacketEvent
	highWater int
}

// NewQueue builds a queue. highWater <= 0 selects the default.
func NewQueue(highWater int) *Queue {
	if highWater <= 0 {
		highWater = DefaultHighWaterMark
	}
	return &Queue{highWater: highWater}
}

// Push appends an event, rejecting it when the queue is at the mark.
func (q *Queue) Push(ev *domain.PacketEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) >= q.highWater {
		return ErrQueueFull
	}
	q.events = append(q.events, ev)
	telemetry.QueueDepth.Set(float64(len(q.events)))
	return nil
}

// TryPop removes and returns the oldest event, or false when empty.
func (q *Queue) TryPop() (*domain.PacketEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, false
	}
	ev := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	telemetry.QueueDepth.Set(float64(len(q.events)))
	return ev, true
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
