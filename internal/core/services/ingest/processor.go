package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

// PollInterval is how long the processor sleeps on an empty queue.
const PollInterval = 100 * time.Millisecond

// Correlator is the campaign engine driven by the processor. Single-writer:
// only the processor goroutine calls it.
type Correlator interface {
	ProcessEvent(ctx context.Context, ev *domain.PacketEvent) error
	Sweep(ctx context.Context)
	CloseAll(ctx context.Context)
}

// Processor is the single consumer of the event queue. Each event is
// persisted first, then handed to the correlator.
type Processor struct {
	queue      *Queue
	repo       ports.Repository
	correlator Correlator

	// drainTimeout bounds how long shutdown keeps consuming the queue.
	drainTimeout time.Duration
}

// NewProcessor wires the processing loop.
func NewProcessor(queue *Queue, repo ports.Repository, correlator Correlator) *Processor {
	return &Processor{
		queue:        queue,
		repo:         repo,
		correlator:   correlator,
		drainTimeout: 5 * time.Second,
	}
}

// Run consumes the queue until ctx is cancelled, then drains what is left and
// closes every ongoing campaign.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		default:
		}

		if !p.step(ctx) {
			p.correlator.Sweep(ctx)
			select {
			case <-ctx.Done():
				p.shutdown()
				return
			case <-time.After(PollInterval):
			}
		}
	}
}

// step processes one event. Returns false when the queue was empty.
func (p *Processor) step(ctx context.Context) bool {
	ev, ok := p.queue.TryPop()
	if !ok {
		return false
	}
	if _, err := p.repo.EventInsert(ctx, ev); err != nil {
		slog.Error("failed to persist event, discarding", "device", ev.DeviceMAC, "err", err)
		return true
	}
	if err := p.correlator.ProcessEvent(ctx, ev); err != nil {
		slog.Error("failed to correlate event", "event_id", ev.ID, "err", err)
	}
	return true
}

// shutdown drains the queue up to the deadline and closes ongoing campaigns.
func (p *Processor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			slog.Warn("drain deadline reached, discarding queued events", "remaining", p.queue.Len())
			p.correlator.CloseAll(context.Background())
			return
		default:
		}
		if !p.step(ctx) {
			p.correlator.CloseAll(ctx)
			return
		}
	}
}
