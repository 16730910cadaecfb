// Package correlate groups incoming events into attack campaigns with a
// similarity scoring engine and closes campaigns after inactivity.
package correlate

import (
	"context"
	"log/slog"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
	"github.com/spear-it/spearhead/internal/telemetry"
)

// Score weights for event-to-event similarity. The normalizer is their sum,
// so a perfect match scores 1.0.
const (
	weightSameDevice    = 0.50
	weightSameViolation = 0.25
	weightSameRule      = 0.25
	weightSameKind      = 0.15
	weightConversation  = 0.50

	scoreNormalizer = weightSameDevice + weightSameViolation + weightSameRule + weightSameKind + weightConversation
)

// Config tunes the correlation engine.
type Config struct {
	// MatchThreshold is the minimum campaign match score, in percent.
	MatchThreshold float64
	// OngoingTimeout closes a campaign once it sits idle this long.
	OngoingTimeout time.Duration
	// FlowTimeout bounds temporal proximity in conversation scoring.
	FlowTimeout time.Duration
}

// DefaultConfig mirrors the agent fleet defaults.
func DefaultConfig() Config {
	return Config{
		MatchThreshold: 70,
		OngoingTimeout: 10 * time.Second,
		FlowTimeout:    120 * time.Second,
	}
}

// Correlator assigns events to campaigns. It is single-writer: only the
// event processor goroutine may call ProcessEvent, Sweep, and CloseAll, so
// the ongoing list needs no locking.
type Correlator struct {
	repo    ports.Repository
	labeler ports.CampaignLabeler
	cfg     Config

	ongoing []*domain.Campaign

	// now is swappable so tests can drive campaign expiry.
	now func() time.Time
}

// New builds a correlator. The labeler may be nil; closed campaigns then keep
// their fallback labels.
func New(repo ports.Repository, labeler ports.CampaignLabeler, cfg Config) *Correlator {
	return &Correlator{
		repo:    repo,
		labeler: labeler,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Ongoing returns the open campaigns, most recently opened last.
func (c *Correlator) Ongoing() []*domain.Campaign {
	return c.ongoing
}

// ProcessEvent expires stale campaigns, then assigns the event to the best
// matching ongoing campaign or opens a new one. The event must already be
// persisted.
func (c *Correlator) ProcessEvent(ctx context.Context, ev *domain.PacketEvent) error {
	c.Sweep(ctx)

	var best *domain.Campaign
	bestScore := 0.0
	for _, campaign := range c.ongoing {
		// Strict comparison keeps the earliest campaign on equal scores.
		if score := c.scoreCampaignMatch(ev, campaign); score > bestScore {
			bestScore = score
			best = campaign
		}
	}

	if best != nil && bestScore*100 >= c.cfg.MatchThreshold {
		return c.attach(ctx, best, ev)
	}

	campaign := domain.NewCampaign()
	c.ongoing = append(c.ongoing, campaign)
	telemetry.CampaignsOpened.Inc()
	slog.Debug("opened new campaign for event", "event_id", ev.ID, "best_score", bestScore)
	return c.attach(ctx, campaign, ev)
}

// Sweep closes every ongoing campaign idle strictly longer than the timeout.
// Also called by the processor between events so campaigns expire without
// fresh traffic.
func (c *Correlator) Sweep(ctx context.Context) {
	now := c.now()
	kept := c.ongoing[:0]
	for _, campaign := range c.ongoing {
		if now.Sub(campaign.LastUpdated) > c.cfg.OngoingTimeout {
			c.close(ctx, campaign)
			continue
		}
		kept = append(kept, campaign)
	}
	c.ongoing = kept
}

// CloseAll closes every ongoing campaign, as on timeout. Called at shutdown
// after the queue drains.
func (c *Correlator) CloseAll(ctx context.Context) {
	for _, campaign := range c.ongoing {
		c.close(ctx, campaign)
	}
	c.ongoing = nil
}

// scoreEventsMatch grades event similarity in [0, 1].
func (c *Correlator) scoreEventsMatch(e1, e2 *domain.PacketEvent) float64 {
	score := 0.0
	if e1.DeviceMAC == e2.DeviceMAC {
		score += weightSameDevice
	}
	if e1.ViolationType == e2.ViolationType {
		score += weightSameViolation
	}
	if e1.ViolatedRuleID == e2.ViolatedRuleID {
		score += weightSameRule
	}
	if e1.Kind == e2.Kind {
		score += weightSameKind
		if e1.Kind == domain.KindPacket {
			score += sameConversationScore(e1, e2, c.cfg.FlowTimeout.Nanoseconds()) * weightConversation
		}
	}
	return score / scoreNormalizer
}

// scoreCampaignMatch is the mean event match over the campaign's members.
func (c *Correlator) scoreCampaignMatch(ev *domain.PacketEvent, campaign *domain.Campaign) float64 {
	if len(campaign.Events) == 0 {
		return 0.0
	}
	total := 0.0
	for _, member := range campaign.Events {
		total += c.scoreEventsMatch(ev, member)
	}
	return total / float64(len(campaign.Events))
}

// attach adds the event to the campaign, registers both conversation
// endpoints as involved devices, and persists the membership.
func (c *Correlator) attach(ctx context.Context, campaign *domain.Campaign, ev *domain.PacketEvent) error {
	campaign.Events = append(campaign.Events, ev)
	campaign.Touch(time.Unix(0, ev.TimestampNS))

	if _, localID, err := c.repo.DeviceUpsertByMAC(ctx, domain.DeviceInfo{MAC: ev.DeviceMAC}); err == nil {
		campaign.AddInvolvedDevice(localID)
	} else {
		slog.Error("failed to upsert local device for campaign", "mac", ev.DeviceMAC, "err", err)
	}

	remoteIP := "0.0.0.0"
	if ip := ev.RemoteIP(); ip != nil {
		remoteIP = *ip
	}
	if _, remoteID, err := c.repo.DeviceUpsertByMAC(ctx, domain.DeviceInfo{MAC: ev.RemoteMAC(), IP: remoteIP}); err == nil {
		campaign.AddInvolvedDevice(remoteID)
	} else {
		slog.Error("failed to upsert remote device for campaign", "mac", ev.RemoteMAC(), "err", err)
	}

	if _, err := c.repo.CampaignUpsert(ctx, campaign); err != nil {
		return err
	}

	switch {
	case ev.CampaignID == campaign.ID:
		// already linked
	case ev.CampaignID != 0:
		slog.Warn("event already belongs to another campaign, refusing reassignment",
			"event_id", ev.ID, "campaign_id", ev.CampaignID, "target_campaign_id", campaign.ID)
	default:
		if err := c.repo.EventSetCampaign(ctx, ev.ID, campaign.ID); err != nil {
			return err
		}
		ev.CampaignID = campaign.ID
	}
	return nil
}

// close completes the campaign, labels it, and persists the final state.
func (c *Correlator) close(ctx context.Context, campaign *domain.Campaign) {
	campaign.Status = domain.CampaignCompleted

	labels := ports.FallbackLabels()
	if c.labeler != nil {
		generated, err := c.labeler.LabelCampaign(ctx, campaign.LabelContext())
		if err != nil {
			slog.Warn("campaign labeling failed, using fallback", "campaign_id", campaign.ID, "err", err)
		} else {
			labels = generated
		}
	}
	campaign.Name = labels.Name
	campaign.Description = labels.Description
	campaign.DetailedDescription = labels.DetailedDescription
	campaign.Severity = labels.Severity

	if _, err := c.repo.CampaignUpsert(ctx, campaign); err != nil {
		slog.Error("failed to persist closed campaign", "campaign_id", campaign.ID, "err", err)
		return
	}
	telemetry.CampaignsClosed.Inc()
	slog.Info("closed campaign due to inactivity",
		"campaign_id", campaign.ID, "name", campaign.Name, "severity", campaign.Severity, "events", len(campaign.Events))
}
