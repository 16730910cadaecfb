package domain

import (
	"fmt"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignOngoing   CampaignStatus = "ONGOING"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignAborted   CampaignStatus = "ABORTED" // administrative only
)

// CampaignSeverity is the assessed impact of a campaign.
type CampaignSeverity string

const (
	SeverityLow    CampaignSeverity = "LOW"
	SeverityMedium CampaignSeverity = "MEDIUM"
	SeverityHigh   CampaignSeverity = "HIGH"
)

// SeverityFromString parses a severity label; unknown values fall back to LOW.
func SeverityFromString(s string) CampaignSeverity {
	switch CampaignSeverity(strings.ToUpper(s)) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return CampaignSeverity(strings.ToUpper(s))
	}
	return SeverityLow
}

// Neutral labels applied when narrative generation is unavailable.
const (
	FallbackCampaignName        = "Unnamed Campaign"
	FallbackCampaignDescription = "No description available."
)

// Campaign groups events believed to stem from a single incident.
// Invariant: InitialEventTime <= LastUpdated once the first event is added.
type Campaign struct {
	ID                  int64            `json:"id,omitempty"` // assigned on first persist
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	DetailedDescription string           `json:"detailed_description"`
	Status              CampaignStatus   `json:"status"`
	Severity            CampaignSeverity `json:"severity"`
	InitialEventTime    time.Time        `json:"initial_event_time"`
	LastUpdated         time.Time        `json:"last_updated"`
	InvolvedDeviceIDs   []int64          `json:"involved_device_ids"` // ordered, unique
	Events              []*PacketEvent   `json:"-"`                   // in-memory only while ONGOING
}

// NewCampaign returns an empty ONGOING campaign with neutral labels.
func NewCampaign() *Campaign {
	return &Campaign{
		Name:        FallbackCampaignName,
		Description: FallbackCampaignDescription,
		Status:      CampaignOngoing,
		Severity:    SeverityLow,
	}
}

// AddInvolvedDevice appends a device id, preserving order and uniqueness.
func (c *Campaign) AddInvolvedDevice(id int64) {
	for _, existing := range c.InvolvedDeviceIDs {
		if existing == id {
			return
		}
	}
	c.InvolvedDeviceIDs = append(c.InvolvedDeviceIDs, id)
}

// Touch advances the campaign timestamps for an event observed at t.
func (c *Campaign) Touch(t time.Time) {
	c.LastUpdated = t
	if c.InitialEventTime.IsZero() || t.Before(c.InitialEventTime) {
		c.InitialEventTime = t
	}
}

func (c *Campaign) String() string {
	return fmt.Sprintf("Campaign(name=%s, status=%s, severity=%s, devices=%d, events=%d)",
		c.Name, c.Status, c.Severity, len(c.InvolvedDeviceIDs), len(c.Events))
}

// LabelContext renders the campaign for the narrative generator: involved
// device ids plus one line per member event.
func (c *Campaign) LabelContext() string {
	var b strings.Builder
	fmt.Fprintf(&b, "involved_device_ids=%v\n", c.InvolvedDeviceIDs)
	for _, ev := range c.Events {
		b.WriteString(ev.String())
		b.WriteByte('\n')
	}
	return b.String()
}
