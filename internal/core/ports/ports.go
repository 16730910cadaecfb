package ports

import (
	"context"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// CampaignLabels is the narrative produced for a closed campaign.
type CampaignLabels struct {
	Name                string
	Description         string
	DetailedDescription string
	Severity            domain.CampaignSeverity
}

// FallbackLabels are applied whenever narrative generation fails.
func FallbackLabels() CampaignLabels {
	return CampaignLabels{
		Name:        domain.FallbackCampaignName,
		Description: domain.FallbackCampaignDescription,
		Severity:    domain.SeverityLow,
	}
}

// CampaignLabeler names and grades a campaign from its event context.
// Implementations must be failure-tolerant: callers always fall back to
// FallbackLabels on error, never propagate it.
type CampaignLabeler interface {
	LabelCampaign(ctx context.Context, labelContext string) (CampaignLabels, error)
}

// AuthService defines the business logic for admin authentication.
type AuthService interface {
	Login(ctx context.Context, creds domain.Credentials) (string, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string) error
	CreateUser(ctx context.Context, user domain.User, password string) error
}

// ProtocolResolver maps numeric IP protocol ids to their names.
type ProtocolResolver interface {
	Resolve(id int64) domain.ProtocolInfo
}
