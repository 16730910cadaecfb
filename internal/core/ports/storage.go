package ports

import (
	"context"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// Repository defines the persistence layer consumed by the ingestion and
// correlation core. Implementations are expected to be safe for concurrent
// use (pooled connections).
type Repository interface {
	// DeviceUpsertByMAC creates or updates the device identified by
	// info.MAC. Empty Name/OS/IP fields never overwrite stored values.
	// Returns whether the device was created and its id.
	DeviceUpsertByMAC(ctx context.Context, info domain.DeviceInfo) (created bool, id int64, err error)
	DeviceByID(ctx context.Context, id int64) (*domain.Device, error)
	DeviceByMAC(ctx context.Context, mac string) (*domain.Device, error)
	DeviceList(ctx context.Context) ([]domain.Device, error)
	DeviceCount(ctx context.Context) (int64, error)

	// EventInsert persists a packet event and returns its assigned id.
	EventInsert(ctx context.Context, ev *domain.PacketEvent) (int64, error)
	// EventSetCampaign links an event to a campaign. An event already linked
	// to a different campaign is left untouched and an error is returned.
	EventSetCampaign(ctx context.Context, eventID, campaignID int64) error
	EventsByCampaign(ctx context.Context, campaignID int64) ([]domain.PacketEvent, error)
	EventList(ctx context.Context) ([]domain.PacketEvent, error)

	// CampaignUpsert inserts the campaign on first call (assigning its id)
	// and updates it afterwards.
	CampaignUpsert(ctx context.Context, c *domain.Campaign) (int64, error)
	CampaignByID(ctx context.Context, id int64) (*domain.Campaign, error)
	CampaignList(ctx context.Context) ([]domain.Campaign, error)

	HeartbeatInsert(ctx context.Context, deviceID int64, hb *domain.Heartbeat) (int64, error)
	HeartbeatsForDevice(ctx context.Context, deviceID int64) ([]domain.Heartbeat, error)

	// RulesActiveForDevice returns enabled rules whose group scope is empty
	// or intersects the device's groups.
	RulesActiveForDevice(ctx context.Context, deviceID int64) ([]domain.Rule, error)
	RuleList(ctx context.Context) ([]domain.Rule, error)
	RuleSave(ctx context.Context, rule *domain.Rule) error

	Close() error
}

// UserRepository defines the persistence layer for admin users.
type UserRepository interface {
	UserSave(ctx context.Context, user *domain.User) error
	UserByUsername(ctx context.Context, username string) (*domain.User, error)
	UserByID(ctx context.Context, id int64) (*domain.User, error)
	UserList(ctx context.Context) ([]domain.User, error)
}
