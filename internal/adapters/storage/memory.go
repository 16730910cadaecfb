package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

// MemoryRepository is an in-memory ports.Repository used by tests and the
// standalone mock mode. Semantics match the SQLite adapter.
type MemoryRepository struct {
	mu sync.Mutex

	devices    map[int64]*domain.Device
	deviceMACs map[string]int64
	events     map[int64]*domain.PacketEvent
	campaigns  map[int64]*domain.Campaign
	heartbeats map[int64][]domain.Heartbeat
	rules      map[int64]*domain.Rule
	users      map[int64]*domain.User

	nextDevice, nextEvent, nextCampaign, nextHeartbeat, nextRule, nextUser int64
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		devices:    make(map[int64]*domain.Device),
		deviceMACs: make(map[string]int64),
		events:     make(map[int64]*domain.PacketEvent),
		campaigns:  make(map[int64]*domain.Campaign),
		heartbeats: make(map[int64][]domain.Heartbeat),
		rules:      make(map[int64]*domain.Rule),
		users:      make(map[int64]*domain.User),
	}
}

var (
	_ ports.Repository     = (*MemoryRepository)(nil)
	_ ports.UserRepository = (*MemoryRepository)(nil)
)

func (r *MemoryRepository) DeviceUpsertByMAC(_ context.Context, info domain.DeviceInfo) (bool, int64, error) {
	if !domain.IsValidMAC(info.MAC) {
		return false, 0, fmt.Errorf("device upsert: invalid mac %q", info.MAC)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.deviceMACs[info.MAC]; ok {
		applyDeviceInfo(r.devices[id], info)
		return false, id, nil
	}
	r.nextDevice++
	id := r.nextDevice
	dev := &domain.Device{ID: id, MAC: info.MAC}
	applyDeviceInfo(dev, info)
	r.devices[id] = dev
	r.deviceMACs[info.MAC] = id
	return true, id, nil
}

// applyDeviceInfo merges non-empty attributes into the stored device.
func applyDeviceInfo(dev *domain.Device, info domain.DeviceInfo) {
	if info.Name != "" {
		dev.Name = info.Name
	}
	if info.OS != "" {
		dev.OS = info.OS
	}
	if info.IP != "" {
		dev.LastIP = info.IP
	}
	dev.LastSeen = time.Now()
}

func (r *MemoryRepository) DeviceByID(_ context.Context, id int64) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d not found", id)
	}
	copied := *dev
	return &copied, nil
}

func (r *MemoryRepository) DeviceByMAC(ctx context.Context, mac string) (*domain.Device, error) {
	r.mu.Lock()
	id, ok := r.deviceMACs[mac]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("device %s not found", mac)
	}
	return r.DeviceByID(ctx, id)
}

func (r *MemoryRepository) DeviceList(_ context.Context) ([]domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Device, 0, len(r.devices))
	for i := int64(1); i <= r.nextDevice; i++ {
		if dev, ok := r.devices[i]; ok {
			out = append(out, *dev)
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeviceCount(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.devices)), nil
}

func (r *MemoryRepository) EventInsert(_ context.Context, ev *domain.PacketEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEvent++
	ev.ID = r.nextEvent
	copied := *ev
	r.events[ev.ID] = &copied
	return ev.ID, nil
}

func (r *MemoryRepository) EventSetCampaign(_ context.Context, eventID, campaignID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("event %d not found", eventID)
	}
	if ev.CampaignID != 0 && ev.CampaignID != campaignID {
		return fmt.Errorf("event %d already belongs to campaign %d", eventID, ev.CampaignID)
	}
	ev.CampaignID = campaignID
	return nil
}

func (r *MemoryRepository) EventsByCampaign(_ context.Context, campaignID int64) ([]domain.PacketEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PacketEvent
	for i := int64(1); i <= r.nextEvent; i++ {
		if ev, ok := r.events[i]; ok && ev.CampaignID == campaignID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *MemoryRepository) EventList(_ context.Context) ([]domain.PacketEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PacketEvent, 0, len(r.events))
	for i := int64(1); i <= r.nextEvent; i++ {
		if ev, ok := r.events[i]; ok {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CampaignUpsert(_ context.Context, c *domain.Campaign) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		r.nextCampaign++
		c.ID = r.nextCampaign
	}
	copied := *c
	copied.Events = nil
	copied.InvolvedDeviceIDs = append([]int64(nil), c.InvolvedDeviceIDs...)
	r.campaigns[c.ID] = &copied
	return c.ID, nil
}

func (r *MemoryRepository) CampaignByID(_ context.Context, id int64) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d not found", id)
	}
	copied := *c
	return &copied, nil
}

func (r *MemoryRepository) CampaignList(_ context.Context) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Campaign, 0, len(r.campaigns))
	for i := int64(1); i <= r.nextCampaign; i++ {
		if c, ok := r.campaigns[i]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *MemoryRepository) HeartbeatInsert(_ context.Context, deviceID int64, hb *domain.Heartbeat) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextHeartbeat++
	hb.ID = r.nextHeartbeat
	hb.DeviceID = deviceID
	r.heartbeats[deviceID] = append(r.heartbeats[deviceID], *hb)
	return hb.ID, nil
}

func (r *MemoryRepository) HeartbeatsForDevice(_ context.Context, deviceID int64) ([]domain.Heartbeat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Heartbeat(nil), r.heartbeats[deviceID]...), nil
}

func (r *MemoryRepository) RulesActiveForDevice(_ context.Context, deviceID int64) ([]domain.Rule, error) {
	r.mu.Lock()
	dev, ok := r.devices[deviceID]
	var groups []int64
	if ok {
		groups = append(groups, dev.GroupIDs...)
	}
	r.mu.Unlock()

	rules, err := r.RuleList(context.Background())
	if err != nil {
		return nil, err
	}
	var out []domain.Rule
	for _, rule := range rules {
		if rule.Enabled && rule.AppliesTo(groups) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *MemoryRepository) RuleList(_ context.Context) ([]domain.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Rule, 0, len(r.rules))
	for i := int64(1); i <= r.nextRule; i++ {
		if rule, ok := r.rules[i]; ok {
			out = append(out, *rule)
		}
	}
	return out, nil
}

func (r *MemoryRepository) RuleSave(_ context.Context, rule *domain.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == 0 {
		r.nextRule++
		rule.ID = r.nextRule
	} else if rule.ID > r.nextRule {
		r.nextRule = rule.ID
	}
	copied := *rule
	r.rules[rule.ID] = &copied
	return nil
}

func (r *MemoryRepository) UserSave(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		r.nextUser++
		user.ID = r.nextUser
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *MemoryRepository) UserByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryRepository) UserByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *MemoryRepository) UserList(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for i := int64(1); i <= r.nextUser; i++ {
		if u, ok := r.users[i]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
