package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

// SQLiteAdapter implements ports.Repository using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// DeviceModel is the GORM model for devices.
type DeviceModel struct {
	ID         int64  `gorm:"primaryKey"`
	MAC        string `gorm:"uniqueIndex"`
	Name       string
	OS         string
	LastIP     string
	HandlerIDs string // JSON encoded []int64
	GroupIDs   string // JSON encoded []int64
	Note       string
	LastSeen   time.Time
}

// EventModel is the GORM model for packet events.
type EventModel struct {
	ID             int64 `gorm:"primaryKey"`
	TimestampNS    int64
	ViolatedRuleID int64
	ViolationType  string
	Response       string
	Kind           string
	DeviceMAC      string
	CampaignID     int64 // 0 = unassigned

	ProtocolID               int64
	ProtocolLibc             string
	ProtocolName             string
	IsConnectionEstablishing bool
	Direction                string
	ProcessPID               int64
	ProcessName              string

	SrcIP   *string
	SrcPort *int64
	SrcMAC  string
	DstIP   *string
	DstPort *int64
	DstMAC  string

	PayloadFullSize int64
	PayloadData     []byte
}

// CampaignModel is the GORM model for campaigns.
type CampaignModel struct {
	ID                  int64 `gorm:"primaryKey"`
	Name                string
	Description         string
	DetailedDescription string
	Status              string
	Severity            string
	Start               time.Time
	LastUpdated         time.Time
	InvolvedDevices     string // JSON encoded []int64, insertion order
}

// HeartbeatModel is the GORM model for heartbeats.
type HeartbeatModel struct {
	ID               int64 `gorm:"primaryKey"`
	DeviceID         int64 `gorm:"index"`
	Timestamp        time.Time
	ContactedDevices string // JSON encoded map[int64]int64
	CPUUsage         float64
	MemoryUsage      float64
}

// RuleModel is the GORM model for detection rules.
type RuleModel struct {
	ID         int64 `gorm:"primaryKey"`
	RuleOrder  int64
	Name       string
	Enabled    bool
	Priority   int64
	EventTypes string // JSON encoded []string
	Conditions string // JSON document
	Responses  string // JSON document
	GroupIDs   string // JSON encoded []int64, empty = global
}

// UserModel is the GORM model for admin users.
type UserModel struct {
	ID           int64  `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	LastLogin    time.Time
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	// Auto Migrate
	if err := db.AutoMigrate(
		&DeviceModel{}, &EventModel{}, &CampaignModel{},
		&HeartbeatModel{}, &RuleModel{}, &UserModel{},
	); err != nil {
		return nil, err
	}

	// Create Indices for Performance
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_timestamp ON event_models(timestamp_ns)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_campaign ON event_models(campaign_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_device ON event_models(device_mac)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_events_rule ON event_models(violated_rule_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaign_models(status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_rules_enabled ON rule_models(enabled)")

	return &SQLiteAdapter{db: db}, nil
}

// DeviceUpsertByMAC creates or updates a device keyed by MAC. Empty reported
// attributes never overwrite stored values.
func (a *SQLiteAdapter) DeviceUpsertByMAC(ctx context.Context, info domain.DeviceInfo) (bool, int64, error) {
	if !domain.IsValidMAC(info.MAC) {
		return false, 0, fmt.Errorf("device upsert: invalid mac %q", info.MAC)
	}

	var created bool
	var id int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DeviceModel
		err := tx.Where("mac = ?", info.MAC).First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = DeviceModel{MAC: info.MAC}
			created = true
		case err != nil:
			return err
		}

		if info.Name != "" {
			model.Name = info.Name
		}
		if info.OS != "" {
			model.OS = info.OS
		}
		if info.IP != "" {
			model.LastIP = info.IP
		}
		model.LastSeen = time.Now()

		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		id = model.ID
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return created, id, nil
}

// DeviceByID retrieves a device by id.
func (a *SQLiteAdapter) DeviceByID(ctx context.Context, id int64) (*domain.Device, error) {
	var model DeviceModel
	if err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return deviceToDomain(model), nil
}

// DeviceByMAC retrieves a device by MAC.
func (a *SQLiteAdapter) DeviceByMAC(ctx context.Context, mac string) (*domain.Device, error) {
	var model DeviceModel
	if err := a.db.WithContext(ctx).First(&model, "mac = ?", mac).Error; err != nil {
		return nil, err
	}
	return deviceToDomain(model), nil
}

// DeviceList retrieves all devices.
func (a *SQLiteAdapter) DeviceList(ctx context.Context) ([]domain.Device, error) {
	var models []DeviceModel
	if err := a.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	devices := make([]domain.Device, len(models))
	for i, m := range models {
		devices[i] = *deviceToDomain(m)
	}
	return devices, nil
}

// DeviceCount returns the number of known devices.
func (a *SQLiteAdapter) DeviceCount(ctx context.Context) (int64, error) {
	var count int64
	if err := a.db.WithContext(ctx).Model(&DeviceModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// EventInsert persists an event and assigns its id.
func (a *SQLiteAdapter) EventInsert(ctx context.Context, ev *domain.PacketEvent) (int64, error) {
	model := eventToModel(ev)
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	ev.ID = model.ID
	return model.ID, nil
}

// EventSetCampaign links an event to a campaign exactly once.
func (a *SQLiteAdapter) EventSetCampaign(ctx context.Context, eventID, campaignID int64) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model EventModel
		if err := tx.First(&model, "id = ?", eventID).Error; err != nil {
			return err
		}
		if model.CampaignID != 0 && model.CampaignID != campaignID {
			return fmt.Errorf("event %d already belongs to campaign %d", eventID, model.CampaignID)
		}
		return tx.Model(&EventModel{}).Where("id = ?", eventID).
			Update("campaign_id", campaignID).Error
	})
}

// EventsByCampaign lists a campaign's events in timestamp order.
func (a *SQLiteAdapter) EventsByCampaign(ctx context.Context, campaignID int64) ([]domain.PacketEvent, error) {
	var models []EventModel
	if err := a.db.WithContext(ctx).Where("campaign_id = ?", campaignID).
		Order("timestamp_ns").Find(&models).Error; err != nil {
		return nil, err
	}
	return eventsToDomain(models), nil
}

// EventList lists all events in timestamp order.
func (a *SQLiteAdapter) EventList(ctx context.Context) ([]domain.PacketEvent, error) {
	var models []EventModel
	if err := a.db.WithContext(ctx).Order("timestamp_ns").Find(&models).Error; err != nil {
		return nil, err
	}
	return eventsToDomain(models), nil
}

// CampaignUpsert inserts the campaign on first call, updates it afterwards.
func (a *SQLiteAdapter) CampaignUpsert(ctx context.Context, c *domain.Campaign) (int64, error) {
	model := campaignToModel(c)
	if err := a.db.WithContext(ctx).Save(&model).Error; err != nil {
		return 0, err
	}
	c.ID = model.ID
	return model.ID, nil
}

// CampaignByID retrieves a campaign by id.
func (a *SQLiteAdapter) CampaignByID(ctx context.Context, id int64) (*domain.Campaign, error) {
	var model CampaignModel
	if err := a.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return campaignToDomain(model), nil
}

// CampaignList retrieves all campaigns.
func (a *SQLiteAdapter) CampaignList(ctx context.Context) ([]domain.Campaign, error) {
	var models []CampaignModel
	if err := a.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	campaigns := make([]domain.Campaign, len(models))
	for i, m := range models {
		campaigns[i] = *campaignToDomain(m)
	}
	return campaigns, nil
}

// HeartbeatInsert persists a heartbeat row for a device.
func (a *SQLiteAdapter) HeartbeatInsert(ctx context.Context, deviceID int64, hb *domain.Heartbeat) (int64, error) {
	model := heartbeatToModel(deviceID, hb)
	if err := a.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	hb.ID = model.ID
	hb.DeviceID = deviceID
	return model.ID, nil
}

// HeartbeatsForDevice lists a device's heartbeats in receipt order.
func (a *SQLiteAdapter) HeartbeatsForDevice(ctx context.Context, deviceID int64) ([]domain.Heartbeat, error) {
	var models []HeartbeatModel
	if err := a.db.WithContext(ctx).Where("device_id = ?", deviceID).
		Order("timestamp").Find(&models).Error; err != nil {
		return nil, err
	}
	beats := make([]domain.Heartbeat, len(models))
	for i, m := range models {
		beats[i] = *heartbeatToDomain(m)
	}
	return beats, nil
}

// RulesActiveForDevice returns enabled rules in scope for the device.
// Group scope lives in a JSON column, so filtering happens here.
func (a *SQLiteAdapter) RulesActiveForDevice(ctx context.Context, deviceID int64) ([]domain.Rule, error) {
	device, err := a.DeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var models []RuleModel
	if err := a.db.WithContext(ctx).Where("enabled = ?", true).
		Order("rule_order").Find(&models).Error; err != nil {
		return nil, err
	}

	var rules []domain.Rule
	for _, m := range models {
		rule := ruleToDomain(m)
		if rule.AppliesTo(device.GroupIDs) {
			rules = append(rules, *rule)
		}
	}
	return rules, nil
}

// RuleList retrieves all rules in order.
func (a *SQLiteAdapter) RuleList(ctx context.Context) ([]domain.Rule, error) {
	var models []RuleModel
	if err := a.db.WithContext(ctx).Order("rule_order").Find(&models).Error; err != nil {
		return nil, err
	}
	rules := make([]domain.Rule, len(models))
	for i, m := range models {
		rules[i] = *ruleToDomain(m)
	}
	return rules, nil
}

// RuleSave creates or updates a rule.
func (a *SQLiteAdapter) RuleSave(ctx context.Context, rule *domain.Rule) error {
	model := ruleToModel(rule)
	if err := a.db.WithContext(ctx).Save(&model).Error; err != nil {
		return err
	}
	rule.ID = model.ID
	return nil
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure interface compliance
var _ ports.Repository = (*SQLiteAdapter)(nil)
