package storage

import (
	"encoding/json"
	"strconv"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// JSON-encoded column helpers. Empty columns decode to nil.

func encodeInt64s(v []int64) string {
	if len(v) == 0 {
		return ""
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func decodeInt64s(s string) []int64 {
	if s == "" {
		return nil
	}
	var v []int64
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return ""
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

// Contact counts serialize with string keys; JSON objects cannot carry
// integer keys directly.
func encodeContacts(v map[int64]int64) string {
	if len(v) == 0 {
		return ""
	}
	enc := make(map[string]int64, len(v))
	for id, count := range v {
		enc[strconv.FormatInt(id, 10)] = count
	}
	raw, _ := json.Marshal(enc)
	return string(raw)
}

func decodeContacts(s string) map[int64]int64 {
	out := make(map[int64]int64)
	if s == "" {
		return out
	}
	var enc map[string]int64
	if err := json.Unmarshal([]byte(s), &enc); err != nil {
		return out
	}
	for key, count := range enc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		out[id] = count
	}
	return out
}

// deviceToDomain converts a database model to a domain entity.
func deviceToDomain(m DeviceModel) *domain.Device {
	return &domain.Device{
		ID:         m.ID,
		Name:       m.Name,
		OS:         m.OS,
		LastIP:     m.LastIP,
		MAC:        m.MAC,
		HandlerIDs: decodeInt64s(m.HandlerIDs),
		GroupIDs:   decodeInt64s(m.GroupIDs),
		Note:       m.Note,
		LastSeen:   m.LastSeen,
	}
}

// eventToModel converts a packet event to its database model.
func eventToModel(ev *domain.PacketEvent) EventModel {
	return EventModel{
		ID:             ev.ID,
		TimestampNS:    ev.TimestampNS,
		ViolatedRuleID: ev.ViolatedRuleID,
		ViolationType:  string(ev.ViolationType),
		Response:       string(ev.Response),
		Kind:           string(ev.Kind),
		DeviceMAC:      ev.DeviceMAC,
		CampaignID:     ev.CampaignID,

		ProtocolID:               ev.Protocol.ID,
		ProtocolLibc:             ev.Protocol.LibcName,
		ProtocolName:             ev.Protocol.Name,
		IsConnectionEstablishing: ev.IsConnectionEstablishing,
		Direction:                string(ev.Direction),
		ProcessPID:               ev.Process.PID,
		ProcessName:              ev.Process.Name,

		SrcIP:   ev.Source.IP,
		SrcPort: ev.Source.Port,
		SrcMAC:  ev.Source.MAC,
		DstIP:   ev.Dest.IP,
		DstPort: ev.Dest.Port,
		DstMAC:  ev.Dest.MAC,

		PayloadFullSize: ev.Payload.FullSize,
		PayloadData:     ev.Payload.Data,
	}
}

// eventToDomain converts a database model back to a packet event.
func eventToDomain(m EventModel) *domain.PacketEvent {
	return &domain.PacketEvent{
		Event: domain.Event{
			ID:             m.ID,
			TimestampNS:    m.TimestampNS,
			ViolatedRuleID: m.ViolatedRuleID,
			ViolationType:  domain.ViolationType(m.ViolationType),
			Response:       domain.ViolationResponse(m.Response),
			Kind:           domain.EventKind(m.Kind),
			DeviceMAC:      m.DeviceMAC,
			CampaignID:     m.CampaignID,
		},
		Protocol: domain.ProtocolInfo{
			ID:       m.ProtocolID,
			LibcName: m.ProtocolLibc,
			Name:     m.ProtocolName,
		},
		IsConnectionEstablishing: m.IsConnectionEstablishing,
		Direction:                domain.PacketDirection(m.Direction),
		Process: domain.ProcessInfo{
			PID:  m.ProcessPID,
			Name: m.ProcessName,
		},
		Source:  domain.Endpoint{IP: m.SrcIP, Port: m.SrcPort, MAC: m.SrcMAC},
		Dest:    domain.Endpoint{IP: m.DstIP, Port: m.DstPort, MAC: m.DstMAC},
		Payload: domain.Payload{FullSize: m.PayloadFullSize, Data: m.PayloadData},
	}
}

func eventsToDomain(models []EventModel) []domain.PacketEvent {
	events := make([]domain.PacketEvent, len(models))
	for i, m := range models {
		events[i] = *eventToDomain(m)
	}
	return events
}

// campaignToModel converts a campaign to its database model.
func campaignToModel(c *domain.Campaign) CampaignModel {
	return CampaignModel{
		ID:                  c.ID,
		Name:                c.Name,
		Description:         c.Description,
		DetailedDescription: c.DetailedDescription,
		Status:              string(c.Status),
		Severity:            string(c.Severity),
		Start:               c.InitialEventTime,
		LastUpdated:         c.LastUpdated,
		InvolvedDevices:     encodeInt64s(c.InvolvedDeviceIDs),
	}
}

// campaignToDomain converts a database model back to a campaign. Member
// events are loaded separately when needed.
func campaignToDomain(m CampaignModel) *domain.Campaign {
	return &domain.Campaign{
		ID:                  m.ID,
		Name:                m.Name,
		Description:         m.Description,
		DetailedDescription: m.DetailedDescription,
		Status:              domain.CampaignStatus(m.Status),
		Severity:            domain.CampaignSeverity(m.Severity),
		InitialEventTime:    m.Start,
		LastUpdated:         m.LastUpdated,
		InvolvedDeviceIDs:   decodeInt64s(m.InvolvedDevices),
	}
}

// heartbeatToModel converts a heartbeat to its database model.
func heartbeatToModel(deviceID int64, hb *domain.Heartbeat) HeartbeatModel {
	return HeartbeatModel{
		ID:               hb.ID,
		DeviceID:         deviceID,
		Timestamp:        hb.Timestamp,
		ContactedDevices: encodeContacts(hb.ContactedDeviceIDs),
		CPUUsage:         hb.Metrics.CPUUsagePercent,
		MemoryUsage:      hb.Metrics.MemoryUsagePercent,
	}
}

// heartbeatToDomain converts a database model back to a heartbeat.
func heartbeatToDomain(m HeartbeatModel) *domain.Heartbeat {
	return &domain.Heartbeat{
		ID:                 m.ID,
		DeviceID:           m.DeviceID,
		Timestamp:          m.Timestamp,
		ContactedDeviceIDs: decodeContacts(m.ContactedDevices),
		Metrics: domain.SystemMetrics{
			CPUUsagePercent:    m.CPUUsage,
			MemoryUsagePercent: m.MemoryUsage,
		},
	}
}

// ruleToModel converts a rule to its database model.
func ruleToModel(r *domain.Rule) RuleModel {
	return RuleModel{
		ID:         r.ID,
		RuleOrder:  r.Order,
		Name:       r.Name,
		Enabled:    r.Enabled,
		Priority:   r.Priority,
		EventTypes: encodeStrings(r.EventTypes),
		Conditions: string(r.Conditions),
		Responses:  string(r.Responses),
		GroupIDs:   encodeInt64s(r.GroupIDs),
	}
}

// ruleToDomain converts a database model back to a rule.
func ruleToDomain(m RuleModel) *domain.Rule {
	return &domain.Rule{
		ID:         m.ID,
		Order:      m.RuleOrder,
		Name:       m.Name,
		Enabled:    m.Enabled,
		Priority:   m.Priority,
		EventTypes: decodeStrings(m.EventTypes),
		Conditions: json.RawMessage(m.Conditions),
		Responses:  json.RawMessage(m.Responses),
		GroupIDs:   decodeInt64s(m.GroupIDs),
	}
}
