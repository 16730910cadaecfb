package domain

import "fmt"

// ViolationType identifies which detector on the agent flagged the traffic.
type ViolationType string

const (
	ViolationPacket     ViolationType = "packet"
	ViolationConnection ViolationType = "connection"
)

// ViolationTypeFromString parses the wire form; unknown values map to packet.
func ViolationTypeFromString(s string) ViolationType {
	if s == string(ViolationConnection) {
		return ViolationConnection
	}
	return ViolationPacket
}

// ViolationResponse is the action the agent took when the rule fired.
type ViolationResponse string

const (
	ResponseAirGap  ViolationResponse = "air_gap"
	ResponseKill    ViolationResponse = "kill"
	ResponseIsolate ViolationResponse = "isolate"
	ResponseAlert   ViolationResponse = "alert"
	ResponseRun     ViolationResponse = "run"
)

// ViolationResponseFromString parses the wire form; unknown values default to alert.
func ViolationResponseFromString(s string) ViolationResponse {
	switch ViolationResponse(s) {
	case ResponseAirGap, ResponseKill, ResponseIsolate, ResponseAlert, ResponseRun:
		return ViolationResponse(s)
	}
	return ResponseAlert
}

// EventKind discriminates event specializations. Packet is the only kind today.
type EventKind string

const (
	KindPacket EventKind = "packet"
)

// EventKindFromString parses the wire form; unknown kinds map to packet.
func EventKindFromString(s string) EventKind {
	return KindPacket
}

// Event is the base record every agent report carries.
// Immutable after persistence except CampaignID, which is assigned exactly once.
type Event struct {
	ID             int64             `json:"id,omitempty"` // assigned on persist
	TimestampNS    int64             `json:"timestamp_ns"`
	ViolatedRuleID int64             `json:"violated_rule_id"`
	ViolationType  ViolationType     `json:"violation_type"`
	Response       ViolationResponse `json:"violation_response"`
	Kind           EventKind         `json:"event_type"`
	DeviceMAC      string            `json:"device_mac"` // owning (local) device
	CampaignID     int64             `json:"campaign_id,omitempty"` // 0 = unassigned
}

// PacketDirection tells which side of the wire is the local device.
type PacketDirection string

const (
	DirectionInbound  PacketDirection = "INBOUND"
	DirectionOutbound PacketDirection = "OUTBOUND"
)

// PacketDirectionFromString parses the wire form; unknown values default to inbound.
func PacketDirectionFromString(s string) PacketDirection {
	if s == "outbound" || s == string(DirectionOutbound) {
		return DirectionOutbound
	}
	return DirectionInbound
}

// ProtocolInfo maps a numeric IP protocol id to its libc and display names.
type ProtocolInfo struct {
	ID       int64  `json:"id"`
	LibcName string `json:"libc"`
	Name     string `json:"name"`
}

// ProcessInfo identifies the local process that produced the traffic.
type ProcessInfo struct {
	PID  int64  `json:"pid"`
	Name string `json:"name"`
}

// Endpoint is one side of an observed conversation. IP and port may be absent
// for non-IP traffic.
type Endpoint struct {
	IP   *string `json:"ip"`
	Port *int64  `json:"port"`
	MAC  string  `json:"mac"`
}

// Payload carries up to a prefix of the packet body. FullSize is the size on
// the wire; Data may be truncated.
type Payload struct {
	FullSize int64  `json:"full_size"`
	Data     []byte `json:"data"`
}

// PacketEvent is an Event specialized with packet-level detail.
type PacketEvent struct {
	Event

	Protocol                 ProtocolInfo    `json:"protocol"`
	IsConnectionEstablishing bool            `json:"is_connection_establishing"`
	Direction                PacketDirection `json:"direction"`
	Process                  ProcessInfo     `json:"process"`
	Source                   Endpoint        `json:"source"`
	Dest                     Endpoint        `json:"dest"`
	Payload                  Payload         `json:"payload"`
}

// LocalMAC returns the MAC of the device that owns this event:
// the sender for outbound traffic, the receiver for inbound.
func (p *PacketEvent) LocalMAC() string {
	if p.Direction == DirectionOutbound {
		return p.Source.MAC
	}
	return p.Dest.MAC
}

// RemoteMAC returns the MAC of the peer on the far side of the conversation.
func (p *PacketEvent) RemoteMAC() string {
	if p.Direction == DirectionOutbound {
		return p.Dest.MAC
	}
	return p.Source.MAC
}

// RemoteIP returns the peer IP, or nil when the capture had none.
func (p *PacketEvent) RemoteIP() *string {
	if p.Direction == DirectionOutbound {
		return p.Dest.IP
	}
	return p.Source.IP
}

func endpointString(e Endpoint) string {
	if e.IP == nil {
		return "N/A"
	}
	if e.Port == nil {
		return *e.IP
	}
	return fmt.Sprintf("%s:%d", *e.IP, *e.Port)
}

// String renders the event for logs and for the campaign labeling context.
func (p *PacketEvent) String() string {
	return fmt.Sprintf("[%s] %s [%s] -> %s [%s] proc=%s(%d) payload=%d/%dB establishing=%t response=%s",
		p.Protocol.Name,
		endpointString(p.Source), p.Source.MAC,
		endpointString(p.Dest), p.Dest.MAC,
		p.Process.Name, p.Process.PID,
		p.Payload.FullSize, len(p.Payload.Data),
		p.IsConnectionEstablishing, p.Response,
	)
}
