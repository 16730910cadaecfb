package ingest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

var (
	ErrBadReport = errors.New("ingest: malformed event report")
	ErrBadKind   = errors.New("ingest: unknown event kind")
)

// reportDoc is the outer RPRT envelope: {"type": ..., "data": {...}}.
type reportDoc struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// packetEventDoc mirrors the agent's packet event JSON.
type packetEventDoc struct {
	TimestampNS              *int64  `json:"timestamp_ns"`
	ViolatedRuleID           *int64  `json:"violated_rule_id"`
	ViolationType            *string `json:"violation_type"`
	ViolationResponse        string  `json:"violation_response"`
	Protocol                 *int64  `json:"protocol"`
	IsConnectionEstablishing *bool   `json:"is_connection_establishing"`
	Direction                string  `json:"direction"`

	Process *struct {
		PID  *int64  `json:"pid"`
		Name *string `json:"name"`
	} `json:"process"`

	IP *struct {
		SrcIP   *string `json:"src_ip"`
		SrcPort *int64  `json:"src_port"`
		DstIP   *string `json:"dst_ip"`
		DstPort *int64  `json:"dst_port"`
	} `json:"ip"`

	SrcMAC *string `json:"src_mac"`
	DstMAC *string `json:"dst_mac"`

	Payload *struct {
		FullSize *int64  `json:"full_size"`
		Data     *string `json:"data"`
	} `json:"payload"`
}

// ParseReport validates the RPRT envelope and parses its event document.
func ParseReport(raw []byte, resolver ports.ProtocolResolver) (*domain.PacketEvent, error) {
	var doc reportDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReport, err)
	}
	if doc.Type == nil || doc.Data == nil {
		return nil, fmt.Errorf("%w: missing type or data", ErrBadReport)
	}
	if domain.EventKindFromString(*doc.Type) != domain.KindPacket {
		return nil, fmt.Errorf("%w: %q", ErrBadKind, *doc.Type)
	}
	return ParsePacketEvent(doc.Data, resolver)
}

// ParsePacketEvent parses and validates a packet event document.
func ParsePacketEvent(raw []byte, resolver ports.ProtocolResolver) (*domain.PacketEvent, error) {
	var doc packetEventDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReport, err)
	}

	switch {
	case doc.TimestampNS == nil:
		return nil, fmt.Errorf("%w: missing timestamp_ns", ErrBadReport)
	case *doc.TimestampNS < 0:
		return nil, fmt.Errorf("%w: negative timestamp_ns", ErrBadReport)
	case doc.ViolatedRuleID == nil:
		return nil, fmt.Errorf("%w: missing violated_rule_id", ErrBadReport)
	case doc.ViolationType == nil:
		return nil, fmt.Errorf("%w: missing violation_type", ErrBadReport)
	case doc.Protocol == nil:
		return nil, fmt.Errorf("%w: missing protocol", ErrBadReport)
	case doc.IsConnectionEstablishing == nil:
		return nil, fmt.Errorf("%w: missing is_connection_establishing", ErrBadReport)
	case doc.Process == nil || doc.Process.PID == nil || doc.Process.Name == nil:
		return nil, fmt.Errorf("%w: missing process", ErrBadReport)
	case doc.IP == nil:
		return nil, fmt.Errorf("%w: missing ip", ErrBadReport)
	case doc.SrcMAC == nil || doc.DstMAC == nil:
		return nil, fmt.Errorf("%w: missing src_mac or dst_mac", ErrBadReport)
	case doc.Payload == nil || doc.Payload.FullSize == nil || doc.Payload.Data == nil:
		return nil, fmt.Errorf("%w: missing payload", ErrBadReport)
	}

	if !domain.IsValidMAC(*doc.SrcMAC) {
		return nil, fmt.Errorf("%w: invalid src_mac %q", ErrBadReport, *doc.SrcMAC)
	}
	if !domain.IsValidMAC(*doc.DstMAC) {
		return nil, fmt.Errorf("%w: invalid dst_mac %q", ErrBadReport, *doc.DstMAC)
	}

	data, err := base64.StdEncoding.DecodeString(*doc.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload data is not base64: %v", ErrBadReport, err)
	}
	if *doc.Payload.FullSize < int64(len(data)) {
		return nil, fmt.Errorf("%w: payload full_size %d smaller than data %d",
			ErrBadReport, *doc.Payload.FullSize, len(data))
	}

	ev := &domain.PacketEvent{
		Event: domain.Event{
			TimestampNS:    *doc.TimestampNS,
			ViolatedRuleID: *doc.ViolatedRuleID,
			ViolationType:  domain.ViolationTypeFromString(*doc.ViolationType),
			Response:       domain.ViolationResponseFromString(doc.ViolationResponse),
			Kind:           domain.KindPacket,
		},
		Protocol:                 resolver.Resolve(*doc.Protocol),
		IsConnectionEstablishing: *doc.IsConnectionEstablishing,
		Direction:                domain.PacketDirectionFromString(doc.Direction),
		Process: domain.ProcessInfo{
			PID:  *doc.Process.PID,
			Name: *doc.Process.Name,
		},
		Source: domain.Endpoint{IP: doc.IP.SrcIP, Port: doc.IP.SrcPort, MAC: *doc.SrcMAC},
		Dest:   domain.Endpoint{IP: doc.IP.DstIP, Port: doc.IP.DstPort, MAC: *doc.DstMAC},
		Payload: domain.Payload{
			FullSize: *doc.Payload.FullSize,
			Data:     data,
		},
	}
	ev.DeviceMAC = ev.LocalMAC()
	return ev, nil
}
