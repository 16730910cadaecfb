// Package ingest accepts raw agent messages, validates them, and feeds the
// event queue, the device registry, and the rule server.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
	"github.com/spear-it/spearhead/internal/telemetry"
)

var (
	ErrBadHeartbeat  = errors.New("ingest: malformed heartbeat")
	ErrUnknownDevice = errors.New("ingest: unknown device")
)

// Service is the message-level entry point behind the wire router.
type Service struct {
	repo     ports.Repository
	resolver ports.ProtocolResolver
	queue    *Queue

	// now is swappable for heartbeat receipt-time tests.
	now func() time.Time
}

// NewService wires the ingress service.
func NewService(repo ports.Repository, resolver ports.ProtocolResolver, queue *Queue) *Service {
	return &Service{repo: repo, resolver: resolver, queue: queue, now: time.Now}
}

// Queue exposes the event queue for the processor.
func (s *Service) Queue() *Queue {
	return s.queue
}

// SubmitReport parses an RPRT payload and enqueues the event.
func (s *Service) SubmitReport(raw []byte) error {
	ev, err := ParseReport(raw, s.resolver)
	if err != nil {
		telemetry.EventsDropped.WithLabelValues("parse").Inc()
		return err
	}
	if err := s.queue.Push(ev); err != nil {
		telemetry.EventsDropped.WithLabelValues("queue_full").Inc()
		return err
	}
	telemetry.EventsIngested.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

// heartbeatDoc mirrors the agent's HRTB JSON.
type heartbeatDoc struct {
	MACAddress *string `json:"mac_address"`
	DeviceName string  `json:"device_name"`
	OSDetails  string  `json:"os_details"`
	IPAddress  string  `json:"ip_address"`

	NetworkDetails struct {
		ContactedMACs map[string]int64 `json:"contacted_macs"`
	} `json:"network_details"`

	SystemMetrics struct {
		CPUUsagePercent    float64 `json:"cpu_usage_percent"`
		MemoryUsagePercent float64 `json:"memory_usage_percent"`
	} `json:"system_metrics"`
}

// SubmitHeartbeat validates an HRTB payload, upserts the device, and persists
// the heartbeat. Heartbeats carrying the zero MAC are silently ignored.
func (s *Service) SubmitHeartbeat(ctx context.Context, raw []byte) error {
	var doc heartbeatDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeartbeat, err)
	}
	if doc.MACAddress == nil {
		return fmt.Errorf("%w: missing mac_address", ErrBadHeartbeat)
	}
	if *doc.MACAddress == domain.ZeroMAC {
		slog.Debug("ignoring heartbeat with zero mac")
		return nil
	}
	if !domain.IsValidMAC(*doc.MACAddress) {
		return fmt.Errorf("%w: invalid mac_address %q", ErrBadHeartbeat, *doc.MACAddress)
	}

	_, deviceID, err := s.repo.DeviceUpsertByMAC(ctx, domain.DeviceInfo{
		MAC:  *doc.MACAddress,
		Name: doc.DeviceName,
		OS:   doc.OSDetails,
		IP:   doc.IPAddress,
	})
	if err != nil {
		return err
	}

	contacted := make(map[int64]int64, len(doc.NetworkDetails.ContactedMACs))
	for mac, count := range doc.NetworkDetails.ContactedMACs {
		if !domain.IsValidMAC(mac) || mac == domain.ZeroMAC {
			continue
		}
		_, peerID, err := s.repo.DeviceUpsertByMAC(ctx, domain.DeviceInfo{MAC: mac})
		if err != nil {
			slog.Warn("failed to resolve contacted device", "mac", mac, "err", err)
			continue
		}
		contacted[peerID] = count
	}

	hb := &domain.Heartbeat{
		Timestamp:          s.now(),
		ContactedDeviceIDs: contacted,
		Metrics: domain.SystemMetrics{
			CPUUsagePercent:    doc.SystemMetrics.CPUUsagePercent,
			MemoryUsagePercent: doc.SystemMetrics.MemoryUsagePercent,
		},
	}
	if _, err := s.repo.HeartbeatInsert(ctx, deviceID, hb); err != nil {
		return err
	}
	telemetry.HeartbeatsReceived.Inc()
	return nil
}

// RulesJSONForDevice returns the compact rules array served to an agent:
// enabled rules whose group scope is empty or intersects the device's groups.
// Unknown devices are an error; the caller drops the request.
func (s *Service) RulesJSONForDevice(ctx context.Context, mac string) (string, error) {
	device, err := s.repo.DeviceByMAC(ctx, mac)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, mac)
	}
	rules, err := s.repo.RulesActiveForDevice(ctx, device.ID)
	if err != nil {
		return "", err
	}

	wire := make([]domain.WireRule, 0, len(rules))
	for i := range rules {
		wire = append(wire, rules[i].Wire())
	}
	out, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
