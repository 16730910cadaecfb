package reporting

import (
	"bytes"
	"testing"
	"time"

	"github.com/spear-it/spearhead/internal/core/domain"
)

func strptr(s string) *string { return &s }
func intptr(n int64) *int64   { return &n }

func sampleCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:                  42,
		Name:                "SSH Probe Activity",
		Description:         "Repeated SSH connection attempts against 10.0.0.8, all blocked.",
		DetailedDescription: "OpenSSH 9.6 banner observed from 198.51.100.4 across 14 connections.",
		Status:              domain.CampaignCompleted,
		Severity:            domain.SeverityMedium,
		InitialEventTime:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		LastUpdated:         time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
		InvolvedDeviceIDs:   []int64{1, 2},
	}
}

func sampleDevices() []domain.Device {
	return []domain.Device{
		{ID: 1, MAC: "AA:BB:CC:DD:EE:01", Name: "fileserver", LastIP: "10.0.0.8", OS: "Fedora 42"},
		{ID: 2, MAC: "FF:EE:DD:CC:BB:AA", LastIP: "198.51.100.4"},
	}
}

func sampleEvents(n int) []domain.PacketEvent {
	events := make([]domain.PacketEvent, n)
	for i := range events {
		events[i] = domain.PacketEvent{
			Event: domain.Event{
				ID:            int64(i + 1),
				TimestampNS:   time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC).UnixNano(),
				ViolationType: domain.ViolationPacket,
				DeviceMAC:     "AA:BB:CC:DD:EE:01",
			},
			Protocol:  domain.ProtocolInfo{ID: 6, LibcName: "IPPROTO_TCP", Name: "TCP"},
			Direction: domain.DirectionInbound,
			Process:   domain.ProcessInfo{PID: 77, Name: "sshd"},
			Source:    domain.Endpoint{IP: strptr("198.51.100.4"), Port: intptr(40000), MAC: "FF:EE:DD:CC:BB:AA"},
			Dest:      domain.Endpoint{IP: strptr("10.0.0.8"), Port: intptr(22), MAC: "AA:BB:CC:DD:EE:01"},
		}
	}
	return events
}

func TestExportCampaignReport(t *testing.T) {
	exporter := NewPDFExporter()

	pdfData, err := exporter.ExportCampaignReport(sampleCampaign(), sampleDevices(), sampleEvents(14))
	if err != nil {
		t.Fatalf("ExportCampaignReport() error = %v", err)
	}

	if len(pdfData) == 0 {
		t.Fatal("PDF data is empty")
	}

	// PDF files start with %PDF-
	if !bytes.HasPrefix(pdfData, []byte("%PDF-")) {
		t.Error("Generated data does not have PDF header")
	}

	if len(pdfData) < 1000 {
		t.Errorf("PDF file size %d bytes seems too small", len(pdfData))
	}
	if len(pdfData) > 1000000 {
		t.Errorf("PDF file size %d bytes seems too large", len(pdfData))
	}

	t.Logf("Generated PDF size: %d bytes", len(pdfData))
}

func TestExportCampaignReportWithMinimalData(t *testing.T) {
	exporter := NewPDFExporter()

	// Unlabeled campaign with no devices or events.
	campaign := domain.NewCampaign()
	campaign.ID = 1

	pdfData, err := exporter.ExportCampaignReport(campaign, nil, nil)
	if err != nil {
		t.Fatalf("ExportCampaignReport() with minimal data error = %v", err)
	}

	if !bytes.HasPrefix(pdfData, []byte("%PDF-")) {
		t.Error("Minimal report does not have PDF header")
	}
}

func TestExportCampaignReportManyEventsPaginates(t *testing.T) {
	exporter := NewPDFExporter()

	pdfData, err := exporter.ExportCampaignReport(sampleCampaign(), sampleDevices(), sampleEvents(120))
	if err != nil {
		t.Fatalf("ExportCampaignReport() with many events error = %v", err)
	}
	if !bytes.HasPrefix(pdfData, []byte("%PDF-")) {
		t.Error("Paginated report does not have PDF header")
	}
}

func TestSeverityColor(t *testing.T) {
	exporter := NewPDFExporter()

	tests := []struct {
		severity domain.CampaignSeverity
		r, g, b  int
	}{
		{domain.SeverityHigh, 220, 53, 69},
		{domain.SeverityMedium, 255, 149, 0},
		{domain.SeverityLow, 52, 199, 89},
	}
	for _, tt := range tests {
		r, g, b := exporter.severityColor(tt.severity)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Errorf("severityColor(%s) = (%d,%d,%d), want (%d,%d,%d)", tt.severity, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestConversationLine(t *testing.T) {
	ev := &sampleEvents(1)[0]
	if got := conversationLine(ev); got != "198.51.100.4:40000 -> 10.0.0.8:22" {
		t.Errorf("conversationLine() = %q", got)
	}

	ev.Source.IP, ev.Source.Port = nil, nil
	ev.Dest.Port = nil
	if got := conversationLine(ev); got != "- -> 10.0.0.8" {
		t.Errorf("conversationLine() with null endpoints = %q", got)
	}
}
