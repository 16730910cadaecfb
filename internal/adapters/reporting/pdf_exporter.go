package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// PDFExporter renders campaign reports to PDF format
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportCampaignReport generates a PDF summary of a campaign, its involved
// devices, and its member events.
func (e *PDFExporter) ExportCampaignReport(campaign *domain.Campaign, devices []domain.Device, events []domain.PacketEvent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, campaign)
	e.addSeverityBanner(pdf, campaign)
	e.addOverview(pdf, campaign, len(devices), len(events))
	e.addNarrative(pdf, campaign)
	e.addDevices(pdf, devices)
	e.addEvents(pdf, events)
	e.addFooter(pdf, campaign)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// addHeader adds the report title block
func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, campaign *domain.Campaign) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102) // Dark blue
	title := campaign.Name
	if title == "" {
		title = domain.FallbackCampaignName
	}
	pdf.CellFormat(0, 14, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Campaign Report #%d", campaign.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

// addSeverityBanner draws the severity in a prominent colored box
func (e *PDFExporter) addSeverityBanner(pdf *gofpdf.Fpdf, campaign *domain.Campaign) {
	r, g, b := e.severityColor(campaign.Severity)
	pdf.SetFillColor(r, g, b)
	y := pdf.GetY()
	pdf.Rect(20, y, 170, 22, "F")

	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+3)
	pdf.CellFormat(80, 16, string(campaign.Severity), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 14)
	pdf.SetXY(120, y+5)
	pdf.CellFormat(65, 12, string(campaign.Status), "", 0, "R", false, 0, "")

	pdf.SetY(y + 26)
	pdf.Ln(3)
}

// severityColor returns RGB color for a campaign severity
func (e *PDFExporter) severityColor(severity domain.CampaignSeverity) (r, g, b int) {
	switch severity {
	case domain.SeverityHigh:
		return 220, 53, 69 // Red
	case domain.SeverityMedium:
		return 255, 149, 0 // Orange
	default:
		return 52, 199, 89 // Green
	}
}

// addOverview adds the activity window and count statistics
func (e *PDFExporter) addOverview(pdf *gofpdf.Fpdf, campaign *domain.Campaign, deviceCount, eventCount int) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Overview", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	rows := []struct {
		label string
		value string
	}{
		{"First Activity", campaign.InitialEventTime.Format("2006-01-02 15:04:05")},
		{"Last Activity", campaign.LastUpdated.Format("2006-01-02 15:04:05")},
		{"Events", fmt.Sprintf("%d", eventCount)},
		{"Involved Devices", fmt.Sprintf("%d", deviceCount)},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(45, 7, row.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(0, 7, row.value, "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

// addNarrative adds the generated descriptions
func (e *PDFExporter) addNarrative(pdf *gofpdf.Fpdf, campaign *domain.Campaign) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Summary", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	description := campaign.Description
	if description == "" {
		description = domain.FallbackCampaignDescription
	}
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.MultiCell(0, 5, description, "", "L", false)
	pdf.Ln(3)

	if campaign.DetailedDescription != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetTextColor(0, 51, 102)
		pdf.CellFormat(0, 8, "Technical Detail", "", 1, "L", false, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(0, 5, campaign.DetailedDescription, "", "L", false)
		pdf.Ln(3)
	}
	pdf.Ln(2)
}

// addDevices adds the involved devices table
func (e *PDFExporter) addDevices(pdf *gofpdf.Fpdf, devices []domain.Device) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Involved Devices", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	if len(devices) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No devices recorded", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(45, 8, "MAC", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "Name", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Last IP", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "OS", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, dev := range devices {
		pdf.CellFormat(45, 7, dev.MAC, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, truncate(dev.Name, 28), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 7, dev.LastIP, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, truncate(dev.OS, 28), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

// addEvents adds the member event table
func (e *PDFExporter) addEvents(pdf *gofpdf.Fpdf, events []domain.PacketEvent) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Events", "", 1, "L", false, 0, "")
	pdf.Ln(1)

	if len(events) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No events recorded", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(32, 8, "Time", "1", 0, "L", true, 0, "")
	pdf.CellFormat(28, 8, "Violation", "1", 0, "L", true, 0, "")
	pdf.CellFormat(18, 8, "Proto", "1", 0, "C", true, 0, "")
	pdf.CellFormat(60, 8, "Conversation", "1", 0, "L", true, 0, "")
	pdf.CellFormat(32, 8, "Process", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, ev := range events {
		if pdf.GetY() > 265 {
			pdf.AddPage()
		}
		ts := time.Unix(0, ev.TimestampNS).Format("01-02 15:04:05")
		pdf.CellFormat(32, 7, ts, "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 7, string(ev.ViolationType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(18, 7, ev.Protocol.Name, "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 7, truncate(conversationLine(&ev), 40), "1", 0, "L", false, 0, "")
		pdf.CellFormat(32, 7, truncate(ev.Process.Name, 20), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

// conversationLine formats the endpoint pair of an event
func conversationLine(ev *domain.PacketEvent) string {
	format := func(endpoint domain.Endpoint) string {
		if endpoint.IP == nil {
			return "-"
		}
		if endpoint.Port == nil {
			return *endpoint.IP
		}
		return fmt.Sprintf("%s:%d", *endpoint.IP, *endpoint.Port)
	}
	return fmt.Sprintf("%s -> %s", format(ev.Source), format(ev.Dest))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// addFooter adds the report footer
func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, campaign *domain.Campaign) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	footerText := fmt.Sprintf("Generated by spearhead | Campaign #%d", campaign.ID)
	pdf.CellFormat(0, 5, footerText, "", 1, "C", false, 0, "")
}
