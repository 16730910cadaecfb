package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/spear-it/spearhead/internal/core/domain"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

// Device Handlers

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.Repo.DeviceList(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch devices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid device id", http.StatusBadRequest)
		return
	}
	device, err := s.Repo.DeviceByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	writeJSON(w, device)
}

func (s *Server) handleDeviceHeartbeats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid device id", http.StatusBadRequest)
		return
	}
	beats, err := s.Repo.HeartbeatsForDevice(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to fetch heartbeats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"heartbeats": beats})
}

// Event Handlers

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []domain.PacketEvent
		err    error
	)
	if raw := r.URL.Query().Get("campaign_id"); raw != "" {
		campaignID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			http.Error(w, "Invalid campaign_id", http.StatusBadRequest)
			return
		}
		events, err = s.Repo.EventsByCampaign(r.Context(), campaignID)
	} else {
		events, err = s.Repo.EventList(r.Context())
	}
	if err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"events": events})
}

// Campaign Handlers

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.Repo.CampaignList(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch campaigns", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"campaigns": campaigns})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid campaign id", http.StatusBadRequest)
		return
	}
	campaign, err := s.Repo.CampaignByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Campaign not found", http.StatusNotFound)
		return
	}
	events, err := s.Repo.EventsByCampaign(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to fetch campaign events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"campaign": campaign, "events": events})
}

// handleUpdateCampaign applies administrative edits to the campaign
// narrative. Absent fields keep their stored values.
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid campaign id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name                *string `json:"name"`
		Description         *string `json:"description"`
		DetailedDescription *string `json:"detailed_description"`
		Severity            *string `json:"severity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := s.Repo.CampaignByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Campaign not found", http.StatusNotFound)
		return
	}

	if req.Name != nil {
		campaign.Name = *req.Name
	}
	if req.Description != nil {
		campaign.Description = *req.Description
	}
	if req.DetailedDescription != nil {
		campaign.DetailedDescription = *req.DetailedDescription
	}
	if req.Severity != nil {
		campaign.Severity = domain.SeverityFromString(*req.Severity)
	}

	if _, err := s.Repo.CampaignUpsert(r.Context(), campaign); err != nil {
		http.Error(w, "Failed to update campaign", http.StatusInternalServerError)
		return
	}
	s.WSManager.BroadcastCampaign(campaign)
	writeJSON(w, campaign)
}

// handleAssignEvent links an unassigned event to a campaign. Events
// already belonging to another campaign are never moved.
func (s *Server) handleAssignEvent(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid campaign id", http.StatusBadRequest)
		return
	}
	eventID, err := pathID(r, "event_id")
	if err != nil {
		http.Error(w, "Invalid event id", http.StatusBadRequest)
		return
	}

	if _, err := s.Repo.CampaignByID(r.Context(), campaignID); err != nil {
		http.Error(w, "Campaign not found", http.StatusNotFound)
		return
	}

	if err := s.Repo.EventSetCampaign(r.Context(), eventID, campaignID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"status": "assigned"})
}

func (s *Server) handleCampaignReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		http.Error(w, "Invalid campaign id", http.StatusBadRequest)
		return
	}

	campaign, err := s.Repo.CampaignByID(r.Context(), id)
	if err != nil {
		http.Error(w, "Campaign not found", http.StatusNotFound)
		return
	}
	events, err := s.Repo.EventsByCampaign(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to fetch campaign events", http.StatusInternalServerError)
		return
	}

	var devices []domain.Device
	for _, deviceID := range campaign.InvolvedDeviceIDs {
		device, err := s.Repo.DeviceByID(r.Context(), deviceID)
		if err != nil {
			log.Printf("Campaign %d references missing device %d", id, deviceID)
			continue
		}
		devices = append(devices, *device)
	}

	pdfData, err := s.PDFExporter.ExportCampaignReport(campaign, devices, events)
	if err != nil {
		log.Printf("PDF export error: %v", err)
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=campaign_%d.pdf", id))
	w.Write(pdfData)
}

// Rule Handlers

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Repo.RuleList(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"rules": rules})
}

func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if err := s.Repo.RuleSave(r.Context(), &rule); err != nil {
		http.Error(w, "Failed to save rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rule)
}
