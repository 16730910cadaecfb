package mock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/services/ingest"
)

type staticResolver struct{}

func (staticResolver) Resolve(id int64) domain.ProtocolInfo {
	return domain.ProtocolInfo{ID: id, LibcName: "IPPROTO_TCP", Name: "TCP"}
}

func TestGeneratedIdentitiesAreValid(t *testing.T) {
	gen := NewDataGenerator(5)
	agents := gen.Agents()
	require.Len(t, agents, 5)

	seen := map[string]bool{}
	for _, agent := range agents {
		assert.True(t, domain.IsValidMAC(agent.MAC), agent.MAC)
		assert.False(t, seen[agent.MAC], "duplicate MAC")
		seen[agent.MAC] = true
		assert.NotEmpty(t, agent.Hostname)
		assert.NotEmpty(t, agent.IP)
	}
}

func TestGeneratedReportParses(t *testing.T) {
	gen := NewDataGenerator(2)
	agents := gen.Agents()

	raw := gen.GenerateReport(agents[0], agents[1].IP, agents[1].MAC)

	ev, err := ingest.ParseReport(raw, staticResolver{})
	require.NoError(t, err)
	assert.Equal(t, agents[0].MAC, ev.DeviceMAC, "outbound events belong to the source")
	assert.Equal(t, "TCP", ev.Protocol.Name)
	assert.NotEmpty(t, ev.Payload.Data)
	assert.GreaterOrEqual(t, ev.Payload.FullSize, int64(len(ev.Payload.Data)))
}

func TestGeneratedHeartbeatShape(t *testing.T) {
	gen := NewDataGenerator(2)
	agent := gen.Agents()[0]

	raw := gen.GenerateHeartbeat(agent, map[string]int64{gen.Agents()[1].MAC: 3})

	var doc struct {
		MACAddress     string `json:"mac_address"`
		DeviceName     string `json:"device_name"`
		NetworkDetails struct {
			ContactedMACs map[string]int64 `json:"contacted_macs"`
		} `json:"network_details"`
		SystemMetrics struct {
			CPUUsagePercent float64 `json:"cpu_usage_percent"`
		} `json:"system_metrics"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, agent.MAC, doc.MACAddress)
	assert.Equal(t, agent.Hostname, doc.DeviceName)
	assert.Len(t, doc.NetworkDetails.ContactedMACs, 1)
	assert.LessOrEqual(t, doc.SystemMetrics.CPUUsagePercent, 100.0)
}
