package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/adapters/storage"
	"github.com/spear-it/spearhead/internal/core/domain"
)

func newService(t *testing.T) (*Service, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	return NewService(repo, staticResolver{}, NewQueue(0)), repo
}

func heartbeatJSON(overrides map[string]any) []byte {
	doc := map[string]any{
		"mac_address": "AA:BB:CC:DD:EE:01",
		"device_name": "workstation-7",
		"os_details":  "Ubuntu 24.04",
		"ip_address":  "10.0.0.2",
		"network_details": map[string]any{
			"contacted_macs": map[string]any{"FF:EE:DD:CC:BB:AA": int64(4)},
		},
		"system_metrics": map[string]any{
			"cpu_usage_percent":    12.5,
			"memory_usage_percent": 48.0,
		},
	}
	for k, v := range overrides {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}

func TestSubmitReportEnqueues(t *testing.T) {
	svc, _ := newService(t)
	require.NoError(t, svc.SubmitReport(reportJSON(nil)))
	assert.Equal(t, 1, svc.Queue().Len())
}

func TestSubmitReportRejectsMalformed(t *testing.T) {
	svc, _ := newService(t)
	assert.ErrorIs(t, svc.SubmitReport([]byte(`{"type":"packet","data":{}}`)), ErrBadReport)
	assert.Equal(t, 0, svc.Queue().Len())
}

func TestSubmitReportQueueFull(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, staticResolver{}, NewQueue(1))
	require.NoError(t, svc.SubmitReport(reportJSON(nil)))
	assert.ErrorIs(t, svc.SubmitReport(reportJSON(nil)), ErrQueueFull)
}

func TestSubmitHeartbeat(t *testing.T) {
	svc, repo := newService(t)
	receipt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return receipt }

	require.NoError(t, svc.SubmitHeartbeat(context.Background(), heartbeatJSON(nil)))

	dev, err := repo.DeviceByMAC(context.Background(), "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	assert.Equal(t, "workstation-7", dev.Name)
	assert.Equal(t, "Ubuntu 24.04", dev.OS)
	assert.Equal(t, "10.0.0.2", dev.LastIP)

	peer, err := repo.DeviceByMAC(context.Background(), "FF:EE:DD:CC:BB:AA")
	require.NoError(t, err, "contacted MACs are upserted")

	beats, err := repo.HeartbeatsForDevice(context.Background(), dev.ID)
	require.NoError(t, err)
	require.Len(t, beats, 1)
	assert.Equal(t, receipt, beats[0].Timestamp)
	assert.Equal(t, int64(4), beats[0].ContactedDeviceIDs[peer.ID])
	assert.Equal(t, 12.5, beats[0].Metrics.CPUUsagePercent)
	assert.Equal(t, 48.0, beats[0].Metrics.MemoryUsagePercent)
}

func TestSubmitHeartbeatNonEmptyWins(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(nil)))
	// A later heartbeat with empty attributes must not erase what we know.
	require.NoError(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(map[string]any{
		"device_name": "", "os_details": "", "ip_address": "",
	})))

	dev, err := repo.DeviceByMAC(ctx, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	assert.Equal(t, "workstation-7", dev.Name)
	assert.Equal(t, "Ubuntu 24.04", dev.OS)
	assert.Equal(t, "10.0.0.2", dev.LastIP)
}

func TestSubmitHeartbeatRejections(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SubmitHeartbeat(ctx, []byte(`nope`)), ErrBadHeartbeat)
	assert.ErrorIs(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(map[string]any{"mac_address": nil})), ErrBadHeartbeat)
	assert.ErrorIs(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(map[string]any{"mac_address": "garbage"})), ErrBadHeartbeat)

	// Zero MAC is ignored without error and without side effects.
	assert.NoError(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(map[string]any{"mac_address": domain.ZeroMAC})))
	count, err := repo.DeviceCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRulesJSONForDevice(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.SubmitHeartbeat(ctx, heartbeatJSON(nil)))

	require.NoError(t, repo.RuleSave(ctx, &domain.Rule{
		Order: 1, Name: "block exfil", Enabled: true, Priority: 10,
		EventTypes: []string{"packet"},
		Conditions: json.RawMessage(`[{"field":"dst_port","op":"eq","value":443}]`),
		Responses:  json.RawMessage(`["alert"]`),
	}))
	require.NoError(t, repo.RuleSave(ctx, &domain.Rule{
		Order: 2, Name: "disabled rule", Enabled: false, Priority: 5,
		Conditions: json.RawMessage(`[]`), Responses: json.RawMessage(`[]`),
	}))
	require.NoError(t, repo.RuleSave(ctx, &domain.Rule{
		Order: 3, Name: "other group only", Enabled: true, Priority: 1,
		GroupIDs:   []int64{99},
		Conditions: json.RawMessage(`[]`), Responses: json.RawMessage(`[]`),
	}))

	out, err := svc.RulesJSONForDevice(ctx, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)

	var served []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &served))
	require.Len(t, served, 1)
	assert.Equal(t, "block exfil", served[0]["name"])
	assert.NotContains(t, served[0], "group_ids")
}

func TestRulesJSONUnknownDevice(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.RulesJSONForDevice(context.Background(), "AA:BB:CC:DD:EE:99")
	assert.ErrorIs(t, err, ErrUnknownDevice)
}
