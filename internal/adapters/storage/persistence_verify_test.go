package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// TestStateSurvivesReopen verifies that campaign membership and device state
// written through one adapter instance are visible after a simulated restart.
func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spearhead_reopen.db")
	ctx := context.Background()

	store, err := NewSQLiteAdapter(path)
	require.NoError(t, err)

	_, deviceID, err := store.DeviceUpsertByMAC(ctx, domain.DeviceInfo{
		MAC: "AA:BB:CC:DD:EE:01", Name: "fileserver", IP: "10.0.0.8",
	})
	require.NoError(t, err)

	campaign := domain.NewCampaign()
	campaign.AddInvolvedDevice(deviceID)
	campaign.Touch(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
	_, err = store.CampaignUpsert(ctx, campaign)
	require.NoError(t, err)

	ev := samplePacketEvent("AA:BB:CC:DD:EE:01", 99)
	_, err = store.EventInsert(ctx, ev)
	require.NoError(t, err)
	require.NoError(t, store.EventSetCampaign(ctx, ev.ID, campaign.ID))
	require.NoError(t, store.Close())

	// Reopen on the same file.
	store2, err := NewSQLiteAdapter(path)
	require.NoError(t, err)
	defer store2.Close()

	dev, err := store2.DeviceByMAC(ctx, "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	assert.Equal(t, "fileserver", dev.Name)

	got, err := store2.CampaignByID(ctx, campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{deviceID}, got.InvolvedDeviceIDs)

	events, err := store2.EventsByCampaign(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
}
