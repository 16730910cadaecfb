package correlate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spear-it/spearhead/internal/adapters/storage"
	"github.com/spear-it/spearhead/internal/core/domain"
	"github.com/spear-it/spearhead/internal/core/ports"
)

func strptr(s string) *string { return &s }
func intptr(n int64) *int64   { return &n }

func packetEvent(ts time.Time, mac string, ruleID int64) *domain.PacketEvent {
	return &domain.PacketEvent{
		Event: domain.Event{
			TimestampNS:    ts.UnixNano(),
			ViolatedRuleID: ruleID,
			ViolationType:  domain.ViolationPacket,
			Response:       domain.ResponseAlert,
			Kind:           domain.KindPacket,
			DeviceMAC:      mac,
		},
		Protocol:  domain.ProtocolInfo{ID: 6, LibcName: "IPPROTO_TCP", Name: "TCP"},
		Direction: domain.DirectionOutbound,
		Process:   domain.ProcessInfo{PID: 100, Name: "curl"},
		Source:    domain.Endpoint{IP: strptr("10.0.0.2"), Port: intptr(50000), MAC: mac},
		Dest:      domain.Endpoint{IP: strptr("203.0.113.7"), Port: intptr(443), MAC: "FF:EE:DD:CC:BB:AA"},
	}
}

type stubLabeler struct {
	labels ports.CampaignLabels
	err    error
	calls  int
}

func (s *stubLabeler) LabelCampaign(context.Context, string) (ports.CampaignLabels, error) {
	s.calls++
	return s.labels, s.err
}

type fixture struct {
	repo       *storage.MemoryRepository
	labeler    *stubLabeler
	correlator *Correlator
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo: storage.NewMemoryRepository(),
		labeler: &stubLabeler{labels: ports.CampaignLabels{
			Name:        "Credential Theft Burst",
			Description: "Repeated exfil attempts",
			Severity:    domain.SeverityHigh,
		}},
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.correlator = New(f.repo, f.labeler, DefaultConfig())
	f.correlator.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) ingest(t *testing.T, ev *domain.PacketEvent) {
	t.Helper()
	_, err := f.repo.EventInsert(context.Background(), ev)
	require.NoError(t, err)
	require.NoError(t, f.correlator.ProcessEvent(context.Background(), ev))
}

func TestSimilarEventsJoinOneCampaign(t *testing.T) {
	f := newFixture(t)
	base := f.clock

	first := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)
	second := packetEvent(base.Add(time.Second), "AA:BB:CC:DD:EE:01", 7)
	f.ingest(t, first)
	f.ingest(t, second)

	require.Len(t, f.correlator.Ongoing(), 1)
	campaign := f.correlator.Ongoing()[0]
	assert.Equal(t, campaign.ID, first.CampaignID)
	assert.Equal(t, campaign.ID, second.CampaignID)
	assert.Len(t, campaign.Events, 2)

	stored, err := f.repo.CampaignByID(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignOngoing, stored.Status)
}

func TestDissimilarEventOpensNewCampaign(t *testing.T) {
	f := newFixture(t)
	base := f.clock

	first := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)
	other := packetEvent(base.Add(time.Second), "AA:BB:CC:DD:EE:02", 9)
	other.ViolationType = domain.ViolationConnection
	other.Protocol = domain.ProtocolInfo{ID: 17, Name: "UDP"}
	other.Source = domain.Endpoint{IP: strptr("10.0.0.9"), Port: intptr(5353), MAC: other.DeviceMAC}

	f.ingest(t, first)
	f.ingest(t, other)

	require.Len(t, f.correlator.Ongoing(), 2)
	assert.NotEqual(t, first.CampaignID, other.CampaignID)
}

func TestCampaignRecordsBothConversationEndpoints(t *testing.T) {
	f := newFixture(t)
	ev := packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7)
	f.ingest(t, ev)

	campaign := f.correlator.Ongoing()[0]

	local, err := f.repo.DeviceByMAC(context.Background(), "AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	remote, err := f.repo.DeviceByMAC(context.Background(), "FF:EE:DD:CC:BB:AA")
	require.NoError(t, err)

	// Reporting device first, conversation peer second.
	assert.Equal(t, []int64{local.ID, remote.ID}, campaign.InvolvedDeviceIDs)
	assert.Equal(t, "203.0.113.7", remote.LastIP)
}

func TestTimeoutClosesAndLabelsCampaign(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7))
	campaignID := f.correlator.Ongoing()[0].ID

	// An unrelated event past the inactivity window expires the first campaign.
	f.clock = f.clock.Add(12 * time.Second)
	unrelated := packetEvent(f.clock, "AA:BB:CC:DD:EE:02", 9)
	unrelated.ViolationType = domain.ViolationConnection
	unrelated.Protocol = domain.ProtocolInfo{ID: 17, Name: "UDP"}
	f.ingest(t, unrelated)

	assert.Equal(t, 1, f.labeler.calls)
	closed, err := f.repo.CampaignByID(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCompleted, closed.Status)
	assert.Equal(t, "Credential Theft Burst", closed.Name)
	assert.Equal(t, domain.SeverityHigh, closed.Severity)

	require.Len(t, f.correlator.Ongoing(), 1)
	assert.NotEqual(t, campaignID, f.correlator.Ongoing()[0].ID)
}

func TestTimeoutIsStrict(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7))

	// Idle for exactly the timeout: not expired.
	f.clock = f.clock.Add(DefaultConfig().OngoingTimeout)
	f.correlator.Sweep(context.Background())
	assert.Len(t, f.correlator.Ongoing(), 1)

	f.clock = f.clock.Add(time.Nanosecond)
	f.correlator.Sweep(context.Background())
	assert.Empty(t, f.correlator.Ongoing())
}

func TestLabelerFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.labeler.err = errors.New("model unavailable")
	f.ingest(t, packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7))
	campaignID := f.correlator.Ongoing()[0].ID

	f.clock = f.clock.Add(time.Minute)
	f.correlator.Sweep(context.Background())

	closed, err := f.repo.CampaignByID(context.Background(), campaignID)
	require.NoError(t, err)
	assert.Equal(t, domain.FallbackCampaignName, closed.Name)
	assert.Equal(t, domain.FallbackCampaignDescription, closed.Description)
	assert.Equal(t, domain.SeverityLow, closed.Severity)
	assert.Equal(t, domain.CampaignCompleted, closed.Status)
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7))

	f.correlator.CloseAll(context.Background())
	assert.Empty(t, f.correlator.Ongoing())

	campaigns, err := f.repo.CampaignList(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, domain.CampaignCompleted, campaigns[0].Status)
}

func TestEventNeverReassigned(t *testing.T) {
	f := newFixture(t)
	ev := packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7)
	f.ingest(t, ev)
	original := ev.CampaignID
	require.NotZero(t, original)

	// Simulate a stale membership pointing at another campaign.
	other := domain.NewCampaign()
	_, err := f.repo.CampaignUpsert(context.Background(), other)
	require.NoError(t, err)
	require.NoError(t, f.correlator.attach(context.Background(), other, ev))

	assert.Equal(t, original, ev.CampaignID)
	stored, err := f.repo.EventList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, original, stored[0].CampaignID)
}

func TestFirstCampaignWinsTies(t *testing.T) {
	f := newFixture(t)
	ev1 := packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7)
	f.ingest(t, ev1)
	first := f.correlator.Ongoing()[0]

	// Force a second identical ongoing campaign, then ingest a twin event.
	twinMember := packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7)
	_, err := f.repo.EventInsert(context.Background(), twinMember)
	require.NoError(t, err)
	second := domain.NewCampaign()
	f.correlator.ongoing = append(f.correlator.ongoing, second)
	require.NoError(t, f.correlator.attach(context.Background(), second, twinMember))

	ev2 := packetEvent(f.clock.Add(time.Second), "AA:BB:CC:DD:EE:01", 7)
	f.ingest(t, ev2)
	assert.Equal(t, first.ID, ev2.CampaignID)
}

func TestConversationScoreProperties(t *testing.T) {
	flow := DefaultConfig().FlowTimeout.Nanoseconds()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)

	// Reflexive: identical events score the clamped maximum.
	assert.InDelta(t, 1.0, sameConversationScore(a, a, flow), 1e-9)

	// Symmetric.
	b := packetEvent(base.Add(3*time.Second), "AA:BB:CC:DD:EE:01", 7)
	assert.InDelta(t, sameConversationScore(a, b, flow), sameConversationScore(b, a, flow), 1e-9)

	// Reversed tuple matches like the forward one.
	rev := packetEvent(base.Add(3*time.Second), "AA:BB:CC:DD:EE:01", 7)
	rev.Source, rev.Dest = rev.Dest, rev.Source
	assert.InDelta(t, sameConversationScore(a, b, flow), sameConversationScore(a, rev, flow), 1e-9)

	// Different protocol scores zero outright.
	udp := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)
	udp.Protocol = domain.ProtocolInfo{ID: 17, Name: "UDP"}
	assert.Zero(t, sameConversationScore(a, udp, flow))

	// Tuple mismatch keeps only the protocol credit.
	offTuple := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)
	offTuple.Dest.Port = intptr(8080)
	assert.InDelta(t, 0.25, sameConversationScore(a, offTuple, flow), 1e-9)

	// At the flow timeout the tuple score is halved: (0.25+0.45)*0.5.
	stale := packetEvent(base.Add(DefaultConfig().FlowTimeout), "AA:BB:CC:DD:EE:01", 7)
	assert.InDelta(t, 0.35, sameConversationScore(a, stale, flow), 1e-9)

	// Just inside the timeout decays smoothly and stays above the halved score.
	fresh := packetEvent(base.Add(DefaultConfig().FlowTimeout-time.Second), "AA:BB:CC:DD:EE:01", 7)
	score := sameConversationScore(a, fresh, flow)
	expected := 0.25 + 0.45 + 0.30*math.Exp(-float64((DefaultConfig().FlowTimeout-time.Second).Nanoseconds())/float64(flow))
	assert.InDelta(t, expected, score, 1e-9)
	assert.Greater(t, score, 0.35)
}

func TestEventMatchScoreNormalized(t *testing.T) {
	f := newFixture(t)
	base := f.clock
	a := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)
	b := packetEvent(base, "AA:BB:CC:DD:EE:01", 7)

	assert.InDelta(t, 1.0, f.correlator.scoreEventsMatch(a, b), 1e-9)

	b.DeviceMAC = "AA:BB:CC:DD:EE:99"
	score := f.correlator.scoreEventsMatch(a, b)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)
}

func TestEmptyCampaignNeverMatches(t *testing.T) {
	f := newFixture(t)
	empty := domain.NewCampaign()
	assert.Zero(t, f.correlator.scoreCampaignMatch(packetEvent(f.clock, "AA:BB:CC:DD:EE:01", 7), empty))
}
