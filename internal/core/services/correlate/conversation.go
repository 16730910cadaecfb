package correlate

import (
	"math"

	"github.com/spear-it/spearhead/internal/core/domain"
)

func endpointIPEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func endpointPortEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func endpointEqual(a, b domain.Endpoint) bool {
	return endpointIPEqual(a.IP, b.IP) && endpointPortEqual(a.Port, b.Port)
}

// sameConversationScore grades how likely two packet events belong to the
// same network conversation, in [0, 1].
//
// Different protocols never match. Matching protocols earn 0.25; a 4-tuple
// match in either direction earns 0.45 more. When the tuples match, temporal
// proximity adds up to 0.30, decaying exponentially with the flow timeout;
// events further apart than the timeout keep only half of what they earned.
func sameConversationScore(p1, p2 *domain.PacketEvent, flowTimeoutNS int64) float64 {
	if p1.Protocol.ID != p2.Protocol.ID {
		return 0.0
	}
	score := 0.25

	forward := endpointEqual(p1.Source, p2.Source) && endpointEqual(p1.Dest, p2.Dest)
	reverse := endpointEqual(p1.Source, p2.Dest) && endpointEqual(p1.Dest, p2.Source)
	if !forward && !reverse {
		return score
	}
	score += 0.45

	dt := p1.TimestampNS - p2.TimestampNS
	if dt < 0 {
		dt = -dt
	}
	if dt >= flowTimeoutNS {
		return score * 0.5
	}
	score += 0.30 * math.Exp(-float64(dt)/float64(flowTimeoutNS))
	return math.Min(score, 1.0)
}
