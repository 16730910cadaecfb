package domain

import "encoding/json"

// Rule is a detection rule authored in the admin UI and enforced on agents.
// The server only stores and serves rules; it never evaluates them.
type Rule struct {
	ID         int64           `json:"id"`
	Order      int64           `json:"order"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Priority   int64           `json:"priority"`
	EventTypes []string        `json:"event_types"`
	Conditions json.RawMessage `json:"conditions"`
	Responses  json.RawMessage `json:"responses"`

	// GroupIDs scopes the rule. Empty means the rule applies to every device.
	GroupIDs []int64 `json:"group_ids,omitempty"`
}

// AppliesTo reports whether the rule is in scope for a device that belongs to
// the given groups.
func (r *Rule) AppliesTo(deviceGroups []int64) bool {
	if len(r.GroupIDs) == 0 {
		return true
	}
	for _, rg := range r.GroupIDs {
		for _, dg := range deviceGroups {
			if rg == dg {
				return true
			}
		}
	}
	return false
}

// WireRule is the compact shape sent to agents in RSLR replies.
type WireRule struct {
	ID         int64           `json:"id"`
	Order      int64           `json:"order"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Priority   int64           `json:"priority"`
	EventTypes []string        `json:"event_types"`
	Conditions json.RawMessage `json:"conditions"`
	Responses  json.RawMessage `json:"responses"`
}

// Wire converts the rule to its agent-facing form, dropping server-side scope.
func (r *Rule) Wire() WireRule {
	return WireRule{
		ID:         r.ID,
		Order:      r.Order,
		Name:       r.Name,
		Enabled:    r.Enabled,
		Priority:   r.Priority,
		EventTypes: r.EventTypes,
		Conditions: r.Conditions,
		Responses:  r.Responses,
	}
}
