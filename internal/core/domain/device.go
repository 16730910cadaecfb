package domain

import "time"

// Device represents an endpoint running a wrapper agent, keyed by MAC address.
type Device struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	OS         string    `json:"os"`
	LastIP     string    `json:"last_ip"`
	MAC        string    `json:"mac"`
	HandlerIDs []int64   `json:"handler_ids,omitempty"` // User IDs responsible for this device
	GroupIDs   []int64   `json:"group_ids,omitempty"`
	Note       string    `json:"note,omitempty"`
	LastSeen   time.Time `json:"last_seen"`
}

// DeviceInfo carries the mutable attributes reported by agents.
// Empty fields never overwrite known values on upsert.
type DeviceInfo struct {
	Name string
	OS   string
	IP   string
	MAC  string
}

// Group is a named set of devices used to scope rules.
type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	DeviceIDs []int64 `json:"device_ids,omitempty"`
}
