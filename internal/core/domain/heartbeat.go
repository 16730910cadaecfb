package domain

import "time"

// SystemMetrics are the utilization figures agents sample per heartbeat.
type SystemMetrics struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
}

// Heartbeat is one periodic agent check-in. Timestamp is receipt time, not
// agent time.
type Heartbeat struct {
	ID        int64     `json:"id,omitempty"`
	DeviceID  int64     `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`

	// ContactedDeviceIDs maps peer device id to contact count within the
	// heartbeat interval. Peers are resolved from MACs via upsert.
	ContactedDeviceIDs map[int64]int64 `json:"contacted_device_ids"`

	Metrics SystemMetrics `json:"system_metrics"`
}
