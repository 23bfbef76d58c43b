package models

// Health is the liveness/readiness probe body.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the worker's aggregated status: subsystems, upstream
// providers and the most recent sync cycle.
type SystemStatus struct {
	Status                 HealthStatus      `json:"status"`
	Time                   Timestamp         `json:"time"`
	Version                string            `json:"version,omitempty"`
	Subsystems             []SubsystemStatus `json:"subsystems"`
	Providers              []ProviderStatus  `json:"providers"`
	Sync                   *SyncStatus       `json:"sync,omitempty"`
	ActiveDegradationFlags []string          `json:"activeDegradationFlags,omitempty"`
}

// SubsystemStatus is one dependency of the worker (database, scheduler, pubsub).
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the circuit state and fetch history of an upstream
// weather provider. Successes and Failures count fetches since startup.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Successes     int64        `json:"successes"`
	Failures      int64        `json:"failures"`
	LastLatencyMS *int64       `json:"lastLatencyMs,omitempty"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// SyncStatus summarizes the scheduler and the most recent cycle.
type SyncStatus struct {
	Running    bool                   `json:"running"`
	NextRunAt  *Timestamp             `json:"nextRunAt,omitempty"`
	LastCycle  *CycleSummary          `json:"lastCycle,omitempty"`
	JobMetrics map[string]interface{} `json:"jobMetrics,omitempty"`
}
