package domain

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of one dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// Thread is a conversation with its messages and window state.
type Thread struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
	Window       WindowState   `json:"window"`
}

// WindowState is the messaging-window summary shown next to the composer.
type WindowState struct {
	Open            bool    `json:"open"`
	HoursUntilClose float64 `json:"hours_until_close"`
}
