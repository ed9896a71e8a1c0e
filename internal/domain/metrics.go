package domain

import "time"

// Metrics is the telemetry surface the service reports into.
type Metrics interface {
	ObserveRequest(route, status string, duration time.Duration)
	ObserveToolCall(prefix, status string)
	SetMountedServers(count int)
}
