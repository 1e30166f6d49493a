// Package health provides health status models and aggregation for the
// service and its components.
package health

import (
	"regexp"
	"time"

	"github.com/Alex-Pennington/splitterstats/component"
)

// Pre-compiled regexes for error message sanitization
var (
	brokerURLRegex  = regexp.MustCompile(`(?:https?|mqtts?|tcp|ssl|nats|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a component or the whole service
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics contains health-related metrics
type Metrics struct {
	Uptime          time.Duration `json:"uptime"`
	ErrorCount      int           `json:"error_count"`
	EventsProcessed int64         `json:"events_processed,omitempty"`
	LastActivity    time.Time     `json:"last_activity,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// Aggregate combines component statuses into a service-level status.
// The service is healthy only when every component is healthy, and
// degraded when at least one but not all components are unhealthy.
func Aggregate(service string, statuses ...Status) Status {
	healthy := 0
	agg := Status{
		Component: service,
		Timestamp: time.Now(),
	}
	for _, s := range statuses {
		if s.Healthy {
			healthy++
		}
		agg.SubStatuses = append(agg.SubStatuses, s)
	}

	switch {
	case len(statuses) == 0 || healthy == len(statuses):
		agg.Healthy = true
		agg.Status = "healthy"
		agg.Message = "All components healthy"
	case healthy == 0:
		agg.Status = "unhealthy"
		agg.Message = "All components unhealthy"
	default:
		agg.Status = "degraded"
		agg.Message = "Some components unhealthy"
	}
	return agg
}

// sanitizeErrorMessage removes potentially sensitive information from error
// messages before they are exposed on the health endpoint.
//
// Sanitization patterns:
//   - Broker and web URLs (mqtt://, tcp://, nats://, http://, ws://) -> [URL]
//   - File paths -> [PATH]
//   - IP addresses -> [IP]
//   - Port numbers -> [PORT]
//   - Credentials (password=X, token=X, key=X) -> [REDACTED]
func sanitizeErrorMessage(err string) string {
	if err == "" {
		return ""
	}

	sanitized := err

	// URLs first, they contain paths
	sanitized = brokerURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")
	sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")

	return sanitized
}

// FromComponentHealth converts a component.HealthStatus to a health.Status
func FromComponentHealth(name string, ch component.HealthStatus) Status {
	status := "unhealthy"
	if ch.Healthy {
		status = "healthy"
	}

	message := "Component healthy"
	if ch.LastError != "" {
		message = sanitizeErrorMessage(ch.LastError)
	}

	metrics := &Metrics{
		Uptime:       ch.Uptime,
		ErrorCount:   ch.ErrorCount,
		LastActivity: ch.LastCheck,
	}

	return Status{
		Component: name,
		Healthy:   ch.Healthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
		Metrics:   metrics,
	}
}
