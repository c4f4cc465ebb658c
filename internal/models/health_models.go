// internal/models/health_models.go
package models

import "time"

// HealthResponse represents basic health information about the API server
type HealthResponse struct {
	Status    string    `json:"status"`            // always "ok" while the process serves requests
	Uptime    string    `json:"uptime"`            // Human-readable uptime
	StartTime time.Time `json:"startTime"`         // When the server started
	Version   string    `json:"version,omitempty"` // API server version
}
