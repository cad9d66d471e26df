package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

// StorageDetails provides additional storage health information
type StorageDetails struct {
	AvailableBytes uint64  `json:"available_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	TotalBytes     uint64  `json:"total_bytes"`
	PercentageUsed float64 `json:"percentage_used"`
}

// HandleHealth provides a detailed health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(health)
}

// HandleReady reports whether the upload folder is usable.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	info, err := s.fs.Stat(r.Context(), s.resolver.UploadPath())
	if err != nil || !info.IsDir() {
		http.Error(w, `{"status":"not_ready","message":"upload folder unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now(),
		Version:    s.cfg.Build.Version,
		Components: make(map[string]ComponentHealth),
	}

	health.Components["storage"] = s.checkStorageHealth(ctx)
	if s.cfg.DB != nil {
		health.Components["database"] = s.checkDatabaseHealth(ctx)
	}
	if s.cfg.ObjectStore != nil {
		health.Components["object_store"] = s.checkObjectStoreHealth(ctx)
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

// checkStorageHealth verifies the upload folder exists and accepts writes,
// then reports disk usage where the platform supports it.
func (s *Server) checkStorageHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	dir := s.resolver.UploadPath()

	info, err := s.fs.Stat(ctx, dir)
	if err != nil || !info.IsDir() {
		return ComponentHealth{Status: ComponentStatusDown, Message: "upload folder missing"}
	}

	probe, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return ComponentHealth{Status: ComponentStatusDown, Message: "upload folder not writable"}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	health := ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   "storage healthy",
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}

	total, free, err := diskUsage(dir)
	if err != nil || total == 0 {
		return health
	}
	details := StorageDetails{
		AvailableBytes: free,
		UsedBytes:      total - free,
		TotalBytes:     total,
		PercentageUsed: float64(total-free) / float64(total) * 100,
	}
	health.Details = details

	if details.PercentageUsed > 90 {
		health.Status = ComponentStatusDegraded
		health.Message = "storage critically low"
	} else if details.PercentageUsed > 80 {
		health.Status = ComponentStatusDegraded
		health.Message = "storage running low"
	}
	return health
}

// checkDatabaseHealth checks PostgreSQL connectivity for the audit trail
func (s *Server) checkDatabaseHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.cfg.DB.PingContext(ctx); err != nil {
		return ComponentHealth{Status: ComponentStatusDegraded, Message: "database ping failed"}
	}

	stats := s.cfg.DB.Stats()
	return ComponentHealth{
		Status:    ComponentStatusUp,
		Message:   "database healthy",
		LatencyMs: float64(time.Since(start).Milliseconds()),
		Details: map[string]any{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	}
}

// checkObjectStoreHealth checks the mirror bucket is reachable
func (s *Server) checkObjectStoreHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := s.cfg.ObjectStore.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return ComponentHealth{Status: ComponentStatusDegraded, Message: "object store unreachable"}
	}
	if !exists {
		return ComponentHealth{Status: ComponentStatusDegraded, Message: "bucket does not exist: " + s.cfg.Bucket}
	}

	latency := time.Since(start).Milliseconds()
	status := ComponentStatusUp
	message := "object store healthy"
	if latency > 2000 {
		status = ComponentStatusDegraded
		message = "object store latency high"
	}
	return ComponentHealth{Status: status, Message: message, LatencyMs: float64(latency)}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var down, degraded int
	for _, c := range components {
		switch c.Status {
		case ComponentStatusDown:
			down++
		case ComponentStatusDegraded:
			degraded++
		}
	}

	switch {
	case down > 0:
		return HealthStatusUnhealthy
	case degraded > 0:
		return HealthStatusDegraded
	default:
		return HealthStatusHealthy
	}
}
