package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// HealthStatus is the health endpoint payload.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	GoVersion string    `json:"go_version"`
}

// VersionInfo is the version endpoint payload.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// HealthService reports process liveness and build identity. The
// service has no upstream dependencies to probe: the statistics API is
// contacted lazily per request, so a reachable process is a healthy
// process.
type HealthService struct {
	version   string
	buildTime string
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a health service stamped with build info.
func NewHealthService(version, buildTime string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Check returns the current health snapshot.
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		GoVersion: runtime.Version(),
	}
}

// Version returns the build identity.
func (s *HealthService) Version(ctx context.Context) *VersionInfo {
	return &VersionInfo{
		Version:   s.version,
		BuildTime: s.buildTime,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
