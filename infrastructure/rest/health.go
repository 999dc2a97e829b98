package rest

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type ProcessStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

type HealthResponse struct {
	Status        string           `json:"status"` // "healthy" or "degraded"
	Uptime        string           `json:"uptime"`
	Conversations int              `json:"conversations"`
	Sessions      int              `json:"sessions"`
	Process       *ProcessStats    `json:"process,omitempty"`
	Checks        map[string]Check `json:"checks"`
	Timestamp     string           `json:"timestamp"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check, len(h.checks))
	allHealthy := true

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		start := time.Now()
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn("Health check failed", "check", name, "error", err)
			checks[name] = Check{Status: "fail", Message: err.Error()}
			allHealthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	resp := HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Process:   h.processStats(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.registry != nil {
		resp.Conversations, resp.Sessions = h.registry.Stats()
	}

	statusCode := http.StatusOK
	if !allHealthy {
		resp.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}
	h.JSON(w, statusCode, resp)
}

func (h *Handler) processStats() *ProcessStats {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		h.log.Debug("Process stats unavailable", "error", err)
		return nil
	}
	stats := &ProcessStats{Goroutines: runtime.NumGoroutine()}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if ram, err := proc.MemoryPercent(); err == nil {
		stats.MemoryPercent = ram
	}
	return stats
}
