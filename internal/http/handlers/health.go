package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/chanarr/chanarr/pkg/httpclient"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"gorm.io/gorm"
)

// Ping latency above this is reported as "slow".
const slowPingMS = 100

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version  string
	started  time.Time
	breakers *httpclient.CircuitBreakerManager
	db       *gorm.DB
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:  version,
		started:  time.Now(),
		breakers: httpclient.DefaultManager,
	}
}

// WithCircuitBreakerManager overrides the default circuit breaker manager.
func (h *HealthHandler) WithCircuitBreakerManager(m *httpclient.CircuitBreakerManager) *HealthHandler {
	h.breakers = m
	return h
}

// WithDB enables database checks in the health and readiness reports.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// HealthInput carries no parameters.
type HealthInput struct{}

// HealthOutput wraps the full health report.
type HealthOutput struct {
	Body HealthResponse
}

// LivezInput carries no parameters.
type LivezInput struct{}

// LivezOutput reports process liveness.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzInput carries no parameters.
type ReadyzInput struct{}

// ReadyzOutput reports per-component readiness.
type ReadyzOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
}

// Register mounts the health routes on the API.
func (h *HealthHandler) Register(api huma.API) {
	const tag = "System"

	huma.Register(api, operation("getHealth", "GET", "/health",
		"Health check", "Returns the health status of the service including system metrics", tag), h.GetHealth)
	huma.Register(api, operation("getLivez", "GET", "/livez",
		"Liveness probe", "Returns ok while the process is running", tag), h.GetLivez)
	huma.Register(api, operation("getReadyz", "GET", "/readyz",
		"Readiness probe", "Returns ready once all components can serve traffic", tag), h.GetReadyz)
}

// GetLivez returns liveness status.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// pingDatabase reports "ok", "not_configured", or "error".
func (h *HealthHandler) pingDatabase(ctx context.Context) string {
	if h.db == nil {
		return "not_configured"
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return "error"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "error"
	}
	return "ok"
}

// GetReadyz returns readiness status based on component checks.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *ReadyzInput) (*ReadyzOutput, error) {
	dbStatus := h.pingDatabase(ctx)

	out := &ReadyzOutput{}
	out.Body.Components = map[string]string{
		"scheduler": "ok",
		"database":  dbStatus,
	}
	out.Body.Status = "ready"
	if dbStatus != "ok" {
		out.Body.Status = "not_ready"
	}
	return out, nil
}

// GetHealth returns the full health report with system metrics.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.started)

	cpu := h.cpuInfo()
	dbHealth := h.databaseHealth(ctx)

	var breakers []CircuitBreakerStatus
	if h.breakers != nil {
		stats := h.breakers.GetAllStats()
		breakers = make([]CircuitBreakerStatus, 0, len(stats))
		for name, s := range stats {
			breakers = append(breakers, CircuitBreakerStatus{
				Name: name, State: s.State.String(), Failures: s.Failures,
			})
		}
	}

	body := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		SystemLoad:    cpu.LoadPercentage1Min / 100, // Normalized to 0-1
		CPUInfo:       cpu,
		Memory:        h.memoryInfo(),
		Components: HealthComponents{
			Database:        dbHealth,
			Scheduler:       SchedulerHealth{Status: "ok"},
			CircuitBreakers: breakers,
		},
		Checks: map[string]string{"database": dbHealth.Status},
	}
	return &HealthOutput{Body: body}, nil
}

// cpuInfo reads core count and load averages.
func (h *HealthHandler) cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	avg, err := load.Avg()
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min, info.Load5Min, info.Load15Min = avg.Load1, avg.Load5, avg.Load15
	if info.Cores > 0 {
		// Load relative to core count, as a percentage
		info.LoadPercentage1Min = (avg.Load1 / float64(info.Cores)) * 100
	}
	return info
}

const mb = 1024 * 1024

// memoryInfo reads system, swap, and process memory usage.
func (h *HealthHandler) memoryInfo() MemoryInfo {
	info := MemoryInfo{}

	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / mb
		info.UsedMemoryMB = float64(vm.Used) / mb
		info.FreeMemoryMB = float64(vm.Free) / mb
		info.AvailableMemoryMB = float64(vm.Available) / mb
	}
	if swap, err := mem.SwapMemory(); err == nil && swap != nil {
		info.SwapTotalMB = float64(swap.Total) / mb
		info.SwapUsedMB = float64(swap.Used) / mb
	}

	info.ProcessMemory = h.processMemoryInfo(info.TotalMemoryMB)
	return info
}

// processMemoryInfo reads RSS for this process and its children.
func (h *HealthHandler) processMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
		info.MainProcessMB = float64(rss.RSS) / mb
		info.TotalProcessTreeMB = info.MainProcessMB
		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	if children, err := proc.Children(); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			cm, err := child.MemoryInfo()
			if err != nil || cm == nil {
				continue
			}
			info.ChildProcessesMB += float64(cm.RSS) / mb
			info.TotalProcessTreeMB += float64(cm.RSS) / mb
		}
	}
	return info
}

// databaseHealth reads connection pool stats and ping latency.
func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{
		Status:           "ok",
		TablesAccessible: true, WriteCapability: true, NoBlockingLocks: true,
		ResponseTimeStatus: "healthy",
	}

	if h.db == nil {
		health.Status = "unknown" // no handle wired
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		health.TablesAccessible = false
		return health
	}

	pool := sqlDB.Stats()
	health.ConnectionPoolSize = pool.MaxOpenConnections
	health.ActiveConnections = pool.InUse
	health.IdleConnections = pool.Idle
	if pool.MaxOpenConnections > 0 {
		health.PoolUtilizationPercent = float64(pool.InUse) / float64(pool.MaxOpenConnections) * 100
	}

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000

	switch {
	case err != nil:
		health.Status = "error"
		health.ResponseTimeStatus = "error"
	case health.ResponseTimeMS > slowPingMS:
		health.ResponseTimeStatus = "slow"
	}
	return health
}
