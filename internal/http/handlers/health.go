package handlers

import (
	"context"
	"net/http"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	logctx "github.com/pribylovaa/auth-core/internal/pkg/log"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusOnline   = "online"
	statusOffline  = "offline"
)

// Stats — загрузка системы в процентах.
type Stats struct {
	CPUUsage    float64
	MemoryUsage float64
}

// StatsFunc снимает загрузку системы.
type StatsFunc func(ctx context.Context) (Stats, error)

// SystemStats снимает загрузку CPU (с момента прошлого вызова) и памяти через gopsutil.
func SystemStats(ctx context.Context) (Stats, error) {
	var s Stats

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(pct) > 0 {
		s.CPUUsage = pct[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemoryUsage = vm.UsedPercent

	return s, nil
}

// Health всегда отвечает 200: недоступность БД или кэша отражается статусом degraded.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := logctx.From(ctx)

	resp := healthResponse{
		Name:        h.app.Name,
		Version:     h.app.Version,
		Environment: h.app.Environment,
		Status:      statusHealthy,
		Timestamp:   h.now(),
		Database:    statusOnline,
		Cache:       statusOnline,
	}

	if err := ping(ctx, h.db); err != nil {
		lg.Error("health_db_offline", logctx.Err(err))
		resp.Database = statusOffline
		resp.Status = statusDegraded
	}

	if err := ping(ctx, h.cache); err != nil {
		lg.Error("health_cache_offline", logctx.Err(err))
		resp.Cache = statusOffline
		resp.Status = statusDegraded
	}

	if st, err := h.stats(ctx); err != nil {
		lg.Warn("health_stats_failed", logctx.Err(err))
	} else {
		resp.System = systemResponse{CPUUsage: st.CPUUsage, MemoryUsage: st.MemoryUsage}
	}

	writeJSON(w, http.StatusOK, resp)
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return nil
	}

	return p.Ping(ctx)
}
